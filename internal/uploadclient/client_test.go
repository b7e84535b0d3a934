package uploadclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "input.bin")
	content := make([]byte, 30)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	var chunksReceived int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/chunked/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chunkSize": 10, "totalChunks": 3, "fileExists": false,
		})
	})
	mux.HandleFunc("/api/upload/chunked/status/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"uploadedChunks": []int{}, "totalChunks": 3, "uploadedBytes": 0, "totalBytes": 30,
		})
	})
	mux.HandleFunc("/api/upload/chunked/chunk", func(w http.ResponseWriter, r *http.Request) {
		chunksReceived++
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/api/upload/chunked/complete/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"taskId": "t1", "taskName": "input.bin"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(srv.URL, WithConcurrency(2))
	result, err := client.UploadFile(context.Background(), "up1", srcPath, "client-a", nil, nil)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if result.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", result.TaskID)
	}
	if chunksReceived != 3 {
		t.Errorf("chunksReceived = %d, want 3", chunksReceived)
	}
}

func TestUploadFileAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "dup.bin")
	if err := os.WriteFile(srcPath, []byte("duplicate content"), 0644); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/chunked/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fileExists": true, "taskId": "existing-task", "taskName": "dup.bin",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(srv.URL)
	result, err := client.UploadFile(context.Background(), "up2", srcPath, "client-a", nil, nil)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if !result.AlreadyHad || result.TaskID != "existing-task" {
		t.Errorf("result = %+v, want AlreadyHad with existing-task", result)
	}
}
