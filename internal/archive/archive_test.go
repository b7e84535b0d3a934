package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewNoneProviderIsDisabled(t *testing.T) {
	a, err := New(context.Background(), "none", "", "", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Enabled() {
		t.Error("Enabled() should be false for the none provider")
	}
}

func TestNewEmptyProviderIsDisabled(t *testing.T) {
	a, err := New(context.Background(), "", "", "", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Enabled() {
		t.Error("Enabled() should be false for an empty provider")
	}
}

func TestUploadIsNoOpWhenDisabled(t *testing.T) {
	a, _ := New(context.Background(), "none", "", "", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := a.Upload(context.Background(), path, "any-key"); err != nil {
		t.Errorf("Upload() on a disabled archiver should not error, got %v", err)
	}
}

func TestNewRejectsUnsupportedProvider(t *testing.T) {
	if _, err := New(context.Background(), "ftp", "", "", ""); err == nil {
		t.Error("New() with an unsupported provider should error")
	}
}
