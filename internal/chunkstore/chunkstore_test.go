package chunkstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/videoforge/videoforge/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(filepath.Join(root, "temp"), filepath.Join(root, "artifacts"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestWriteChunkAndMergeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sessionID := "sess1"

	if err := s.EnsureSessionDir(sessionID); err != nil {
		t.Fatal(err)
	}

	parts := [][]byte{[]byte("hello "), []byte("chunked "), []byte("world")}
	for i, p := range parts {
		if err := s.WriteChunk(sessionID, i, p, ""); err != nil {
			t.Fatalf("WriteChunk(%d) error = %v", i, err)
		}
	}

	path, err := s.Merge(sessionID, "out.txt", len(parts))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello chunked world" {
		t.Errorf("merged content = %q", got)
	}
}

func TestWriteChunkRejectsBadTag(t *testing.T) {
	s := newTestStore(t)
	s.EnsureSessionDir("sess2")

	err := s.WriteChunk("sess2", 0, []byte("data"), "not-the-real-md5")
	if err == nil {
		t.Fatal("WriteChunk() with bad tag should error")
	}
	if apperr.TypeOf(err) != apperr.ChunkIntegrity {
		t.Errorf("error type = %v, want ChunkIntegrity", apperr.TypeOf(err))
	}
}

func TestWriteChunkIsIdempotentOnResend(t *testing.T) {
	s := newTestStore(t)
	s.EnsureSessionDir("sess3")

	if err := s.WriteChunk("sess3", 0, []byte("v1"), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteChunk("sess3", 0, []byte("v1"), ""); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.chunkPath("sess3", 0))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Errorf("chunk content = %q, want v1", data)
	}
}

func TestMergeFailsOnMissingChunk(t *testing.T) {
	s := newTestStore(t)
	s.EnsureSessionDir("sess4")
	s.WriteChunk("sess4", 0, []byte("only chunk"), "")

	if _, err := s.Merge("sess4", "out.txt", 2); err == nil {
		t.Fatal("Merge() with a missing chunk should error")
	}

	// no partial artifact should be left behind.
	if _, err := os.Stat(s.ArtifactPath("sess4", "out.txt")); !os.IsNotExist(err) {
		t.Error("Merge() failure should not leave a partial artifact")
	}
}

func TestValidateFinalRejectsSizeMismatch(t *testing.T) {
	s := newTestStore(t)
	s.EnsureSessionDir("sess5")
	s.WriteChunk("sess5", 0, []byte("1234567890"), "")
	path, err := s.Merge("sess5", "out.txt", 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ValidateFinal(path, 999, "", nil); err == nil {
		t.Fatal("ValidateFinal() with wrong size should error")
	}
	if err := s.ValidateFinal(path, 10, "", nil); err != nil {
		t.Errorf("ValidateFinal() with correct size errored: %v", err)
	}
}
