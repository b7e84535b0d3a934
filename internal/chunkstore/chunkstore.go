// Package chunkstore persists per-session chunk blobs and merges them
// deterministically into a single artifact, per the chunk store
// component of the ingest pipeline.
package chunkstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/logger"
)

const mergeBufferSize = 1 << 20 // 1 MiB streaming buffer, per spec

// Store stages chunk blobs under a temp root and merges them into an
// artifact directory once a session completes.
type Store struct {
	tempRoot     string
	artifactRoot string
	logger       *logger.Logger
}

func New(tempRoot, artifactRoot string) (*Store, error) {
	if tempRoot == "" || artifactRoot == "" {
		return nil, fmt.Errorf("tempRoot and artifactRoot are required")
	}
	if err := os.MkdirAll(tempRoot, 0755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	if err := os.MkdirAll(artifactRoot, 0755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{
		tempRoot:     tempRoot,
		artifactRoot: artifactRoot,
		logger:       logger.NewLogger("CHUNKSTORE"),
	}, nil
}

// SessionDir returns the chunk staging directory for a session.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.tempRoot, sessionID)
}

func (s *Store) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.SessionDir(sessionID), fmt.Sprintf("chunk_%06d", index))
}

// EnsureSessionDir creates the staging directory for a new session.
func (s *Store) EnsureSessionDir(sessionID string) error {
	return os.MkdirAll(s.SessionDir(sessionID), 0755)
}

// WriteChunk persists one chunk atomically: write to a temp file in the
// same directory, verify the tag if provided, then rename into place.
// A re-write of an already-persisted index overwrites it with
// byte-identical content (idempotent per spec §4.1).
func (s *Store) WriteChunk(sessionID string, index int, data []byte, tag string) error {
	if tag != "" {
		sum := md5.Sum(data)
		if hex.EncodeToString(sum[:]) != tag {
			return apperr.New(apperr.ChunkIntegrity, fmt.Sprintf("chunk %d checksum mismatch", index))
		}
	}

	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperr.Wrap(apperr.Fatal, "create session dir", err)
	}

	final := s.chunkPath(sessionID, index)
	tmp := final + ".part"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "open chunk temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.Fatal, "write chunk", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Fatal, "close chunk file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Fatal, "finalize chunk", err)
	}
	return nil
}

// ArtifactPath returns the destination path a merged artifact will live at.
func (s *Store) ArtifactPath(sessionID, fileName string) string {
	return filepath.Join(s.artifactRoot, fmt.Sprintf("%s_%s", sessionID, fileName))
}

// Merge concatenates chunks 0..N-1 in index order into the artifact
// directory using a streaming buffer. It fails without leaving a
// partial artifact on disk if any chunk is missing.
func (s *Store) Merge(sessionID, fileName string, totalChunks int) (string, error) {
	dest := s.ArtifactPath(sessionID, fileName)
	tmp := dest + ".merging"

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", apperr.Wrap(apperr.Fatal, "open artifact temp file", err)
	}

	buf := make([]byte, mergeBufferSize)
	for i := 0; i < totalChunks; i++ {
		path := s.chunkPath(sessionID, i)
		in, err := os.Open(path)
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return "", apperr.Wrap(apperr.Fatal, fmt.Sprintf("missing chunk %d", i), err)
		}
		_, copyErr := io.CopyBuffer(out, in, buf)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(tmp)
			return "", apperr.Wrap(apperr.Fatal, fmt.Sprintf("copy chunk %d", i), copyErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", apperr.Wrap(apperr.Fatal, "close artifact file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", apperr.Wrap(apperr.Fatal, "finalize artifact", err)
	}

	return dest, nil
}

// ValidateFinal checks the merged artifact's size, and optionally its
// fingerprint (disabled by default to save I/O per spec §4.1).
func (s *Store) ValidateFinal(path string, expectedSize int64, expectedFingerprint string, verifyFingerprint func(path string, size int64) (string, error)) error {
	info, err := os.Stat(path)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "stat artifact", err)
	}
	if info.Size() != expectedSize {
		return apperr.Newf(apperr.Validation, "size mismatch: got %d want %d", info.Size(), expectedSize)
	}
	if expectedFingerprint != "" && verifyFingerprint != nil {
		got, err := verifyFingerprint(path, expectedSize)
		if err != nil {
			return apperr.Wrap(apperr.Fatal, "compute fingerprint", err)
		}
		if got != expectedFingerprint {
			return apperr.New(apperr.ChunkIntegrity, "fingerprint mismatch")
		}
	}
	return nil
}

// RemoveSessionDir deletes a session's chunk staging directory, e.g. on
// Complete hand-off or TTL eviction.
func (s *Store) RemoveSessionDir(sessionID string) error {
	return os.RemoveAll(s.SessionDir(sessionID))
}

// DeleteArtifact removes a merged artifact, used by the retention engine.
func (s *Store) DeleteArtifact(path string) error {
	return os.Remove(path)
}
