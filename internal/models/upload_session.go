package models

import "time"

type SessionState string

const (
	SessionOpen      SessionState = "Open"
	SessionMerging   SessionState = "Merging"
	SessionHandedOff SessionState = "Handed-off"
	SessionErrored   SessionState = "Errored"
	SessionEvicted   SessionState = "Evicted"
)

// UploadSession is the unit of ingest owned by the upload session
// manager (C3). Received is guarded by the owning manager's mutex, not
// by this struct itself.
type UploadSession struct {
	ID          string
	FileName    string
	TotalSize   int64
	Fingerprint string
	OwnerID     string
	ChunkSize   int64
	TotalChunks int

	TempDir string

	Received map[int]bool

	Params map[string]interface{}

	CreatedAt time.Time
	ExpiresAt time.Time

	State SessionState

	TaskID   string
	TaskName string
}

// ReceivedCount returns |received_indices|.
func (s *UploadSession) ReceivedCount() int {
	return len(s.Received)
}

// IsComplete reports |received| == total_chunks (spec §3 invariant).
func (s *UploadSession) IsComplete() bool {
	return s.ReceivedCount() == s.TotalChunks
}

// MissingIndices returns the sorted set of not-yet-received chunk indices.
func (s *UploadSession) MissingIndices() []int {
	missing := make([]int, 0, s.TotalChunks-s.ReceivedCount())
	for i := 0; i < s.TotalChunks; i++ {
		if !s.Received[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// LastChunkSize computes the size of the final chunk per spec §3.
func LastChunkSize(totalSize, chunkSize int64, totalChunks int) int64 {
	return totalSize - int64(totalChunks-1)*chunkSize
}

// TotalChunksFor computes ceil(total_size / chunk_size).
func TotalChunksFor(totalSize, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	n := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}
