package uploadclient

import (
	"sync"
	"time"
)

// progressTracker implements spec §4.4's sampled + boundary reporting:
// sampled at >= 500ms intervals, always emitted on phase changes and
// chunk completions that cross the sample window. Uploaded bytes are
// computed exactly from the received-index set, not estimated.
type progressTracker struct {
	mu sync.Mutex

	totalSize   int64
	chunkSize   int64
	totalChunks int
	received    map[int]bool

	lastSample time.Time
	onProgress ProgressFunc
}

func newProgressTracker(totalSize, chunkSize int64, totalChunks int, received map[int]bool, onProgress ProgressFunc) *progressTracker {
	if received == nil {
		received = make(map[int]bool)
	}
	return &progressTracker{
		totalSize:   totalSize,
		chunkSize:   chunkSize,
		totalChunks: totalChunks,
		received:    received,
		onProgress:  onProgress,
	}
}

func (t *progressTracker) uploadedBytesLocked() int64 {
	lastIdx := t.totalChunks - 1
	var sum int64
	for idx := range t.received {
		if idx == lastIdx {
			sum += t.totalSize - int64(t.totalChunks-1)*t.chunkSize
		} else {
			sum += t.chunkSize
		}
	}
	return sum
}

func (t *progressTracker) chunkDone(index int) {
	t.mu.Lock()
	t.received[index] = true
	uploaded := t.uploadedBytesLocked()
	sample := time.Since(t.lastSample) >= 500*time.Millisecond
	if sample {
		t.lastSample = time.Now()
	}
	t.mu.Unlock()

	if sample && t.onProgress != nil {
		t.onProgress(Progress{UploadedBytes: uploaded, TotalBytes: t.totalSize, Phase: "uploading"})
	}
}

// boundary always emits, regardless of the sample window, for phase
// transitions (completing, done).
func (t *progressTracker) boundary(phase string) {
	t.mu.Lock()
	uploaded := t.uploadedBytesLocked()
	t.lastSample = time.Now()
	t.mu.Unlock()

	if t.onProgress != nil {
		t.onProgress(Progress{UploadedBytes: uploaded, TotalBytes: t.totalSize, Phase: phase})
	}
}
