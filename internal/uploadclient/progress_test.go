package uploadclient

import "testing"

func TestProgressTrackerUploadedBytes(t *testing.T) {
	totalSize := int64(25)
	chunkSize := int64(10)
	totalChunks := 3 // chunks of 10, 10, 5

	tr := newProgressTracker(totalSize, chunkSize, totalChunks, nil, nil)

	tr.mu.Lock()
	tr.received[0] = true
	got := tr.uploadedBytesLocked()
	tr.mu.Unlock()
	if got != 10 {
		t.Errorf("uploadedBytesLocked() after chunk 0 = %d, want 10", got)
	}

	tr.mu.Lock()
	tr.received[2] = true // last chunk, partial size
	got = tr.uploadedBytesLocked()
	tr.mu.Unlock()
	if got != 15 {
		t.Errorf("uploadedBytesLocked() after chunks 0,2 = %d, want 15", got)
	}
}

func TestProgressTrackerBoundaryAlwaysFires(t *testing.T) {
	var calls []Progress
	tr := newProgressTracker(100, 50, 2, nil, func(p Progress) {
		calls = append(calls, p)
	})

	tr.boundary("init")
	tr.boundary("completing")

	if len(calls) != 2 {
		t.Fatalf("boundary() calls = %d, want 2", len(calls))
	}
	if calls[0].Phase != "init" || calls[1].Phase != "completing" {
		t.Errorf("unexpected phases: %+v", calls)
	}
}
