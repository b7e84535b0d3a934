package uploadsession

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/chunkstore"
	"github.com/videoforge/videoforge/internal/fingerprint"
	"github.com/videoforge/videoforge/internal/models"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	root := t.TempDir()
	store, err := chunkstore.New(filepath.Join(root, "temp"), filepath.Join(root, "artifacts"))
	if err != nil {
		t.Fatalf("chunkstore.New() error = %v", err)
	}
	fp := fingerprint.New(1 << 20)
	return New(store, fp, ttl)
}

func TestInitIsIdempotentForMatchingParameters(t *testing.T) {
	m := newTestManager(t, time.Hour)

	r1, err := m.Init("sess1", "video.mp4", 1000, 100, "", nil, "owner1", nil)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	r2, err := m.Init("sess1", "video.mp4", 1000, 100, "", nil, "owner1", nil)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if r1.TotalChunks != r2.TotalChunks {
		t.Errorf("TotalChunks mismatch on idempotent Init: %d != %d", r1.TotalChunks, r2.TotalChunks)
	}
}

func TestInitRejectsMismatchedParameters(t *testing.T) {
	m := newTestManager(t, time.Hour)

	if _, err := m.Init("sess2", "video.mp4", 1000, 100, "", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}
	_, err := m.Init("sess2", "other.mp4", 500, 100, "", nil, "owner1", nil)
	if err == nil {
		t.Fatal("Init() with mismatched params on an existing session should error")
	}
}

func TestInitRejectsNonPositiveSize(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, err := m.Init("sess3", "video.mp4", 0, 100, "", nil, "owner1", nil); err == nil {
		t.Fatal("Init() with zero size should error")
	}
}

func TestAcceptChunkIsIdempotentOnResend(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, err := m.Init("sess4", "video.mp4", 10, 10, "", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}

	ok, count, total, err := m.AcceptChunk("sess4", 0, []byte("0123456789"), "")
	if err != nil || !ok {
		t.Fatalf("AcceptChunk() = %v, %v, %v, %v", ok, count, total, err)
	}

	ok2, count2, _, err := m.AcceptChunk("sess4", 0, []byte("0123456789"), "")
	if err != nil || !ok2 || count2 != 1 {
		t.Fatalf("resend AcceptChunk() = %v, %v, err=%v", ok2, count2, err)
	}
}

func TestAcceptChunkRejectsOutOfRangeIndex(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, err := m.Init("sess5", "video.mp4", 10, 10, "", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := m.AcceptChunk("sess5", 5, []byte("x"), "")
	if err == nil {
		t.Fatal("AcceptChunk() with out-of-range index should error")
	}
	if apperr.TypeOf(err) != apperr.Validation {
		t.Errorf("error type = %v, want Validation", apperr.TypeOf(err))
	}
}

func TestCompleteFailsWhenChunksAreMissing(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, err := m.Init("sess6", "video.mp4", 20, 10, "", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := m.AcceptChunk("sess6", 0, make([]byte, 10), ""); err != nil {
		t.Fatal(err)
	}

	_, _, err := m.Complete("sess6", func(*models.UploadSession, string) (string, string, error) {
		return "", "", nil
	})
	if err == nil {
		t.Fatal("Complete() with a missing chunk should error")
	}

	// the session should still be resumable: a subsequent status lookup
	// must succeed rather than reporting an unknown session.
	if _, err := m.GetStatus("sess6"); err != nil {
		t.Errorf("GetStatus() after failed Complete() = %v, want session to survive", err)
	}
}

func TestCompleteScopesQuickFingerprintDedupToOwner(t *testing.T) {
	m := newTestManager(t, time.Hour)

	if _, err := m.Init("sessA", "video.mp4", 10, 10, "quick:abc", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := m.AcceptChunk("sessA", 0, make([]byte, 10), ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Complete("sessA", func(*models.UploadSession, string) (string, string, error) {
		return "task-a", "video.mp4", nil
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// a different owner uploading the same fingerprint must not dedup
	// against owner1's artifact.
	otherCalled := false
	resB, err := m.Init("sessB", "video.mp4", 10, 10, "quick:abc", nil, "owner2", func(*models.UploadSession, string) (string, string, error) {
		otherCalled = true
		return "", "", nil
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if resB.AlreadyExists || otherCalled {
		t.Error("quick fingerprint should not dedup across owners")
	}

	// the same owner re-uploading the same fingerprint should dedup.
	sameCalled := false
	resC, err := m.Init("sessC", "video.mp4", 10, 10, "quick:abc", nil, "owner1", func(*models.UploadSession, string) (string, string, error) {
		sameCalled = true
		return "task-a", "video.mp4", nil
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !resC.AlreadyExists || !sameCalled {
		t.Error("quick fingerprint should dedup within the same owner")
	}
}

func TestSweepExpiredEvictsPastTTL(t *testing.T) {
	m := newTestManager(t, -time.Second) // already expired on creation
	if _, err := m.Init("sess7", "video.mp4", 10, 10, "", nil, "owner1", nil); err != nil {
		t.Fatal(err)
	}

	n := m.SweepExpired()
	if n != 1 {
		t.Errorf("SweepExpired() = %d, want 1", n)
	}
	if _, err := m.GetStatus("sess7"); err == nil {
		t.Error("session should be gone after SweepExpired()")
	}
}
