// Package uploadsession implements the per-upload state machine of
// spec §4.3: Init -> Open -> Chunk(k)* -> Complete -> Merging ->
// Handed-off, with TTL/Abort eviction from any non-terminal state.
package uploadsession

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/chunkstore"
	"github.com/videoforge/videoforge/internal/fingerprint"
	"github.com/videoforge/videoforge/internal/logger"
	"github.com/videoforge/videoforge/internal/models"
)

// session wraps models.UploadSession with the mutex that guards its
// mutable received-chunk set.
type session struct {
	mu sync.RWMutex
	s  *models.UploadSession
}

// Manager owns the process-wide session registry. State is held
// in-memory behind an instance field rather than a package-level map,
// so multiple Managers can coexist in the same process during tests.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	chunks      *chunkstore.Store
	fingerprint *fingerprint.Service

	ttl time.Duration

	logger *logger.Logger
}

// OnHandoff is invoked with the merged artifact once a session
// completes; it is the C3->C6 handoff of spec §4.3.
type OnHandoff func(session *models.UploadSession, artifactPath string) (taskID, taskName string, err error)

func New(chunks *chunkstore.Store, fp *fingerprint.Service, ttl time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*session),
		chunks:      chunks,
		fingerprint: fp,
		ttl:         ttl,
		logger:      logger.NewLogger("UPLOADSESSION"),
	}
}

type InitResult struct {
	ChunkSize      int64
	TotalChunks    int
	AlreadyExists  bool
	TaskID         string
	TaskName       string
}

// Init opens a session or, if Open already with matching parameters,
// returns the existing view idempotently (spec §8 "Init(x); Init(x)").
func (m *Manager) Init(sessionID, fileName string, totalSize, chunkSize int64, fp string, params map[string]interface{}, ownerID string, onExisting OnHandoff) (*InitResult, error) {
	if totalSize <= 0 {
		return nil, apperr.New(apperr.Validation, "zero-byte or negative-size file is rejected")
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		if existing.s.TotalChunks == 0 {
			// rebuilt from the temp dir by Rebuild, which cannot recover
			// the session parameters: adopt the resuming client's.
			existing.s.FileName, existing.s.TotalSize, existing.s.Fingerprint = fileName, totalSize, fp
			existing.s.OwnerID, existing.s.ChunkSize, existing.s.Params = ownerID, chunkSize, params
			existing.s.TotalChunks = models.TotalChunksFor(totalSize, chunkSize)
		}
		if existing.s.FileName != fileName || existing.s.TotalSize != totalSize {
			return nil, apperr.New(apperr.Validation, "session already exists with different parameters")
		}
		return &InitResult{ChunkSize: existing.s.ChunkSize, TotalChunks: existing.s.TotalChunks}, nil
	}
	m.mu.Unlock()

	totalChunks := models.TotalChunksFor(totalSize, chunkSize)

	// C2 dedup: if the fingerprint matches an existing artifact, bypass
	// transfer entirely and hand off to C6 immediately (spec §4.3).
	if path, ok := m.fingerprint.Match(ownerID, fp, totalSize); ok {
		taskID, taskName, err := onExisting(&models.UploadSession{
			ID: sessionID, FileName: fileName, TotalSize: totalSize,
			Fingerprint: fp, ChunkSize: chunkSize, TotalChunks: totalChunks, Params: params,
		}, path)
		if err != nil {
			return nil, err
		}
		return &InitResult{ChunkSize: chunkSize, TotalChunks: totalChunks, AlreadyExists: true, TaskID: taskID, TaskName: taskName}, nil
	}

	if err := m.chunks.EnsureSessionDir(sessionID); err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "create session staging dir", err)
	}

	s := &models.UploadSession{
		ID:          sessionID,
		FileName:    fileName,
		TotalSize:   totalSize,
		Fingerprint: fp,
		OwnerID:     ownerID,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		TempDir:     m.chunks.SessionDir(sessionID),
		Received:    make(map[int]bool),
		Params:      params,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(m.ttl),
		State:       models.SessionOpen,
	}

	m.mu.Lock()
	m.sessions[sessionID] = &session{s: s}
	m.mu.Unlock()

	return &InitResult{ChunkSize: chunkSize, TotalChunks: totalChunks}, nil
}

func (m *Manager) get(sessionID string) (*session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.Validation, "unknown upload session")
	}
	return sess, nil
}

// AcceptChunk is idempotent on re-send of the same index (spec §8).
func (m *Manager) AcceptChunk(sessionID string, index int, data []byte, tag string) (accepted bool, receivedCount, totalChunks int, err error) {
	sess, err := m.get(sessionID)
	if err != nil {
		return false, 0, 0, err
	}

	sess.mu.Lock()
	if time.Now().After(sess.s.ExpiresAt) {
		sess.mu.Unlock()
		m.evict(sessionID)
		return false, 0, 0, apperr.New(apperr.Validation, "upload session expired")
	}
	if sess.s.State != models.SessionOpen {
		total := sess.s.TotalChunks
		sess.mu.Unlock()
		return false, 0, total, apperr.New(apperr.Validation, "session is not accepting chunks")
	}
	if index < 0 || index >= sess.s.TotalChunks {
		total := sess.s.TotalChunks
		sess.mu.Unlock()
		return false, 0, total, apperr.New(apperr.Validation, "chunk index out of range")
	}
	alreadyReceived := sess.s.Received[index]
	sess.mu.Unlock()

	if alreadyReceived {
		sess.mu.RLock()
		defer sess.mu.RUnlock()
		return true, len(sess.s.Received), sess.s.TotalChunks, nil
	}

	if err := m.chunks.WriteChunk(sessionID, index, data, tag); err != nil {
		return false, 0, 0, err
	}

	sess.mu.Lock()
	sess.s.Received[index] = true
	count := len(sess.s.Received)
	total := sess.s.TotalChunks
	sess.mu.Unlock()

	return true, count, total, nil
}

type StatusResult struct {
	ReceivedIndices []int
	Total           int
	UploadedBytes   int64
	TotalBytes      int64
}

func (m *Manager) GetStatus(sessionID string) (*StatusResult, error) {
	sess, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	indices := make([]int, 0, len(sess.s.Received))
	for idx := range sess.s.Received {
		indices = append(indices, idx)
	}

	var uploaded int64
	lastIdx := sess.s.TotalChunks - 1
	for _, idx := range indices {
		if idx == lastIdx {
			uploaded += models.LastChunkSize(sess.s.TotalSize, sess.s.ChunkSize, sess.s.TotalChunks)
		} else {
			uploaded += sess.s.ChunkSize
		}
	}

	return &StatusResult{
		ReceivedIndices: indices,
		Total:           sess.s.TotalChunks,
		UploadedBytes:   uploaded,
		TotalBytes:      sess.s.TotalSize,
	}, nil
}

// Complete is a barrier: it is rejected if any index is missing, and is
// not idempotent (spec §8: a second call returns unknown-session).
func (m *Manager) Complete(sessionID string, onHandoff OnHandoff) (taskID, taskName string, err error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", "", apperr.New(apperr.Validation, "unknown upload session")
	}
	delete(m.sessions, sessionID) // not idempotent: removed before merge begins
	m.mu.Unlock()

	sess.mu.Lock()
	if !sess.s.IsComplete() {
		sess.s.State = models.SessionOpen
		missing := sess.s.MissingIndices()
		sess.mu.Unlock()
		m.mu.Lock()
		m.sessions[sessionID] = sess // restore: client will resend missing indices
		m.mu.Unlock()
		return "", "", apperr.WithDetail(apperr.ChunkedUploadError, "incomplete upload", map[string]interface{}{"missing": missing})
	}
	sess.s.State = models.SessionMerging
	fileName, totalSize, totalChunks, fp, ownerID := sess.s.FileName, sess.s.TotalSize, sess.s.TotalChunks, sess.s.Fingerprint, sess.s.OwnerID
	sessCopy := *sess.s
	sess.mu.Unlock()

	artifactPath, mergeErr := m.chunks.Merge(sessionID, fileName, totalChunks)
	if mergeErr != nil {
		sess.mu.Lock()
		sess.s.State = models.SessionErrored
		sess.mu.Unlock()
		return "", "", mergeErr
	}

	if err := m.chunks.ValidateFinal(artifactPath, totalSize, "", nil); err != nil {
		sess.mu.Lock()
		sess.s.State = models.SessionErrored
		sess.mu.Unlock()
		return "", "", err
	}

	taskID, taskName, err = onHandoff(&sessCopy, artifactPath)
	if err != nil {
		sess.mu.Lock()
		sess.s.State = models.SessionErrored
		sess.mu.Unlock()
		return "", "", err
	}

	if fp != "" {
		// quick fingerprints are cheap tuple hashes and only safe to match
		// within the same owner; whole-content hashes are collision-safe
		// and registered globally.
		registerOwner := ownerID
		if strings.HasPrefix(fp, "sha256:") {
			registerOwner = ""
		}
		m.fingerprint.Register(registerOwner, fp, artifactPath, totalSize)
	}

	sess.mu.Lock()
	sess.s.State = models.SessionHandedOff
	sess.mu.Unlock()

	_ = m.chunks.RemoveSessionDir(sessionID)

	return taskID, taskName, nil
}

// Abort evicts a session explicitly (client-initiated cancellation).
func (m *Manager) Abort(sessionID string) {
	m.evict(sessionID)
}

func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	_ = m.chunks.RemoveSessionDir(sessionID)
}

// SweepExpired purges sessions past their TTL; intended to be called
// periodically by the retention engine.
func (m *Manager) SweepExpired() int {
	now := time.Now()
	var expired []string

	m.mu.RLock()
	for id, sess := range m.sessions {
		sess.mu.RLock()
		if now.After(sess.s.ExpiresAt) {
			expired = append(expired, id)
		}
		sess.mu.RUnlock()
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.evict(id)
	}
	return len(expired)
}

// Rebuild scans the temp root on startup and reconstructs in-memory
// sessions eligible for resume (spec §9 "process-wide state").
func (m *Manager) Rebuild(tempRoot string) error {
	entries, err := os.ReadDir(tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan temp root: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessionID := e.Name()
		chunkFiles, err := os.ReadDir(filepath.Join(tempRoot, sessionID))
		if err != nil {
			continue
		}
		received := make(map[int]bool)
		for _, cf := range chunkFiles {
			var idx int
			if _, err := fmt.Sscanf(cf.Name(), "chunk_%06d", &idx); err == nil {
				received[idx] = true
			}
		}
		if len(received) == 0 {
			continue
		}
		m.mu.Lock()
		if _, exists := m.sessions[sessionID]; !exists {
			m.sessions[sessionID] = &session{s: &models.UploadSession{
				ID:        sessionID,
				TempDir:   filepath.Join(tempRoot, sessionID),
				Received:  received,
				State:     models.SessionOpen,
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(m.ttl),
			}}
		}
		m.mu.Unlock()
	}
	return nil
}
