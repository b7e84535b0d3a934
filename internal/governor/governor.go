// Package governor implements the concurrency governor (C9): bounded,
// live-resizable pools gating simultaneous uploads and downloads.
package governor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/videoforge/videoforge/internal/logger"
)

type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

// pool is a resizable counting semaphore. Resize never drops waiters:
// shrinking simply stops issuing new tokens until enough have been
// released; growing tops the channel back up.
type pool struct {
	mu     sync.Mutex
	tokens chan struct{}
	limit  int
}

func newPool(size int) *pool {
	p := &pool{tokens: make(chan struct{}, size), limit: size}
	for i := 0; i < size; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

func (p *pool) acquire(ctx context.Context) error {
	select {
	case <-p.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	// if the pool was shrunk below the number of outstanding tokens,
	// drop this release instead of growing back past the new limit.
	if len(p.tokens) < p.limit {
		p.tokens <- struct{}{}
	}
}

func (p *pool) resize(newSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delta := newSize - p.limit
	p.limit = newSize
	if delta > 0 {
		for i := 0; i < delta; i++ {
			select {
			case p.tokens <- struct{}{}:
			default:
			}
		}
	}
	// shrinking: released tokens beyond the new limit are simply not
	// re-added (see release()); in-flight operations are never killed.
}

// Governor holds the two bounded pools and a rate limiter used to
// smooth burst admission (distinct from the hard cap).
type Governor struct {
	mu      sync.RWMutex
	pools   map[Kind]*pool
	limiter *rate.Limiter
	logger  *logger.Logger
}

func New(uploadConcurrency, downloadConcurrency int) *Governor {
	return &Governor{
		pools: map[Kind]*pool{
			KindUpload:   newPool(uploadConcurrency),
			KindDownload: newPool(downloadConcurrency),
		},
		limiter: rate.NewLimiter(rate.Limit(downloadConcurrency+uploadConcurrency), uploadConcurrency+downloadConcurrency),
		logger:  logger.NewLogger("GOVERNOR"),
	}
}

// Resize live-resizes the named pool's bound.
func (g *Governor) Resize(kind Kind, newSize int) error {
	g.mu.RLock()
	p, ok := g.pools[kind]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown pool kind %q", kind)
	}
	p.resize(newSize)
	g.logger.Printf("resized %s pool to %d", kind, newSize)
	return nil
}

// Execute acquires a slot in the named pool, runs op, and releases the
// slot on every exit path (including panics propagated by the caller).
func Execute[T any](ctx context.Context, g *Governor, taskID string, kind Kind, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	g.mu.RLock()
	p, ok := g.pools[kind]
	g.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("unknown pool kind %q", kind)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	if err := p.acquire(ctx); err != nil {
		return zero, err
	}
	defer p.release()

	return op(ctx)
}
