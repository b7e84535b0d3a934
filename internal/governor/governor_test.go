package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteBoundsConcurrency(t *testing.T) {
	g := New(2, 2)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		go func() {
			defer wg.Done()
			Execute(context.Background(), g, "t", KindUpload, func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got > 2 {
		t.Errorf("max concurrent executions = %d, want <= 2", got)
	}
}

func TestResizeGrowsPool(t *testing.T) {
	g := New(1, 1)
	if err := g.Resize(KindUpload, 5); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}

	p := g.pools[KindUpload]
	if p.limit != 5 {
		t.Errorf("pool limit = %d, want 5", p.limit)
	}
}

func TestExecuteUnknownKind(t *testing.T) {
	g := New(1, 1)
	_, err := Execute(context.Background(), g, "t", Kind("bogus"), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	if err == nil {
		t.Error("Execute() with unknown kind should error")
	}
}
