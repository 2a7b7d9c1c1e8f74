package process

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startPool(t *testing.T, workers int) (*Pool, func()) {
	t.Helper()
	pool := NewPool(workers)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()
	return pool, func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("pool run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("pool did not stop")
		}
	}
}

func TestPoolRunsEverySubmittedJob(t *testing.T) {
	t.Parallel()
	pool, stop := startPool(t, 4)
	defer stop()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			ran.Add(1)
			wg.Done()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 200 {
		t.Fatalf("expected 200 jobs, got %d", got)
	}
}

func TestPoolDrainsQueuedJobsOnStop(t *testing.T) {
	t.Parallel()
	pool := NewPool(1)
	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func() { ran.Add(1) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := ran.Load(); got != 10 {
		t.Fatalf("expected queued jobs to drain, got %d", got)
	}
	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
	if err := pool.Run(context.Background()); err == nil {
		t.Fatalf("expected second run to fail")
	}
}

func TestPoolDefaultsWorkerCount(t *testing.T) {
	t.Parallel()
	if NewPool(0).Workers() < 1 {
		t.Fatalf("expected at least one worker")
	}
	if err := NewPool(1).Submit(nil); err == nil {
		t.Fatalf("expected nil job to be rejected")
	}
}
