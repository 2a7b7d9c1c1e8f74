package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, cancel
}

func TestLoopRunsCallbacksInOrderOnOneGoroutine(t *testing.T) {
	loop, _ := startLoop(t)
	var (
		mu    sync.Mutex
		order []int
	)
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		if err := loop.Post(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	wg.Wait()
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLoopCallReturnsCallbackError(t *testing.T) {
	loop, _ := startLoop(t)
	want := errors.New("boom")
	err := loop.Call(context.Background(), func() error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestLoopQueuesBeforeRun(t *testing.T) {
	loop := New()
	ran := make(chan struct{})
	if err := loop.Post(func() { close(ran) }); err != nil {
		t.Fatalf("post: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("queued callback never ran")
	}
}

func TestLoopRejectsPostAfterStop(t *testing.T) {
	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
	if err := loop.Post(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := loop.Run(context.Background()); err == nil {
		t.Fatalf("expected error when restarting a stopped loop")
	}
}
