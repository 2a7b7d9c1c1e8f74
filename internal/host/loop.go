// Package host models the editor's cooperative main loop: a single goroutine
// that runs posted callbacks one after another, in order. Code that mutates
// host-owned state (catalog selection, persistence, run resolution) is posted
// here instead of running on worker goroutines.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Post once the loop has exited.
var ErrStopped = errors.New("host: loop stopped")

// Loop is a FIFO of callbacks drained by the goroutine that calls Run.
// A panicking callback is not recovered: it takes the process down, the same
// way a failed invariant in the editor's main thread would.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	running bool
	stopped bool
	wake    chan struct{}
}

// New prepares a loop. Callbacks posted before Run starts are queued.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for the loop goroutine. It never blocks on the loop.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call posts fn and waits for it to finish on the loop goroutine. It must not
// be called from a loop callback.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result := make(chan error, 1)
	if err := l.Post(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains posted callbacks until ctx ends. Callbacks already queued when
// ctx ends still run before Run returns; later posts fail with ErrStopped.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return fmt.Errorf("host: loop already started")
	}
	l.running = true
	l.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			l.drain()
			return nil
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}
