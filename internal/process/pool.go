package process

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolStopped is returned by Submit once the pool is shutting down.
var ErrPoolStopped = errors.New("process: pool stopped")

// Pool runs submitted jobs on a fixed set of worker goroutines. The queue is
// unbounded so Submit never waits on a busy worker.
type Pool struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	stopped bool
}

// NewPool sizes the pool. Values <= 0 use one worker per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Workers returns the worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues job for a worker.
func (p *Pool) Submit(job func()) error {
	if job == nil {
		return fmt.Errorf("process: nil job")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return nil
}

// Run starts the workers and blocks until ctx ends and the queue has drained.
// Jobs queued before cancellation still run.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("process: pool already started")
	}
	p.started = true
	p.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		p.mu.Lock()
		p.stopped = true
		p.cond.Broadcast()
		p.mu.Unlock()
		return nil
	})
	for i := 0; i < p.workers; i++ {
		group.Go(p.work)
	}
	return group.Wait()
}

func (p *Pool) work() error {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return nil
		}
		job := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()
		job()
	}
}
