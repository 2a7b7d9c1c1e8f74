package cohort

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// InvariantViolation is the panic value raised when a cohort receives more
// signals than its target.
type InvariantViolation struct {
	Target  int
	Signals int64
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("cohort: signal %d exceeds target %d", v.Signals, v.Target)
}

// Cohort counts down from a fixed target and releases its waiters once.
type Cohort struct {
	target    int
	remaining atomic.Int64
	signals   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a cohort expecting exactly n signals. A cohort of zero is
// complete on return.
func New(n int) *Cohort {
	if n < 0 {
		panic(fmt.Sprintf("cohort: negative target %d", n))
	}
	c := &Cohort{
		target: n,
		done:   make(chan struct{}),
	}
	c.remaining.Store(int64(n))
	if n == 0 {
		c.release()
	}
	return c
}

// Signal records one finished sub-task. It is safe for concurrent use.
func (c *Cohort) Signal() {
	count := c.signals.Add(1)
	if count > int64(c.target) {
		panic(&InvariantViolation{Target: c.target, Signals: count})
	}
	if c.remaining.Add(-1) == 0 {
		c.release()
	}
}

// Done returns a channel that is closed when every expected signal arrived.
func (c *Cohort) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the cohort completes or ctx ends.
func (c *Cohort) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete reports whether the barrier has fired.
func (c *Cohort) Complete() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Target returns the number of signals the cohort was created with.
func (c *Cohort) Target() int {
	return c.target
}

// Remaining returns how many signals are still outstanding.
func (c *Cohort) Remaining() int {
	return int(c.remaining.Load())
}

func (c *Cohort) release() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
