// Package concurrency provides the bounded-concurrency primitives the
// sync engine uses to cap in-flight calls per external endpoint.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore with FIFO-fair waiters, used to cap
// concurrent in-flight requests per endpoint independently of the rate
// limiter's request-per-minute quota.
type Semaphore struct {
	weighted *semaphore.Weighted
	max      int64
}

// New creates a Semaphore that admits at most max concurrent holders.
func New(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(max)),
		max:      int64(max),
	}
}

// Acquire blocks until a slot is available or ctx is canceled. Waiters are
// served in FIFO order, per the documented behavior of
// golang.org/x/sync/semaphore.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.weighted.Acquire(ctx, 1)
}

// Release frees one slot, waking the longest-waiting blocked Acquire.
func (s *Semaphore) Release() {
	s.weighted.Release(1)
}

// TryAcquire attempts to acquire a slot without blocking.
func (s *Semaphore) TryAcquire() bool {
	return s.weighted.TryAcquire(1)
}

// Capacity returns the configured maximum concurrency.
func (s *Semaphore) Capacity() int {
	return int(s.max)
}
