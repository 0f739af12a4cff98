package workerdispatch

import (
	"context"
	"time"
)

// Semaphore bounds concurrent in-flight submissions from this client to one
// worker endpoint, mirroring the worker's own default-4 process-spawn
// back-pressure (§4.5) on the caller's side so a slow worker doesn't queue
// unbounded work here. Acquire blocks up to the configured wait and returns
// ErrWorkerAtCapacity on timeout, exactly as the worker's own semaphore
// would reject over capacity.
type Semaphore struct {
	slots chan struct{}
	wait  time.Duration
}

// NewSemaphore creates a semaphore with the given capacity (default 4 per
// §4.5) and acquire timeout (default 30s per §4.5).
func NewSemaphore(capacity int, wait time.Duration) *Semaphore {
	if capacity <= 0 {
		capacity = 4
	}
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &Semaphore{slots: make(chan struct{}, capacity), wait: wait}
}

// Acquire reserves a slot, blocking up to s.wait or until ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(s.wait)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrWorkerAtCapacity
	}
}
