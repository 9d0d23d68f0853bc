package batch

import (
	"context"
	"sync"
)

// semaphore is a counting semaphore whose waiters are served in FIFO order
// of request. A plain buffered channel does not guarantee fairness, so the
// wait queue is explicit.
type semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

func newSemaphore(permits int) *semaphore {
	if permits < 1 {
		permits = 1
	}
	return &semaphore{permits: permits}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, waiter := range s.waiters {
			if waiter == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The permit was already handed to us between ctx firing and the
		// removal attempt; pass it along so it is not lost.
		<-ready
		s.Release()
		return ctx.Err()
	}
}

// Release returns a permit, waking the longest-waiting acquirer if any.
func (s *semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		ready := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		close(ready)
		return
	}
	s.permits++
	s.mu.Unlock()
}
