package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitersLen(s *semaphore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func TestSemaphoreLimitsConcurrency(t *testing.T) {
	const permits = 2
	const workers = 8

	sem := newSemaphore(permits)
	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer sem.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > permits {
		t.Fatalf("observed %d concurrent holders, limit is %d", got, permits)
	}
}

func TestSemaphoreWakesWaitersInOrder(t *testing.T) {
	sem := newSemaphore(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	const waiters = 4
	order := make(chan int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := sem.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			order <- rank
			sem.Release()
		}(i)
		// Make sure waiter i is queued before waiter i+1 starts.
		deadline := time.Now().Add(2 * time.Second)
		for waitersLen(sem) != i+1 {
			if time.Now().After(deadline) {
				t.Fatalf("waiter %d never queued", i)
			}
			time.Sleep(time.Millisecond)
		}
	}

	sem.Release()
	wg.Wait()
	close(order)

	rank := 0
	for got := range order {
		if got != rank {
			t.Fatalf("waiter %d woke out of order (expected %d)", got, rank)
		}
		rank++
	}
	if rank != waiters {
		t.Fatalf("expected %d waiters to finish, got %d", waiters, rank)
	}
}

func TestSemaphoreAcquireHonorsContext(t *testing.T) {
	sem := newSemaphore(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- sem.Acquire(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for waitersLen(sem) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never queued")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context error from cancelled Acquire")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Acquire never returned")
	}

	// The held permit must survive the cancelled waiter.
	sem.Release()
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	sem.Release()
}
