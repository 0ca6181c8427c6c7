package bridge

import (
	"context"
	"sync"
)

// limiter is a context-aware counting semaphore bounding outstanding
// asks. Capacity 0 means unbounded: Acquire always succeeds immediately.
type limiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	held     int
}

func newLimiter(capacity int) *limiter {
	if capacity < 0 {
		capacity = 0
	}
	l := &limiter{capacity: capacity}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a slot frees or the context is done. A goroutine
// broadcasts on cancellation so blocked waiters can observe the context
// error instead of sleeping forever.
func (l *limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity == 0 {
		l.held++
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.cond.Broadcast()
		case <-done:
		}
	}()

	for l.held >= l.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.held++
	return nil
}

// Release frees a slot and wakes one waiter.
func (l *limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held > 0 {
		l.held--
	}
	l.cond.Signal()
}

// Held returns the number of slots currently taken.
func (l *limiter) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
