// Package semaphore provides the counting permit primitive that bounds how
// many scenes may be decoded ahead of the encoders.
//
// The uncontended path is a single compare-and-swap on an atomic counter.
// Callers only touch the mutex and condition variable when they observe zero
// permits, and every wakeup rechecks the counter before proceeding.
package semaphore

import (
	"context"
	"sync"
	"sync/atomic"
)

// Semaphore is a counting semaphore. The zero value is not usable; call [New].
type Semaphore struct {
	count    atomic.Int64
	capacity int64

	mu   sync.Mutex
	cond *sync.Cond
}

// New returns a semaphore holding capacity permits. A capacity below one is
// raised to one.
func New(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	s := &Semaphore{capacity: int64(capacity)}
	s.count.Store(int64(capacity))
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Capacity returns the number of permits the semaphore was created with.
func (s *Semaphore) Capacity() int { return int(s.capacity) }

// Available returns the number of permits not currently held.
func (s *Semaphore) Available() int { return int(s.count.Load()) }

// TryAcquire takes a permit if one is free. The returned id is the number of
// permits left after this acquisition.
func (s *Semaphore) TryAcquire() (int, bool) {
	for {
		n := s.count.Load()
		if n <= 0 {
			return 0, false
		}
		if s.count.CompareAndSwap(n, n-1) {
			return int(n - 1), true
		}
	}
}

// Acquire blocks until a permit is available and takes it.
func (s *Semaphore) Acquire() int {
	for {
		if id, ok := s.TryAcquire(); ok {
			return id
		}
		s.mu.Lock()
		for s.count.Load() <= 0 {
			s.cond.Wait()
		}
		s.mu.Unlock()
	}
}

// AcquireContext is like [Semaphore.Acquire] but gives up when ctx is done.
// No permit is held when an error is returned.
func (s *Semaphore) AcquireContext(ctx context.Context) (int, error) {
	if id, ok := s.TryAcquire(); ok {
		return id, nil
	}
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			s.handOff()
			return 0, err
		}
		if id, ok := s.TryAcquire(); ok {
			return id, nil
		}
		s.mu.Lock()
		for s.count.Load() <= 0 && ctx.Err() == nil {
			s.cond.Wait()
		}
		s.mu.Unlock()
	}
}

// Release returns a permit and wakes one blocked waiter. Releasing more
// permits than were acquired panics.
func (s *Semaphore) Release() {
	for {
		n := s.count.Load()
		if n >= s.capacity {
			panic("semaphore: release without matching acquire")
		}
		if s.count.CompareAndSwap(n, n+1) {
			break
		}
	}
	s.mu.Lock()
	s.cond.Signal()
	s.mu.Unlock()
}

// handOff passes a wakeup on to another waiter when a cancelled caller may
// have consumed a signal meant for a free permit.
func (s *Semaphore) handOff() {
	if s.count.Load() <= 0 {
		return
	}
	s.mu.Lock()
	s.cond.Signal()
	s.mu.Unlock()
}
