package semaphore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"one", 1, 1},
		{"several", 4, 4},
		{"zero raised to one", 0, 1},
		{"negative raised to one", -3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.capacity)
			assert.Equal(t, tt.want, s.Capacity())
			assert.Equal(t, tt.want, s.Available())
		})
	}
}

func TestTryAcquire_ReturnsRemainingCount(t *testing.T) {
	s := New(2)

	id, ok := s.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok = s.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, 0, id)

	_, ok = s.TryAcquire()
	assert.False(t, ok, "no permits should be left")

	s.Release()
	assert.Equal(t, 1, s.Available())
}

func TestRelease_WithoutAcquirePanics(t *testing.T) {
	s := New(1)
	assert.Panics(t, func() { s.Release() })
}

func TestAcquire_NeverExceedsCapacity(t *testing.T) {
	const (
		capacity   = 3
		goroutines = 32
		rounds     = 50
	)
	s := New(capacity)

	var held, peak atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				s.Acquire()
				n := held.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Microsecond)
				held.Add(-1)
				s.Release()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Equal(t, capacity, s.Available(), "all permits should be returned")
}

func TestAcquire_UnblocksOnRelease(t *testing.T) {
	s := New(1)
	s.Acquire()

	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while no permit was available")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
}

func TestAcquireContext_Cancelled(t *testing.T) {
	s := New(1)
	s.Acquire()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.AcquireContext(ctx)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("AcquireContext did not observe cancellation")
	}
	assert.Equal(t, 0, s.Available(), "cancelled waiter must not take a permit")

	s.Release()
	assert.Equal(t, 1, s.Available())
}

func TestAcquireContext_CancelledWaiterDoesNotStrandOthers(t *testing.T) {
	s := New(1)
	s.Acquire()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = s.AcquireContext(ctx) }()

	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	s.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("live waiter was stranded after a cancelled waiter woke")
	}
}
