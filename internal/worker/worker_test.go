package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStrategy_Permits(t *testing.T) {
	for w := 0; w <= 16; w++ {
		for b := 0; b <= 4; b++ {
			assert.Equal(t, w, BufferStrategy{Kind: BufferNone}.Permits(w))
			assert.Equal(t, w+b, BufferStrategy{Kind: BufferWorkers, Extra: b}.Permits(w))
			assert.Equal(t, 2*w, BufferStrategy{Kind: BufferMaximum}.Permits(w))
		}
	}
	assert.Equal(t, 5, DefaultBuffer().Permits(4))
}

func TestParseBuffer(t *testing.T) {
	tests := []struct {
		in      string
		want    BufferStrategy
		wantErr bool
	}{
		{"none", BufferStrategy{Kind: BufferNone}, false},
		{"Maximum", BufferStrategy{Kind: BufferMaximum}, false},
		{"workers", DefaultBuffer(), false},
		{"workers:3", BufferStrategy{Kind: BufferWorkers, Extra: 3}, false},
		{"workers:-1", BufferStrategy{}, true},
		{"none:2", BufferStrategy{}, true},
		{"lots", BufferStrategy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBuffer(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			back, err := ParseBuffer(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, back)
		})
	}
}

func TestFailurePolicy(t *testing.T) {
	assert.False(t, Unlimited().Exceeded(1000))
	assert.False(t, FailurePolicy{MaxFailures: 2}.Exceeded(2))
	assert.True(t, FailurePolicy{MaxFailures: 2}.Exceeded(3))
	assert.True(t, FailurePolicy{MaxFailures: 0}.Exceeded(1))
}

func TestRetryState_Advance(t *testing.T) {
	rs := NewRetryState(3, 0)
	assert.Equal(t, RetryAgain, rs.Advance(errors.New("crash")))
	assert.Equal(t, RetryBackoff, rs.Advance(ErrResourceExhausted))
	assert.Equal(t, RetryNone, rs.Advance(errors.New("crash")), "limit reached")

	rs = NewRetryState(3, 0)
	assert.Equal(t, RetryNone, rs.Advance(Permanent(errors.New("bad option"))))

	rs = NewRetryState(3, 0)
	assert.Equal(t, RetryNone, rs.Advance(context.Canceled))
}

func TestTask_TempOutput(t *testing.T) {
	task := Task{Output: filepath.Join("scenes", "00003.mkv")}
	assert.Equal(t, filepath.Join("scenes", "00003.temp.mkv"), task.TempOutput())
	assert.Equal(t, 4, Task{Frames: []int{1, 2, 3, 4}, StartFrame: 0, EndFrame: 100}.FrameCount())
}

type fakeDecoder struct {
	open, peak atomic.Int64
	calls      atomic.Int64
}

type trackedStream struct {
	io.Reader
	d    *fakeDecoder
	once sync.Once
}

func (s *trackedStream) Close() error {
	s.once.Do(func() { s.d.open.Add(-1) })
	return nil
}

func (d *fakeDecoder) Decode(_ context.Context, t Task) (io.ReadCloser, error) {
	d.calls.Add(1)
	n := d.open.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &trackedStream{Reader: strings.NewReader(t.ID), d: d}, nil
}

type fakeEncoder struct {
	fail  func(t Task, attempt int) error
	delay time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func (e *fakeEncoder) Encode(ctx context.Context, t Task, frames io.Reader, progress func(int, uint64)) (uint64, error) {
	e.mu.Lock()
	if e.attempts == nil {
		e.attempts = make(map[string]int)
	}
	e.attempts[t.ID]++
	n := e.attempts[t.ID]
	e.mu.Unlock()

	b, _ := io.ReadAll(frames)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	progress(1, uint64(t.FrameCount()))
	if e.fail != nil {
		if err := e.fail(t, n); err != nil {
			return 0, err
		}
	}
	return uint64(len(b)), nil
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		// Reverse order to check sorting.
		j := n - 1 - i
		tasks[i] = Task{Index: j, ID: string(rune('a' + j)), StartFrame: j * 10, EndFrame: j*10 + 10}
	}
	return tasks
}

func TestPool_WorkerIsolation(t *testing.T) {
	enc := &fakeEncoder{fail: func(t Task, _ int) error {
		if t.Index == 2 {
			return errors.New("deterministic failure")
		}
		return nil
	}}
	p := &Pool{Workers: 3, Buffer: DefaultBuffer(), MaxTries: 2, Failures: Unlimited(), Decoder: &fakeDecoder{}, Encoder: enc}

	var (
		mu   sync.Mutex
		done []Outcome
	)
	outcomes, err := p.Run(context.Background(), makeTasks(8), nil, Hooks{Done: func(o Outcome) {
		mu.Lock()
		done = append(done, o)
		mu.Unlock()
	}})
	require.NoError(t, err)
	require.Len(t, outcomes, 8)
	assert.Len(t, done, 8)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Task.Index, "outcomes follow start frame order")
		if i == 2 {
			assert.Equal(t, StateFailed, o.State)
			assert.Equal(t, 2, o.Attempts)
			assert.EqualError(t, o.Err, "deterministic failure")
			continue
		}
		assert.Equal(t, StateCompleted, o.State, "scene %d", i)
		assert.Equal(t, uint64(1), o.Bytes)
	}
}

func TestPool_PermitsBoundOpenStreams(t *testing.T) {
	dec := &fakeDecoder{}
	p := &Pool{Workers: 2, Buffer: BufferStrategy{Kind: BufferWorkers, Extra: 1}, MaxTries: 1,
		Failures: Unlimited(), Decoder: dec, Encoder: &fakeEncoder{delay: 2 * time.Millisecond}}

	_, err := p.Run(context.Background(), makeTasks(20), nil, Hooks{})
	require.NoError(t, err)
	assert.LessOrEqual(t, dec.peak.Load(), int64(3))
	assert.Equal(t, int64(0), dec.open.Load(), "every stream is closed")
}

func TestPool_RetryReopensStream(t *testing.T) {
	dec := &fakeDecoder{}
	enc := &fakeEncoder{fail: func(_ Task, attempt int) error {
		if attempt == 1 {
			return errors.New("flaky")
		}
		return nil
	}}
	p := &Pool{Workers: 1, Buffer: DefaultBuffer(), MaxTries: 3, Failures: Unlimited(), Decoder: dec, Encoder: enc}
	outcomes, err := p.Run(context.Background(), makeTasks(2), nil, Hooks{})
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.Equal(t, StateCompleted, o.State)
		assert.Equal(t, 2, o.Attempts)
	}
	assert.Equal(t, int64(4), dec.calls.Load())
}

func TestPool_FailureThreshold(t *testing.T) {
	enc := &fakeEncoder{fail: func(t Task, _ int) error {
		if t.Index%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}}
	p := &Pool{Workers: 1, Buffer: BufferStrategy{Kind: BufferNone}, MaxTries: 1,
		Failures: FailurePolicy{MaxFailures: 1}, Decoder: &fakeDecoder{}, Encoder: enc}

	outcomes, err := p.Run(context.Background(), makeTasks(10), nil, Hooks{})
	assert.ErrorIs(t, err, ErrFailureThreshold)

	pending := 0
	for _, o := range outcomes {
		if o.State == StatePending {
			pending++
		}
	}
	assert.Positive(t, pending, "dispatch stops once the threshold is crossed")
}

func TestPool_AllFailedIsFatal(t *testing.T) {
	enc := &fakeEncoder{fail: func(Task, int) error { return Permanent(errors.New("bad option")) }}
	p := &Pool{Workers: 2, Buffer: DefaultBuffer(), MaxTries: 3, Failures: Unlimited(), Decoder: &fakeDecoder{}, Encoder: enc}

	outcomes, err := p.Run(context.Background(), makeTasks(3), nil, Hooks{})
	assert.ErrorIs(t, err, ErrAllFailed)
	for _, o := range outcomes {
		assert.Equal(t, 1, o.Attempts, "permanent errors are not retried")
	}
}

type cancelAfter struct{ n, limit atomic.Int64 }

func (c *cancelAfter) Cancelled() bool { return c.n.Add(1) > c.limit.Load() }

func TestPool_TokenStopsDispatch(t *testing.T) {
	tok := &cancelAfter{}
	tok.limit.Store(3)
	p := &Pool{Workers: 1, Buffer: BufferStrategy{Kind: BufferNone}, MaxTries: 1, Failures: Unlimited(),
		Decoder: &fakeDecoder{}, Encoder: &fakeEncoder{}}

	outcomes, err := p.Run(context.Background(), makeTasks(10), tok, Hooks{})
	require.NoError(t, err)
	completed := 0
	for _, o := range outcomes {
		if o.State == StateCompleted {
			completed++
		}
	}
	assert.Equal(t, 3, completed)
}

func TestPool_RenamesTempOutput(t *testing.T) {
	dir := t.TempDir()
	task := Task{ID: "00000", EndFrame: 5, Output: filepath.Join(dir, "00000.mkv")}
	enc := encoderFunc(func(_ context.Context, t Task, _ io.Reader, _ func(int, uint64)) (uint64, error) {
		return 3, os.WriteFile(t.TempOutput(), []byte("abc"), 0o644)
	})
	p := &Pool{Workers: 1, Buffer: DefaultBuffer(), MaxTries: 1, Failures: Unlimited(), Decoder: &fakeDecoder{}, Encoder: enc}

	_, err := p.Run(context.Background(), []Task{task}, nil, Hooks{})
	require.NoError(t, err)
	assert.FileExists(t, task.Output)
	assert.NoFileExists(t, task.TempOutput())
}

type encoderFunc func(context.Context, Task, io.Reader, func(int, uint64)) (uint64, error)

func (f encoderFunc) Encode(ctx context.Context, t Task, r io.Reader, p func(int, uint64)) (uint64, error) {
	return f(ctx, t, r, p)
}

func TestPool_NoWorkers(t *testing.T) {
	_, err := (&Pool{}).Run(context.Background(), nil, nil, Hooks{})
	assert.ErrorIs(t, err, ErrNoWorkers)
}
