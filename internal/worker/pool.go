package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/semaphore"
)

var (
	ErrNoWorkers        = errors.New("must have at least one worker")
	ErrFailureThreshold = errors.New("too many scenes failed")
	ErrAllFailed        = errors.New("every scene failed")
)

// State is where a task ended up.
type State int

const (
	StatePending   State = iota // Never dispatched.
	StateCompleted              // Encoded and renamed into place.
	StateFailed                 // Every attempt failed.
)

// Outcome is the result for one task. Only the worker that ran the task
// writes it.
type Outcome struct {
	Task        Task
	State       State
	Bytes       uint64
	StartedOn   int64
	CompletedOn int64
	Attempts    int
	Err         error
}

// Hooks receive events from worker goroutines. Each hook call concerns
// exactly one task, and calls for one task never overlap. Any hook may be nil.
type Hooks struct {
	Started  func(t Task, attempt int)
	Progress func(t Task, pass int, frames uint64)
	Done     func(o Outcome)
}

// Pool runs tasks on Workers goroutines.
type Pool struct {
	Workers  int
	Buffer   BufferStrategy
	MaxTries int
	Failures FailurePolicy
	Backoff  time.Duration
	Decoder  Decoder
	Encoder  Encoder
	Logger   hclog.Logger
}

type prepared struct {
	task   Task
	frames io.ReadCloser
	err    error
}

// Run encodes tasks in ascending StartFrame order and returns one Outcome
// per task in that order.
//
// A supplier goroutine takes a permit, opens the decoder stream and queues
// the task; workers encode and then release the permit, so at most
// Buffer.Permits(Workers) streams are open at once. A failed task never
// stops its siblings. Dispatch stops early when token is cancelled, when
// ctx ends, or when Failures is exceeded; in-flight tasks still finish.
func (p *Pool) Run(ctx context.Context, tasks []Task, token Token, hooks Hooks) ([]Outcome, error) {
	if p.Workers < 1 {
		return nil, ErrNoWorkers
	}
	if p.Decoder == nil || p.Encoder == nil {
		return nil, errors.New("worker pool needs a decoder and an encoder")
	}
	log := p.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	queue := slices.Clone(tasks)
	slices.SortStableFunc(queue, func(a, b Task) int { return a.StartFrame - b.StartFrame })
	outcomes := make([]Outcome, len(queue))
	for i, t := range queue {
		outcomes[i] = Outcome{Task: t}
	}

	permits := p.Buffer.Permits(p.Workers)
	sem := semaphore.New(permits)
	ready := make(chan int, permits)
	streams := make([]prepared, len(queue))

	var (
		failed  atomic.Int64
		stopped atomic.Bool
	)
	stop := func() bool {
		return stopped.Load() || (token != nil && token.Cancelled())
	}

	var g errgroup.Group

	g.Go(func() error {
		defer close(ready)
		for i, t := range queue {
			if stop() {
				log.Debug("dispatch stopped", "remaining", len(queue)-i)
				return nil
			}
			if _, err := sem.AcquireContext(ctx); err != nil {
				return err
			}
			rc, err := p.Decoder.Decode(ctx, t)
			streams[i] = prepared{task: t, frames: rc, err: err}
			ready <- i
		}
		return nil
	})

	for range p.Workers {
		g.Go(func() error {
			for i := range ready {
				o := p.runTask(ctx, streams[i], hooks, log)
				streams[i] = prepared{}
				outcomes[i] = o
				if o.State == StateFailed {
					if n := failed.Add(1); p.Failures.Exceeded(int(n)) && !stopped.Swap(true) {
						log.Error("failure threshold exceeded, stopping dispatch", "failed", n, "max", p.Failures.MaxFailures)
					}
				}
				sem.Release()

				if hooks.Done != nil {
					hooks.Done(o)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return outcomes, err
	}

	nFailed, dispatched := 0, 0
	for _, o := range outcomes {
		switch o.State {
		case StateFailed:
			nFailed++
			dispatched++
		case StateCompleted:
			dispatched++
		}
	}
	switch {
	case stopped.Load():
		return outcomes, fmt.Errorf("%w: %d failed, limit %d", ErrFailureThreshold, nFailed, p.Failures.MaxFailures)
	case dispatched > 0 && nFailed == dispatched:
		return outcomes, fmt.Errorf("%w (%d scenes)", ErrAllFailed, nFailed)
	}
	return outcomes, nil
}

// runTask encodes one task with retries. The first attempt uses the stream
// opened by the supplier; retries open a fresh one.
func (p *Pool) runTask(ctx context.Context, prep prepared, hooks Hooks, log hclog.Logger) Outcome {
	t := prep.task
	o := Outcome{Task: t, StartedOn: scene.NowMillis()}
	rs := NewRetryState(p.MaxTries, p.Backoff)

	frames, openErr := prep.frames, prep.err
	for {
		o.Attempts++
		if hooks.Started != nil {
			hooks.Started(t, o.Attempts)
		}
		var err error
		if openErr != nil {
			err = fmt.Errorf("decode: %w", openErr)
		} else {
			o.Bytes, err = p.encode(ctx, t, frames, hooks)
		}
		if frames != nil {
			frames.Close()
		}
		if err == nil {
			o.State = StateCompleted
			o.CompletedOn = scene.NowMillis()
			log.Debug("scene encoded", "scene", t.ID, "bytes", o.Bytes, "attempts", o.Attempts)
			return o
		}

		action := rs.Advance(err)
		log.Warn("scene attempt failed", "scene", t.ID, "attempt", o.Attempts, "error", err)
		if action == RetryNone {
			o.State = StateFailed
			o.Err = err
			o.CompletedOn = scene.NowMillis()
			if t.Output != "" {
				os.Remove(t.TempOutput())
			}
			return o
		}
		if action == RetryBackoff {
			if werr := rs.Wait(ctx); werr != nil {
				o.State = StateFailed
				o.Err = errors.Join(err, werr)
				o.CompletedOn = scene.NowMillis()
				return o
			}
		}
		frames, openErr = p.Decoder.Decode(ctx, t)
	}
}

func (p *Pool) encode(ctx context.Context, t Task, frames io.Reader, hooks Hooks) (uint64, error) {
	progress := func(pass int, n uint64) {
		if hooks.Progress != nil {
			hooks.Progress(t, pass, n)
		}
	}
	size, err := p.Encoder.Encode(ctx, t, frames, progress)
	if err != nil {
		return 0, err
	}
	if t.Output == "" {
		return size, nil
	}
	if err := os.Rename(t.TempOutput(), t.Output); err != nil {
		return 0, fmt.Errorf("finalize output: %w", err)
	}
	return size, nil
}
