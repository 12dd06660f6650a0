package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/worker"
)

// ParallelEncoder encodes every scene that has no output yet on a pool of
// workers.
type ParallelEncoder struct {
	Decoder worker.Decoder
	Encoder worker.Encoder
	// DefaultWorkers picks the worker count when neither the user nor the
	// benchmarker set one.
	DefaultWorkers func() int
	Log            hclog.Logger
}

func (*ParallelEncoder) sealed() {}

func (*ParallelEncoder) Details() Details { return parallelEncoderDetails }

func (s *ParallelEncoder) Validate(c *condor.Condor) (Warnings, error) {
	if s.Decoder == nil || s.Encoder == nil {
		return nil, errors.New("parallel encoder needs a decoder and an encoder")
	}
	if cfg, err := c.Config.Encoding(); err == nil {
		if cfg.Workers < 0 || (cfg.Workers == 0 && s.DefaultWorkers == nil) {
			return nil, worker.ErrNoWorkers
		}
		if cfg.MaxTries < 1 {
			return nil, fmt.Errorf("max tries must be at least 1, got %d", cfg.MaxTries)
		}
	}
	if err := c.Encoder.Validate(); err != nil {
		return nil, err
	}
	for i := range c.Scenes {
		if err := c.SceneEncoder(i).Validate(); err != nil {
			return nil, fmt.Errorf("scene %s: %w", scene.ID(i), err)
		}
	}
	return nil, nil
}

func (s *ParallelEncoder) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	cfg := c.Config.EnsureEncoding()
	if cfg.Workers == 0 && s.DefaultWorkers != nil {
		cfg.Workers = s.DefaultWorkers()
		logger(s.Log).Debug("using default worker count", "workers", cfg.Workers)
	}
	if cfg.Workers < 1 {
		return nil, worker.ErrNoWorkers
	}
	dir := c.ScenesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scenes directory: %w", err)
	}
	// Partial encodes from an interrupted run are never resumed.
	stale, _ := filepath.Glob(filepath.Join(dir, "*.temp"+condor.SceneExt))
	for _, f := range stale {
		os.Remove(f)
	}
	return nil, nil
}

func (s *ParallelEncoder) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := parallelEncoderDetails.Name
	log := logger(s.Log)
	if len(c.Scenes) == 0 {
		p.Whole(Completed(name))
		return Warnings{ErrScenesEmpty}, nil
	}
	cfg := c.Config.EnsureEncoding()

	total := len(c.Scenes)
	var done atomic.Int64
	var tasks []worker.Task
	for i, sc := range c.Scenes {
		out := c.ScenePath(i)
		if fi, err := os.Stat(out); err == nil {
			ed := c.Scenes[i].Data.EnsureEncode()
			if ed.Bytes == 0 {
				ed.Bytes = uint64(fi.Size())
			}
			done.Add(1)
			p.Sub(Processing(name, Scenes{Completed: int(done.Load()), Total: total}), Completed(scene.ID(i)))
			continue
		}
		tasks = append(tasks, worker.Task{
			Index:      i,
			ID:         scene.ID(i),
			StartFrame: sc.StartFrame,
			EndFrame:   sc.EndFrame,
			Encoder:    c.SceneEncoder(i),
			Output:     out,
		})
	}
	if len(tasks) == 0 {
		log.Info("all scenes already encoded", "scenes", total)
		p.Whole(Completed(name))
		return nil, nil
	}
	log.Info("encoding scenes", "scenes", len(tasks), "skipped", total-len(tasks),
		"workers", cfg.Workers, "buffer", cfg.Buffer.String())

	parent := func() Unit {
		return Processing(name, Scenes{Completed: int(done.Load()), Total: total})
	}
	hooks := worker.Hooks{
		Progress: func(t worker.Task, pass int, frames uint64) {
			n := uint64(t.FrameCount())
			var comp Completion = Frames{Completed: frames, Total: n}
			if passes := t.Encoder.PassCount(); passes > 1 {
				comp = PassFrames{Passes: [2]int{pass, passes}, Frames: [2]uint64{frames, n}}
			}
			p.Sub(parent(), Processing(t.ID, comp))
		},
		Done: func(o worker.Outcome) {
			// Each scene is written only by the worker that encoded it.
			if o.State == worker.StateCompleted {
				ed := c.Scenes[o.Task.Index].Data.EnsureEncode()
				ed.StartedOn, ed.CompletedOn = o.StartedOn, o.CompletedOn
				ed.Bytes, ed.Attempts = o.Bytes, o.Attempts
				done.Add(1)
				p.Sub(parent(), Completed(o.Task.ID))
				return
			}
			p.Sub(parent(), Failed(o.Task.ID, o.Err))
		},
	}

	pool := &worker.Pool{
		Workers:  cfg.Workers,
		Buffer:   cfg.Buffer,
		MaxTries: cfg.MaxTries,
		Failures: worker.FailurePolicy{MaxFailures: cfg.MaxFailures},
		Decoder:  s.Decoder,
		Encoder:  s.Encoder,
		Logger:   log,
	}
	outcomes, err := pool.Run(ctx, tasks, token, hooks)

	var warnings Warnings
	for _, o := range outcomes {
		if o.State == worker.StateFailed {
			warnings = append(warnings, &SceneError{Scene: o.Task.ID, Err: fmt.Errorf("encoder failed: %w", o.Err)})
		}
	}
	if err != nil {
		return warnings, err
	}
	if token.Cancelled() {
		return warnings, ErrCancelled
	}
	p.Whole(Completed(name))
	return warnings, nil
}
