package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/worker"
)

const (
	benchmarkScenes    = 8
	benchmarkMinFrames = 24
	memoryPollInterval = 250 * time.Millisecond
)

// Benchmarker finds the worker count past which adding a worker improves
// throughput by less than the configured threshold, and stores it in the
// parallel encoder configuration.
type Benchmarker struct {
	Info    ClipInfoer
	Decoder worker.Decoder
	Encoder worker.Encoder
	Memory  MemoryProbe
	// MaxWorkers bounds the search. Zero uses the CPU count.
	MaxWorkers int
	Log        hclog.Logger
}

func (*Benchmarker) sealed() {}

func (*Benchmarker) Details() Details { return benchmarkerDetails }

func workersConfigured(c *condor.Condor) bool {
	cfg, err := c.Config.Encoding()
	return err == nil && cfg.Workers > 0
}

func (s *Benchmarker) Validate(c *condor.Condor) (Warnings, error) {
	if workersConfigured(c) {
		return Warnings{ErrWorkersConfigured}, nil
	}
	if s.Decoder == nil || s.Encoder == nil {
		return nil, errors.New("benchmarker needs a decoder and an encoder")
	}
	if cfg, err := c.Config.Benchmark(); err == nil && cfg.Threshold < 0 {
		return nil, fmt.Errorf("benchmark threshold %g is negative", cfg.Threshold)
	}
	return nil, nil
}

func (s *Benchmarker) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	if workersConfigured(c) {
		return nil, nil
	}
	if _, err := indexInput(ctx, c, s.Info, p, benchmarkerDetails.Name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.StageDir(benchmarkerDetails.Name), 0o755); err != nil {
		return nil, fmt.Errorf("create benchmark directory: %w", err)
	}
	return nil, nil
}

// sample picks up to benchmarkScenes scene indices of at least
// benchmarkMinFrames frames, repeating them when there are fewer.
func sample(scenes []scene.Scene) []int {
	var long []int
	for i, sc := range scenes {
		if sc.Frames() >= benchmarkMinFrames {
			long = append(long, i)
		}
	}
	if len(long) == 0 {
		for i := range scenes {
			long = append(long, i)
		}
	}
	if len(long) == 0 {
		return nil
	}
	out := make([]int, benchmarkScenes)
	for j := range out {
		out[j] = long[j%len(long)]
	}
	return out
}

type benchRun struct {
	workers int
	fps     float64
	memory  uint64 // Peak memory taken during the run, in bytes.
}

func (s *Benchmarker) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := benchmarkerDetails.Name
	log := logger(s.Log)
	if workersConfigured(c) {
		p.Whole(Completed(name))
		return nil, nil
	}
	picked := sample(c.Scenes)
	if len(picked) == 0 {
		p.Whole(Completed(name))
		return Warnings{ErrScenesEmpty}, nil
	}

	threshold, maxMemory := condor.DefaultBenchmarkThreshold, uint64(0)
	if cfg, err := c.Config.Benchmark(); err == nil {
		threshold, maxMemory = cfg.Threshold, cfg.MaxMemory
	}
	limit := s.MaxWorkers
	if limit < 1 {
		limit = runtime.NumCPU()
	}
	dir := c.StageDir(name)
	defer os.RemoveAll(dir)

	var (
		best     *benchRun
		warnings Warnings
	)
	for n := 1; n <= limit; n++ {
		if token.Cancelled() {
			return nil, ErrCancelled
		}
		p.Sub(Processing(name, Custom{Name: "workers", Completed: float64(n - 1), Total: float64(limit)}),
			Processing(strconv.Itoa(n)+" workers", Scenes{Total: len(picked)}))

		run, failed, err := s.run(ctx, c, picked, n, filepath.Join(dir, strconv.Itoa(n)), token)
		if err != nil {
			return nil, err
		}
		if token.Cancelled() {
			return nil, ErrCancelled
		}
		if len(failed) > 0 {
			// A run with failures measures less work than it was given.
			log.Warn("benchmark scenes failed, stopping search", "workers", n, "failed", len(failed))
			for _, se := range failed {
				warnings = append(warnings, se)
			}
			break
		}
		log.Debug("benchmark run", "workers", n, "fps", run.fps, "memory", run.memory)

		if maxMemory > 0 && run.memory > maxMemory {
			log.Info("memory cap reached", "workers", n, "memory", run.memory, "max", maxMemory)
			break
		}
		if best != nil && run.fps < best.fps*(1+threshold/100) {
			break
		}
		best = &run
	}
	if best == nil {
		best = &benchRun{workers: 1}
	}

	c.Config.EnsureEncoding().Workers = best.workers
	log.Info("worker count chosen", "workers", best.workers, "fps", best.fps)
	p.Whole(Completed(name))
	return warnings, nil
}

// run encodes the sampled scenes on n workers and reports throughput over
// the scenes that completed. Scenes that failed are returned separately.
func (s *Benchmarker) run(ctx context.Context, c *condor.Condor, picked []int, n int, dir string, token *Token) (benchRun, []*SceneError, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return benchRun{}, nil, err
	}
	defer os.RemoveAll(dir)

	tasks := make([]worker.Task, len(picked))
	for j, i := range picked {
		sc := c.Scenes[i]
		tasks[j] = worker.Task{
			Index:      j,
			ID:         fmt.Sprintf("%s-%d", scene.ID(i), j),
			StartFrame: sc.StartFrame,
			EndFrame:   sc.EndFrame,
			Encoder:    c.SceneEncoder(i),
			Output:     filepath.Join(dir, fmt.Sprintf("%s_%d%s", scene.ID(i), j, condor.SceneExt)),
		}
	}

	pool := &worker.Pool{
		Workers:  n,
		Buffer:   worker.DefaultBuffer(),
		MaxTries: 1,
		Failures: worker.Unlimited(),
		Decoder:  s.Decoder,
		Encoder:  s.Encoder,
		Logger:   logger(s.Log),
	}

	peak := s.watchMemory(ctx)
	start := time.Now()
	outcomes, err := pool.Run(ctx, tasks, token, worker.Hooks{})
	elapsed := time.Since(start)
	used := peak()
	if err != nil && !errors.Is(err, worker.ErrAllFailed) {
		return benchRun{}, nil, fmt.Errorf("benchmark with %d workers: %w", n, err)
	}

	frames := 0
	var failed []*SceneError
	for _, o := range outcomes {
		switch o.State {
		case worker.StateCompleted:
			frames += o.Task.FrameCount()
		case worker.StateFailed:
			failed = append(failed, &SceneError{Scene: o.Task.ID, Err: o.Err})
		}
	}

	fps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		fps = float64(frames) / secs
	}
	return benchRun{workers: n, fps: fps, memory: used}, failed, nil
}

// watchMemory polls available memory until the returned func is called,
// which reports how far it fell below the starting level.
func (s *Benchmarker) watchMemory(ctx context.Context) func() uint64 {
	if s.Memory == nil {
		return func() uint64 { return 0 }
	}
	base, err := s.Memory.AvailableMemory(ctx)
	if err != nil {
		return func() uint64 { return 0 }
	}

	var lowest atomic.Uint64
	lowest.Store(base)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(memoryPollInterval)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				if avail, err := s.Memory.AvailableMemory(ctx); err == nil && avail < lowest.Load() {
					lowest.Store(avail)
				}
			}
		}
	}()
	return func() uint64 {
		close(stop)
		wg.Wait()
		return base - lowest.Load()
	}
}
