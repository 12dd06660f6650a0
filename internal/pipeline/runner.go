package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/display"
	"github.com/backmassage/condor/internal/ffmpeg"
	"github.com/backmassage/condor/internal/logging"
	"github.com/backmassage/condor/internal/probe"
	"github.com/backmassage/condor/internal/sequence"
	"github.com/backmassage/condor/internal/sysinfo"
)

// eventBuffer is how many progress updates may queue before Processing
// updates start being dropped.
const eventBuffer = 256

// Observer receives every event of a run on the consumer goroutine.
type Observer func(sequence.Event)

// Run is the top-level entry point. It resolves paths, opens or resumes the
// project, runs every configured stage and logs the summary. token stops
// dispatching new work; cancelling ctx kills running tools.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger, token *sequence.Token, observers ...Observer) (*RunStats, error) {
	start := time.Now()
	stats := newRunStats()

	paths, err := ResolvePaths(cfg, log)
	if err != nil {
		return stats, err
	}
	c, resumed, err := OpenProject(cfg, paths)
	if err != nil {
		return stats, err
	}
	if resumed {
		log.Info("Resuming project %s (%d scenes)", c.ID, len(c.Scenes))
	} else {
		log.Info("New project %s", c.ID)
	}
	logRunHeader(c, log)

	stages := buildStages(ctx, c, newCollaborators(c.Input.Path, cfg, log))
	events := make(chan sequence.Event, eventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			stats.Observe(ev)
			for _, o := range observers {
				o(ev)
			}
		}
	}()

	orch := &sequence.Orchestrator{
		Stages: stages,
		Save:   condor.Saver(ProjectPath(paths.WorkDir)),
		Events: events,
		Logger: log.Named("sequence"),
	}
	report, runErr := orch.Run(ctx, c, token)
	close(events)
	<-done

	var outSize int64
	if fi, err := os.Stat(c.Output.Path); err == nil {
		outSize = fi.Size()
	}
	stats.finish(c, report, paths.Size, outSize, time.Since(start))
	logSummary(log, report, stats, runErr)
	if runErr == nil {
		AnalyzeScenes(log, c)
	}
	return stats, runErr
}

// collaborators are the external tools every stage reaches through the
// sequence interfaces.
type collaborators struct {
	tools  *ffmpeg.Tools
	prober *probe.Prober
	host   sysinfo.Host
	log    *logging.Logger
}

func newCollaborators(input string, cfg *config.Config, log *logging.Logger) collaborators {
	runner := &ffmpeg.Runner{Verbose: cfg.Verbose, Log: log.Named("ffmpeg")}
	return collaborators{
		tools:  ffmpeg.New(input, runner),
		prober: probe.New(log.Named("probe")),
		log:    log,
	}
}

// buildStages returns the stages c's configuration enables, in run order.
// Parallel encoding and concatenation always run.
func buildStages(ctx context.Context, c *condor.Condor, col collaborators) []sequence.Stage {
	var stages []sequence.Stage
	if c.Config.SceneDetection != nil {
		stages = append(stages, &sequence.SceneDetector{
			Info:   col.prober,
			Scorer: col.tools,
			Log:    col.log.Named("scene-detector"),
		})
	}
	if c.Config.TargetQuality != nil {
		stages = append(stages, &sequence.TargetQuality{
			Info:    col.prober,
			Decoder: col.tools,
			Encoder: col.tools,
			Meter:   col.tools,
			Log:     col.log.Named("target-quality"),
		})
	}
	if c.Config.Benchmarker != nil {
		stages = append(stages, &sequence.Benchmarker{
			Info:       col.prober,
			Decoder:    col.tools,
			Encoder:    col.tools,
			Memory:     col.host,
			MaxWorkers: col.host.LogicalCPUs(ctx),
			Log:        col.log.Named("benchmarker"),
		})
	}
	stages = append(stages,
		&sequence.ParallelEncoder{
			Decoder: col.tools,
			Encoder: col.tools,
			DefaultWorkers: func() int {
				height := 0
				if c.Input.Info != nil {
					height = c.Input.Info.Height
				}
				return col.host.DefaultWorkers(ctx, c.Encoder.Kind, height)
			},
			Log: col.log.Named("parallel-encoder"),
		},
		&sequence.SceneConcatenator{
			Info:   col.prober,
			Concat: col.tools,
			Log:    col.log.Named("scene-concatenator"),
		},
	)
	if c.Config.QualityCheck != nil {
		stages = append(stages, &sequence.QualityCheck{
			Info:  col.prober,
			Meter: col.tools,
			Log:   col.log.Named("quality-check"),
		})
	}
	return stages
}

// --- Logging helpers ---

func logRunHeader(c *condor.Condor, log *logging.Logger) {
	log.Info("Input: %s", c.Input.Path)
	log.Info("Output: %s", c.Output.Path)
	log.Info("Work dir: %s", c.WorkDir)
	log.Info("Encoder: %s, %d pass(es) %v", c.Encoder.Kind, c.Encoder.PassCount(), c.Encoder.Args())
	if tqc, err := c.Config.Quality(); err == nil {
		log.Info("Target quality: %s %.1f-%.1f, %d probes", tqc.Metric, tqc.Target[0], tqc.Target[1], tqc.MaximumProbes)
	}
	if pe, err := c.Config.Encoding(); err == nil {
		if pe.Workers > 0 {
			log.Info("Workers: %d", pe.Workers)
		} else {
			log.Info("Workers: auto")
		}
	}
}

func logSummary(log *logging.Logger, report sequence.Report, stats *RunStats, runErr error) {
	log.Info("==============================")
	for _, sr := range report.Stages {
		line := "  " + sr.Details.Name + ": " + sr.Phase.String()
		if t := stats.Units[sr.Details.Name]; t != nil {
			line += fmt.Sprintf(" (%d completed, %d failed)", t.Completed, t.Failed)
		}
		switch sr.Phase {
		case sequence.PhaseCompleted:
			log.Success("%s", line)
		case sequence.PhaseFailed:
			log.Error("%s", line)
		default:
			log.Info("%s", line)
		}
	}

	if w := report.Warnings(); len(w) > 0 {
		log.Warn("%d warning(s):", len(w))
		for _, err := range w {
			log.Warn("  %v", err)
		}
	}

	switch {
	case errors.Is(runErr, sequence.ErrCancelled):
		log.Warn("Cancelled after %s; run again to resume", display.FormatDuration(stats.Elapsed))
		return
	case runErr != nil:
		log.Error("Failed after %s: %v", display.FormatDuration(stats.Elapsed), runErr)
		return
	}

	log.Info("Scenes: %d, frames: %d, %s in %s", stats.Scenes, stats.Frames,
		display.FormatFPS(stats.FPS()), display.FormatDuration(stats.Elapsed))
	saved := stats.SpaceSaved()
	if saved >= 0 {
		log.Success("Size: %s -> %s (saved %s)",
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes),
			display.FormatBytes(saved))
	} else {
		log.Warn("Size: %s -> %s (output is larger by %s)",
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes),
			display.FormatBytes(-saved))
	}
}
