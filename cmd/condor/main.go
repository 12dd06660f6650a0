// Command condor is the CLI entrypoint for the condor chunked video encoder.
//
// It parses flags, validates configuration, and either runs system
// diagnostics (--check) or the scene-by-scene encoding run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/backmassage/condor/internal/check"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/display"
	"github.com/backmassage/condor/internal/logging"
	"github.com/backmassage/condor/internal/metrics"
	"github.com/backmassage/condor/internal/pipeline"
	"github.com/backmassage/condor/internal/sequence"
)

// commit is injected at build time via -ldflags.
var commit = "unknown"

func main() {
	os.Exit(run())
}

func run() int {
	// Bootstrap: the logger doesn't exist yet, so errors go directly to
	// stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "condor: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "condor: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "condor: %v\n", err)
		return 1
	}
	defer log.Close()

	display.PrintBanner(os.Stderr, config.Version)

	if cfg.CheckOnly {
		check.RunCheck(&cfg, log)
		return 0
	}

	log.Info("=== condor v%s (%s) ===", config.Version, commit)
	if err := check.CheckDeps(&cfg); err != nil {
		log.Error("%v", err)
		return 1
	}

	// The first interrupt stops dispatching new scenes and lets running
	// encodes finish; the second kills them.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	token := sequence.NewToken()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, finishing running scenes (interrupt again to abort)")
		token.Cancel()
		select {
		case <-sigCh:
			log.Warn("Aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	bar := display.NewProgressRenderer(os.Stdout, stageCount(&cfg))
	defer bar.Finish()
	observers := []pipeline.Observer{bar.Observe}

	if cfg.MetricsAddr != "" {
		rec := metrics.NewRecorder()
		observers = append(observers, rec.Observe)
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr, log.Named("metrics")); err != nil {
				log.Warn("Metrics endpoint stopped: %v", err)
			}
		}()
	}

	_, err = pipeline.Run(ctx, &cfg, log, token, observers...)
	bar.Finish()
	switch {
	case errors.Is(err, sequence.ErrCancelled):
		return 130
	case err != nil:
		for e := err; e != nil; e = errors.Unwrap(e) {
			log.Debug("  caused by: %v", e)
		}
		return 1
	}
	return 0
}

// stageCount is the bar's stage total for a new project. A resumed project
// may differ; the bar only uses it for the [i/n] label.
func stageCount(cfg *config.Config) int {
	sc := cfg.StageConfig()
	n := 3
	for _, on := range []bool{sc.TargetQuality != nil, sc.Benchmarker != nil, sc.QualityCheck != nil} {
		if on {
			n++
		}
	}
	return n
}
