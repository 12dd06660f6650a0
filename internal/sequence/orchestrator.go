package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
)

// StageReport is what happened to one stage.
type StageReport struct {
	Details  Details
	Phase    Phase
	Warnings Warnings
	Err      error
	Started  time.Time
	Ended    time.Time
}

// Report covers every stage of a run, in order.
type Report struct {
	Stages []StageReport
}

// Warnings returns every stage's warnings in stage order.
func (r Report) Warnings() Warnings {
	var out Warnings
	for _, s := range r.Stages {
		out = append(out, s.Warnings...)
	}
	return out
}

// Orchestrator runs stages strictly in order.
type Orchestrator struct {
	Stages []Stage
	// Save persists the aggregate after each stage and when the run stops
	// early. Nil disables persistence.
	Save   func(*condor.Condor) error
	Events chan<- Event
	Logger hclog.Logger
}

// Run executes each stage once the previous one completed. It returns
// ErrCancelled when token stops the run, and the stage's error, wrapped in a
// *FatalError unless it is a *ValidationError, when a stage fails. Stages
// after a failed or cancelled one stay not started.
func (o *Orchestrator) Run(ctx context.Context, c *condor.Condor, token *Token) (Report, error) {
	log := o.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	report := Report{Stages: make([]StageReport, len(o.Stages))}
	for i, s := range o.Stages {
		report.Stages[i] = StageReport{Details: s.Details(), Phase: PhaseNotStarted}
	}

	for i, stage := range o.Stages {
		sr := &report.Stages[i]
		if token.Cancelled() || ctx.Err() != nil {
			o.save(c, log)
			return report, ErrCancelled
		}

		sr.Started = time.Now()
		err := o.runStage(ctx, i, stage, c, token, sr, log)
		sr.Ended = time.Now()

		switch {
		case err != nil:
			sr.Phase, sr.Err = PhaseFailed, err
			o.phase(i, sr.Details, PhaseFailed)
			log.Error("stage failed", "stage", sr.Details.Name, "error", err)
			o.save(c, log)
			return report, err
		case token.Cancelled():
			sr.Phase = PhaseCancelled
			o.phase(i, sr.Details, PhaseCancelled)
			log.Warn("stage cancelled", "stage", sr.Details.Name)
			o.save(c, log)
			return report, ErrCancelled
		}

		sr.Phase = PhaseCompleted
		o.phase(i, sr.Details, PhaseCompleted)
		log.Info("stage completed", "stage", sr.Details.Name, "warnings", len(sr.Warnings),
			"elapsed", sr.Ended.Sub(sr.Started).Round(time.Millisecond))
		if o.Save != nil {
			if err := o.Save(c); err != nil {
				return report, &FatalError{Stage: sr.Details.Name, Err: fmt.Errorf("save project: %w", err)}
			}
		}
	}
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, i int, stage Stage, c *condor.Condor, token *Token, sr *StageReport, log hclog.Logger) error {
	d := sr.Details
	log = log.Named(d.Name)

	sr.Phase = PhaseValidating
	o.phase(i, d, PhaseValidating)
	w, err := stage.Validate(c)
	sr.Warnings = append(sr.Warnings, o.logWarnings(log, w)...)
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			err = &ValidationError{Stage: d.Name, Err: err}
		}
		return err
	}

	sr.Phase = PhaseInitializing
	o.phase(i, d, PhaseInitializing)
	w, err = stage.Initialize(ctx, c, NewProgress(o.Events, i, d, PhaseInitializing))
	sr.Warnings = append(sr.Warnings, o.logWarnings(log, w)...)
	if err != nil {
		return fatal(d.Name, err)
	}

	sr.Phase = PhaseProcessing
	o.phase(i, d, PhaseProcessing)
	w, err = stage.Process(ctx, c, NewProgress(o.Events, i, d, PhaseProcessing), token)
	sr.Warnings = append(sr.Warnings, o.logWarnings(log, w)...)
	if err != nil {
		if errors.Is(err, ErrCancelled) && token.Cancelled() {
			return nil
		}
		return fatal(d.Name, err)
	}
	return nil
}

func fatal(stage string, err error) error {
	var fe *FatalError
	var ve *ValidationError
	if errors.As(err, &fe) || errors.As(err, &ve) {
		return err
	}
	return &FatalError{Stage: stage, Err: err}
}

func (o *Orchestrator) logWarnings(log hclog.Logger, w Warnings) Warnings {
	for _, err := range w {
		log.Warn(err.Error())
	}
	return w
}

// phase announces a phase change. These events are never dropped.
func (o *Orchestrator) phase(i int, d Details, p Phase) {
	if o.Events != nil {
		o.Events <- Event{Index: i, Details: d, Phase: p}
	}
}

func (o *Orchestrator) save(c *condor.Condor, log hclog.Logger) {
	if o.Save == nil {
		return
	}
	if err := o.Save(c); err != nil {
		log.Error("could not save project", "error", err)
	}
}
