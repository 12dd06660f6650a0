// Package metrics exports run progress as Prometheus metrics. A Recorder
// observes the same event stream as the progress display, so nothing in the
// stages knows it exists.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/backmassage/condor/internal/sequence"
)

// Recorder turns sequence events into metrics on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	units    *prometheus.CounterVec
	phases   *prometheus.CounterVec
	progress *prometheus.GaugeVec
	duration *prometheus.HistogramVec

	started map[int]time.Time
}

// NewRecorder registers the condor metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "condor_units_total",
			Help: "Scenes and workers that finished, by stage and result.",
		}, []string{"stage", "result"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "condor_stage_phases_total",
			Help: "Stage phase transitions.",
		}, []string{"stage", "phase"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "condor_stage_progress_ratio",
			Help: "Fraction of the current stage completed.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "condor_stage_duration_seconds",
			Help:    "Wall time from validation to the end of a stage.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"stage"}),
		started: make(map[int]time.Time),
	}
	r.reg.MustRegister(r.units, r.phases, r.progress, r.duration)
	return r
}

// Registry exposes the registry for scraping and tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe records one event. It must be called from a single goroutine.
func (r *Recorder) Observe(ev sequence.Event) {
	stage := ev.Details.Name
	if ev.Status == nil {
		r.phases.WithLabelValues(stage, ev.Phase.String()).Inc()
		switch {
		case ev.Phase == sequence.PhaseValidating:
			r.started[ev.Index] = time.Now()
		case ev.Phase.Done():
			if t, ok := r.started[ev.Index]; ok {
				r.duration.WithLabelValues(stage).Observe(time.Since(t).Seconds())
				delete(r.started, ev.Index)
			}
			if ev.Phase == sequence.PhaseCompleted {
				r.progress.WithLabelValues(stage).Set(1)
			}
		}
		return
	}

	s := ev.Status
	if s.Unit.Completion != nil {
		r.progress.WithLabelValues(stage).Set(s.Unit.Completion.Fraction())
	}
	if s.Child != nil && s.Child.Kind != sequence.UnitProcessing {
		r.units.WithLabelValues(stage, s.Child.Kind.String()).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, log hclog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
