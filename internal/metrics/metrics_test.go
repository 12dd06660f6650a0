package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/backmassage/condor/internal/sequence"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	d := sequence.Details{Name: "Parallel Encoder"}
	ev := func(s sequence.Status) sequence.Event {
		return sequence.Event{Index: 3, Details: d, Phase: sequence.PhaseProcessing, Status: &s}
	}

	r.Observe(sequence.Event{Index: 3, Details: d, Phase: sequence.PhaseValidating})
	r.Observe(ev(sequence.Subprocess(
		sequence.Processing(d.Name, sequence.Scenes{Completed: 1, Total: 4}),
		sequence.Completed("00000"))))
	r.Observe(ev(sequence.Subprocess(
		sequence.Processing(d.Name, sequence.Scenes{Completed: 1, Total: 4}),
		sequence.Failed("00001", errors.New("boom")))))
	r.Observe(ev(sequence.Subprocess(
		sequence.Processing(d.Name, sequence.Scenes{Completed: 2, Total: 4}),
		sequence.Completed("00002"))))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.units.WithLabelValues(d.Name, "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.units.WithLabelValues(d.Name, "failed")))
	assert.Equal(t, 0.5, testutil.ToFloat64(r.progress.WithLabelValues(d.Name)))

	r.Observe(sequence.Event{Index: 3, Details: d, Phase: sequence.PhaseCompleted})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.progress.WithLabelValues(d.Name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.phases.WithLabelValues(d.Name, "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
	assert.Empty(t, r.started)
}
