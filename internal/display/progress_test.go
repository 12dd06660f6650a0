package display

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/backmassage/condor/internal/sequence"
	"github.com/backmassage/condor/internal/term"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		c    sequence.Completion
		want string
	}{
		{"percentage", sequence.Percentage(42.5), "42.5%"},
		{"scenes", sequence.Scenes{Completed: 12, Total: 40}, "12/40 scenes"},
		{"passes", sequence.Passes{Completed: 1, Total: 2}, "1/2 passes"},
		{"frames", sequence.Frames{Completed: 100, Total: 2400}, "100/2400 frames"},
		{"pass frames", sequence.PassFrames{Passes: [2]int{2, 2}, Frames: [2]uint64{5, 10}}, "pass 2/2  5/10 frames"},
		{"custom", sequence.Custom{Name: "workers", Completed: 3, Total: 8}, "3/8 workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.c))
		})
	}
}

func status(s sequence.Status) *sequence.Status { return &s }

func TestProgressRenderer(t *testing.T) {
	term.Configure("never")
	var buf bytes.Buffer
	r := NewProgressRenderer(&buf, 2)
	enc := sequence.Details{Name: "Parallel Encoder"}

	r.Observe(sequence.Event{Index: 0, Details: enc, Phase: sequence.PhaseProcessing})
	r.Observe(sequence.Event{Index: 0, Details: enc, Phase: sequence.PhaseProcessing, Status: status(sequence.Subprocess(
		sequence.Processing("Parallel Encoder", sequence.Scenes{Completed: 1, Total: 4}),
		sequence.Failed("00002", errors.New("exit status 1")),
	))})
	r.Observe(sequence.Event{Index: 0, Details: enc, Phase: sequence.PhaseCompleted})
	r.Observe(sequence.Event{Index: 1, Details: sequence.Details{Name: "Quality Check"}, Phase: sequence.PhaseCancelled})
	r.Finish()
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "Parallel Encoder: scene 00002 failed: exit status 1")
	assert.Contains(t, out, "[1/2] Parallel Encoder  completed")
	assert.Contains(t, out, "[2/2] Quality Check  cancelled")

	n := buf.Len()
	r.Observe(sequence.Event{Index: 1, Phase: sequence.PhaseFailed})
	assert.Equal(t, n, buf.Len(), "finished renderer stays quiet")
}
