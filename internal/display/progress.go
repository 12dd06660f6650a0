package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/backmassage/condor/internal/sequence"
	"github.com/backmassage/condor/internal/term"
)

// barMax is the resolution of the bar; fractions are scaled onto it.
const barMax = 1000

// ProgressRenderer draws one progress bar per stage from the run's event
// stream. Phase ends and failed scenes are printed as lines above the bar.
// It is safe to call Finish from another goroutine than Observe.
type ProgressRenderer struct {
	mu       sync.Mutex
	w        io.Writer
	stages   int
	bar      *progressbar.ProgressBar
	index    int
	name     string
	finished bool
}

// NewProgressRenderer returns a renderer writing to w for a run of stages
// stages.
func NewProgressRenderer(w io.Writer, stages int) *ProgressRenderer {
	return &ProgressRenderer{w: w, stages: stages, index: -1}
}

// Observe updates the display for one event.
func (r *ProgressRenderer) Observe(ev sequence.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if ev.Index != r.index {
		r.closeBar()
		r.index = ev.Index
		r.name = ev.Details.Name
	}
	if r.bar == nil && !ev.Phase.Done() {
		r.bar = r.newBar()
	}

	if ev.Status == nil {
		r.phase(ev.Phase)
		return
	}
	st := *ev.Status
	if st.Child != nil && st.Child.Kind == sequence.UnitFailed {
		r.println(term.Paint(term.Red, fmt.Sprintf("  %s: scene %s failed: %v", r.name, st.Child.ID, st.Child.Err)))
	}
	if st.Unit.Kind == sequence.UnitFailed {
		r.println(term.Paint(term.Red, fmt.Sprintf("  %s failed: %v", r.name, st.Unit.Err)))
		return
	}
	if c := st.Unit.Completion; c != nil && r.bar != nil {
		_ = r.bar.Set64(int64(c.Fraction() * barMax))
		r.bar.Describe(r.label(Describe(c)))
	}
}

// Finish clears any active bar. Calling it more than once is harmless.
func (r *ProgressRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.closeBar()
	r.finished = true
}

func (r *ProgressRenderer) phase(p sequence.Phase) {
	switch p {
	case sequence.PhaseInitializing, sequence.PhaseProcessing:
		r.bar.Describe(r.label(p.String()))
	case sequence.PhaseCompleted:
		r.closeBar()
		r.println(r.label(term.Paint(term.Green, "completed")))
	case sequence.PhaseFailed:
		r.closeBar()
		r.println(r.label(term.Paint(term.Red, "failed")))
	case sequence.PhaseCancelled:
		r.closeBar()
		r.println(r.label(term.Paint(term.Yellow, "cancelled")))
	}
}

func (r *ProgressRenderer) newBar() *progressbar.ProgressBar {
	return progressbar.NewOptions64(barMax,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(r.label("validating")),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionEnableColorCodes(term.Enabled()),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *ProgressRenderer) closeBar() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Clear()
	_ = r.bar.Exit()
	r.bar = nil
}

func (r *ProgressRenderer) println(s string) {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
	fmt.Fprintln(r.w, s)
}

func (r *ProgressRenderer) label(s string) string {
	return fmt.Sprintf("[%d/%d] %s  %s", r.index+1, r.stages, r.name, s)
}

// Describe renders a completion in its own units.
func Describe(c sequence.Completion) string {
	switch c := c.(type) {
	case sequence.Percentage:
		return fmt.Sprintf("%.1f%%", float64(c))
	case sequence.Scenes:
		return fmt.Sprintf("%d/%d scenes", c.Completed, c.Total)
	case sequence.Passes:
		return fmt.Sprintf("%d/%d passes", c.Completed, c.Total)
	case sequence.Frames:
		return fmt.Sprintf("%d/%d frames", c.Completed, c.Total)
	case sequence.PassFrames:
		return fmt.Sprintf("pass %d/%d  %d/%d frames", c.Passes[0], c.Passes[1], c.Frames[0], c.Frames[1])
	case sequence.Custom:
		return fmt.Sprintf("%g/%g %s", c.Completed, c.Total, c.Name)
	}
	return ""
}
