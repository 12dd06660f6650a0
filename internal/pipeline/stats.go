package pipeline

import (
	"time"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/sequence"
)

// Tally counts terminal units reported by one stage.
type Tally struct {
	Completed int
	Failed    int
}

// RunStats is summed from the event stream and the finished aggregate.
// Only the event consumer writes it while the run is in progress.
type RunStats struct {
	Scenes           int
	Frames           int
	Units            map[string]*Tally // Keyed by stage name.
	Warnings         int
	TotalInputBytes  int64
	TotalOutputBytes int64
	Elapsed          time.Duration
}

func newRunStats() *RunStats {
	return &RunStats{Units: make(map[string]*Tally)}
}

// Observe counts completed and failed child units per stage.
func (s *RunStats) Observe(ev sequence.Event) {
	if ev.Status == nil || ev.Status.Child == nil {
		return
	}
	t := s.Units[ev.Details.Name]
	if t == nil {
		t = &Tally{}
		s.Units[ev.Details.Name] = t
	}
	switch ev.Status.Child.Kind {
	case sequence.UnitCompleted:
		t.Completed++
	case sequence.UnitFailed:
		t.Failed++
	}
}

// finish fills in the totals that only the aggregate knows.
func (s *RunStats) finish(c *condor.Condor, report sequence.Report, inputBytes, outputBytes int64, elapsed time.Duration) {
	s.Scenes = len(c.Scenes)
	s.Frames = c.TotalFrames()
	s.Warnings = len(report.Warnings())
	s.TotalInputBytes = inputBytes
	s.TotalOutputBytes = outputBytes
	s.Elapsed = elapsed
}

// SpaceSaved returns the byte difference between input and output.
// Positive means the output is smaller; negative means it grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

// FPS is frames over wall time for the whole run.
func (s *RunStats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}
