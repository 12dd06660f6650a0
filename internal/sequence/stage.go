// Package sequence runs the encoding stages in order over one shared
// aggregate and reports their progress.
//
// The stage set is closed: scene detection, target quality, benchmarking,
// parallel encoding, concatenation and quality check. Each stage validates,
// initializes and then processes; the orchestrator persists the aggregate
// after every stage so a later run resumes where this one stopped.
package sequence

import (
	"context"

	"github.com/backmassage/condor/internal/condor"
)

// Details is a stage's static metadata.
type Details struct {
	Name        string
	Description string
	Version     string
}

// Warnings are non-fatal problems. Failed scenes are reported here as
// *SceneError values.
type Warnings []error

// Stage is one step of the run. Only the types in this package implement it.
type Stage interface {
	Details() Details
	// Validate performs pre-flight checks. It must not change encoding state.
	Validate(c *condor.Condor) (Warnings, error)
	// Initialize prepares directories and clip information. It is idempotent.
	Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error)
	// Process does the work, checking token between units of work.
	Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error)

	sealed()
}

// Phase is the lifecycle state of one stage within a run.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseValidating
	PhaseInitializing
	PhaseProcessing
	PhaseCompleted
	PhaseFailed
	PhaseCancelled
)

var phaseNames = [...]string{"not started", "validating", "initializing", "processing", "completed", "failed", "cancelled"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Done reports whether the phase is final.
func (p Phase) Done() bool { return p >= PhaseCompleted }

const version = "0.0.1"

var (
	sceneDetectorDetails = Details{
		Name:        "Scene Detector",
		Description: "Detect scene changes",
		Version:     version,
	}
	targetQualityDetails = Details{
		Name:        "Target Quality",
		Description: "Determine the optimal quantizer for a given video quality metric score per scene.",
		Version:     version,
	}
	parallelEncoderDetails = Details{
		Name:        "Parallel Encoder",
		Description: "Encodes a set of scenes in parallel until all scenes are encoded.",
		Version:     version,
	}
	sceneConcatenatorDetails = Details{
		Name:        "Scene Concatenator",
		Description: "Concatenates encoded scenes into a single output file",
		Version:     version,
	}
	qualityCheckDetails = Details{
		Name:        "Quality Check",
		Description: "Measure the quality of the video per scene",
		Version:     version,
	}
	benchmarkerDetails = Details{
		Name:        "Benchmarker",
		Description: "Measures how fast scenes can be encoded in parallel before no meaningful improvement is seen by adding more workers.",
		Version:     version,
	}
)

// ScratchDirs lists the directories the stages create inside c's work
// directory, the scenes directory included.
func ScratchDirs(c *condor.Condor) []string {
	out := []string{c.ScenesDir()}
	for _, d := range []Details{targetQualityDetails, sceneConcatenatorDetails, benchmarkerDetails} {
		out = append(out, c.StageDir(d.Name))
	}
	return out
}
