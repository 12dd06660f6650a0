// Package condor holds the run aggregate: the input and output, the default
// encoder, the scene list and each stage's configuration.
//
// The aggregate is a plain value owned by whichever stage is running. It is
// persisted as YAML after every stage so an interrupted run can resume.
package condor

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scene"
)

// SceneExt is the container used for per-scene encodes.
const SceneExt = ".mkv"

// Rational is a frame rate as numerator over denominator.
type Rational struct {
	Num int64 `yaml:"num"`
	Den int64 `yaml:"den"`
}

// Float returns Num/Den, or 0 when Den is 0.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// ClipInfo describes the decoded source.
type ClipInfo struct {
	Frames    int      `yaml:"frames"`
	FrameRate Rational `yaml:"frame_rate"`
	Width     int      `yaml:"width,omitempty"`
	Height    int      `yaml:"height,omitempty"`
}

// Input is the source clip.
type Input struct {
	Path string    `yaml:"path"`
	Info *ClipInfo `yaml:"clip_info,omitempty"` // Filled in by the first stage that needs it.
}

// Output is the final file.
type Output struct {
	Path string `yaml:"path"`
}

// Condor is the run aggregate.
type Condor struct {
	ID      uuid.UUID       `yaml:"id"`
	WorkDir string          `yaml:"work_dir"`
	Input   Input           `yaml:"input"`
	Output  Output          `yaml:"output"`
	Encoder encoder.Encoder `yaml:"encoder"`
	Scenes  []scene.Scene   `yaml:"scenes"`
	Config  Config          `yaml:"config"`
}

// New returns an aggregate with a fresh run id.
func New(input, output, workDir string, enc encoder.Encoder) *Condor {
	return &Condor{
		ID:      uuid.New(),
		WorkDir: workDir,
		Input:   Input{Path: input},
		Output:  Output{Path: output},
		Encoder: enc,
	}
}

// SceneEncoder returns the encoder for scene i: its override or the default.
func (c *Condor) SceneEncoder(i int) encoder.Encoder {
	return c.Scenes[i].EncoderOr(c.Encoder)
}

// ScenesDir is where encoded scenes are written.
func (c *Condor) ScenesDir() string {
	if pe, err := c.Config.Encoding(); err == nil && pe.ScenesDir != "" {
		return pe.ScenesDir
	}
	return filepath.Join(c.WorkDir, "scenes")
}

// ScenePath is the final output path of scene i.
func (c *Condor) ScenePath(i int) string {
	return filepath.Join(c.ScenesDir(), scene.ID(i)+SceneExt)
}

// StageDir is a scratch directory for a stage, named after it.
func (c *Condor) StageDir(name string) string {
	return filepath.Join(c.WorkDir, name)
}

// TotalFrames returns the clip's frame count, or the sum of the scenes when
// clip info is not known yet.
func (c *Condor) TotalFrames() int {
	if c.Input.Info != nil {
		return c.Input.Info.Frames
	}
	return scene.TotalFrames(c.Scenes)
}
