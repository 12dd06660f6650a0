// Package scene holds the scene partition of a clip and the per-scene state
// that each stage owns.
//
// A validated scene list is sorted by StartFrame, non-overlapping, and
// covers [0, frames) without gaps. Stages only write the Data field that
// belongs to them.
package scene

import (
	"fmt"
	"time"

	"github.com/backmassage/condor/internal/encoder"
)

// Scene is a half-open frame range [StartFrame, EndFrame) encoded as one unit.
type Scene struct {
	StartFrame int              `yaml:"start_frame"`
	EndFrame   int              `yaml:"end_frame"`
	SubScenes  []SubScene       `yaml:"sub_scenes,omitempty"`
	Encoder    *encoder.Encoder `yaml:"encoder,omitempty"` // nil uses the aggregate default.
	Data       Data             `yaml:"data,omitempty"`
}

// SubScene is a range inside a scene with its own encoder override.
type SubScene struct {
	StartFrame int              `yaml:"start_frame"`
	EndFrame   int              `yaml:"end_frame"`
	Encoder    *encoder.Encoder `yaml:"encoder,omitempty"`
}

// Frames returns the number of frames in the scene.
func (s Scene) Frames() int { return s.EndFrame - s.StartFrame }

// EncoderOr returns the scene's override or def when there is none.
func (s Scene) EncoderOr(def encoder.Encoder) encoder.Encoder {
	if s.Encoder != nil {
		return *s.Encoder
	}
	return def
}

func (s Scene) String() string {
	return fmt.Sprintf("[%d, %d)", s.StartFrame, s.EndFrame)
}

// ID formats a scene index as used in progress ids and file names.
func ID(index int) string {
	return fmt.Sprintf("%05d", index)
}

// NowMillis returns the current time in milliseconds since the Unix epoch,
// the unit used for every timestamp stored on a scene.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
