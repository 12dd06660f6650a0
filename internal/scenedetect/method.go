// Package scenedetect chooses scene boundaries from per-frame scenecut scores
// and enforces minimum and maximum scene lengths.
package scenedetect

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind selects how cut candidates are produced.
type Kind string

const (
	FixedLength Kind = "fixed" // Cut every Max frames.
	CostBased   Kind = "cost"  // Cut where the scenecut cost exceeds its threshold.
)

// Speed selects which cost a CostBased method compares to the threshold.
type Speed string

const (
	Standard Speed = "standard" // Adjusted cost, max(backward, forward).
	Fast     Speed = "fast"     // Inter-frame cost only.
)

const (
	DefaultMinLength = 24
	// DefaultMaxSeconds is the longest scene, in seconds of video, when the
	// frame rate is known.
	DefaultMaxSeconds = 10
	// DefaultMaxLength applies when the frame rate is unknown.
	DefaultMaxLength = 240
)

// Method is a scene-detection policy. Lengths are in frames.
type Method struct {
	Kind  Kind  `yaml:"kind"`
	Min   int   `yaml:"minimum_length"`
	Max   int   `yaml:"maximum_length"`
	Speed Speed `yaml:"speed,omitempty"`
}

// DefaultMethod returns the cost-based policy with a maximum length of ten
// seconds at fps, or 240 frames when fps is not positive.
func DefaultMethod(fps float64) Method {
	return Method{Kind: CostBased, Min: DefaultMinLength, Max: MaxLengthFor(fps), Speed: Standard}
}

// MaxLengthFor returns round(fps * 10), or 240 when fps is not positive.
func MaxLengthFor(fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return DefaultMaxLength
	}
	return max(int(math.Round(fps*DefaultMaxSeconds)), 1)
}

// Validate checks lengths and names.
func (m Method) Validate() error {
	var errs []error
	switch m.Kind {
	case FixedLength, CostBased:
	default:
		errs = append(errs, fmt.Errorf("unknown scene detection method %q (use fixed or cost)", m.Kind))
	}
	if m.Kind == CostBased && m.Speed != Standard && m.Speed != Fast {
		errs = append(errs, fmt.Errorf("unknown scene detection speed %q (use standard or fast)", m.Speed))
	}
	if m.Min < 1 {
		errs = append(errs, errors.New("minimum scene length must be at least 1"))
	}
	if m.Max < m.Min {
		errs = append(errs, fmt.Errorf("maximum scene length %d is below minimum %d", m.Max, m.Min))
	}
	return errors.Join(errs...)
}

// ParseKind accepts "fixed" or "cost" and the aliases "none" and "scenechange".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "none":
		return FixedLength, nil
	case "cost", "scenechange":
		return CostBased, nil
	}
	return "", fmt.Errorf("unknown scene detection method %q (use fixed or cost)", s)
}

// ParseSpeed accepts "standard" or "fast".
func ParseSpeed(s string) (Speed, error) {
	switch Speed(strings.ToLower(strings.TrimSpace(s))) {
	case Standard:
		return Standard, nil
	case Fast:
		return Fast, nil
	}
	return "", fmt.Errorf("unknown scene detection speed %q (use standard or fast)", s)
}

func (m Method) String() string {
	if m.Kind == CostBased {
		return fmt.Sprintf("%s/%s %d-%d", m.Kind, m.Speed, m.Min, m.Max)
	}
	return fmt.Sprintf("%s %d-%d", m.Kind, m.Min, m.Max)
}
