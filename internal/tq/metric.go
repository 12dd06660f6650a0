// Package tq searches for the quantizer that brings a scene's perceptual
// quality score into a target range, using as few probe encodes as it can.
package tq

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MetricKind identifies the quality metric.
type MetricKind string

const (
	VMAF        MetricKind = "vmaf"
	SSIMULACRA2 MetricKind = "ssimulacra2"
	Butteraugli MetricKind = "butteraugli" // Lower is better.
	XPSNR       MetricKind = "xpsnr"
)

// VMAFFeature selects a VMAF model variant.
type VMAFFeature string

const (
	FeatureDefault    VMAFFeature = "default"
	FeatureWeighted   VMAFFeature = "weighted"   // Chroma planes folded into the score.
	FeatureNeg        VMAFFeature = "neg"        // No-enhancement-gain model.
	FeatureMotionless VMAFFeature = "motionless" // Motion feature forced to zero.
	FeatureUHD        VMAFFeature = "uhd"        // 4K model.
)

var vmafFeatures = []VMAFFeature{FeatureDefault, FeatureWeighted, FeatureNeg, FeatureMotionless, FeatureUHD}

// ErrUnknownMetric is returned by [ParseMetric].
var ErrUnknownMetric = errors.New("unknown quality metric")

// Metric is a quality metric and its options.
type Metric struct {
	Kind     MetricKind    `yaml:"kind"`
	Features []VMAFFeature `yaml:"features,omitempty"` // VMAF only.
	Threads  int           `yaml:"threads,omitempty"`  // 0 lets the tool decide.
}

// DefaultTarget returns the default acceptable score range.
func (k MetricKind) DefaultTarget() [2]float64 {
	switch k {
	case SSIMULACRA2:
		return [2]float64{78, 82}
	case Butteraugli:
		return [2]float64{1.0, 1.5}
	case XPSNR:
		return [2]float64{40, 42}
	default:
		return [2]float64{94, 96}
	}
}

// Inverse reports whether lower scores mean higher quality.
func (k MetricKind) Inverse() bool { return k == Butteraugli }

// Has reports whether the VMAF feature f is enabled.
func (m Metric) Has(f VMAFFeature) bool { return slices.Contains(m.Features, f) }

func (m Metric) String() string {
	if len(m.Features) == 0 {
		return string(m.Kind)
	}
	names := make([]string, len(m.Features))
	for i, f := range m.Features {
		names[i] = string(f)
	}
	return string(m.Kind) + ":" + strings.Join(names, ",")
}

// ParseMetric accepts "vmaf", "vmaf:neg,uhd", "ssimulacra2", "butteraugli"
// and "xpsnr".
func ParseMetric(s string) (Metric, error) {
	name, feats, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	var m Metric
	switch MetricKind(name) {
	case VMAF, SSIMULACRA2, Butteraugli, XPSNR:
		m.Kind = MetricKind(name)
	case "ssim2", "ssimu2":
		m.Kind = SSIMULACRA2
	default:
		return Metric{}, fmt.Errorf("%w %q (use vmaf, ssimulacra2, butteraugli or xpsnr)", ErrUnknownMetric, s)
	}
	if feats == "" {
		if m.Kind == VMAF {
			m.Features = []VMAFFeature{FeatureDefault}
		}
		return m, nil
	}
	if m.Kind != VMAF {
		return Metric{}, fmt.Errorf("metric %s takes no features", m.Kind)
	}
	for f := range strings.SplitSeq(feats, ",") {
		feat := VMAFFeature(strings.TrimSpace(f))
		if !slices.Contains(vmafFeatures, feat) {
			return Metric{}, fmt.Errorf("unknown vmaf feature %q", f)
		}
		m.Features = append(m.Features, feat)
	}
	return m, nil
}
