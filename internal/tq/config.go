package tq

import (
	"errors"
	"fmt"

	"github.com/backmassage/condor/internal/encoder"
)

// DefaultMaximumProbes is the probe budget per scene.
const DefaultMaximumProbes = 4

// Config controls the search for one encoder.
type Config struct {
	Metric        Metric          `yaml:"metric"`
	Target        [2]float64      `yaml:"target_range,flow"`
	QRange        [2]float64      `yaml:"quantizer_range,flow"`
	MaximumProbes int             `yaml:"maximum_probes"`
	// Interpolators are the bootstrap method, used once three probes exist,
	// and the refinement method, used from four on. Two probes always fit
	// a line.
	Interpolators [2]Method       `yaml:"interpolators,flow"`
	Probing       ProbingStrategy `yaml:"probing"`
	Statistic     Statistic       `yaml:"statistic"`
}

// DefaultConfig returns the VMAF search defaults for the given encoder.
func DefaultConfig(kind encoder.Kind) Config {
	lo, hi := kind.QuantizerRange()
	return Config{
		Metric:        Metric{Kind: VMAF, Features: []VMAFFeature{FeatureDefault}},
		Target:        VMAF.DefaultTarget(),
		QRange:        [2]float64{lo, hi},
		MaximumProbes: DefaultMaximumProbes,
		Interpolators: [2]Method{Natural, Pchip},
		Probing:       DefaultProbing(),
		Statistic:     Statistic{Kind: Mean},
	}
}

// Validate checks that the search can run.
func (c Config) Validate() error {
	var errs []error
	if c.Target[0] > c.Target[1] {
		errs = append(errs, fmt.Errorf("target range %v is inverted", c.Target))
	}
	if c.QRange[0] > c.QRange[1] || c.QRange[0] < 0 {
		errs = append(errs, fmt.Errorf("quantizer range %v is invalid", c.QRange))
	}
	if c.MaximumProbes < 1 {
		errs = append(errs, errors.New("maximum probes must be at least 1"))
	}
	if !c.Interpolators[0].Bootstrap() {
		errs = append(errs, fmt.Errorf("%s cannot bootstrap from three probes (use linear, quadratic or natural)", c.Interpolators[0]))
	}
	if _, err := ParseMethod(string(c.Interpolators[1])); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseStatistic(c.Statistic.String()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// InRange reports whether score lies inside the target range, inclusive.
func (c Config) InRange(score float64) bool {
	return score >= c.Target[0] && score <= c.Target[1]
}
