package tq

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// StatisticKind selects how per-frame scores reduce to one score.
type StatisticKind string

const (
	Mean                      StatisticKind = "mean"
	Median                    StatisticKind = "median"
	Harmonic                  StatisticKind = "harmonic"
	Percentile                StatisticKind = "percentile" // Value is the percentile, 0-100.
	StandardDeviationDistance StatisticKind = "stddev"     // Value is sigma.
	Mode                      StatisticKind = "mode"
	Minimum                   StatisticKind = "min"
	Maximum                   StatisticKind = "max"
	RootMeanSquare            StatisticKind = "rms"
)

// ErrNoScores is returned when there is nothing to reduce.
var ErrNoScores = errors.New("no scores")

// Statistic is a reduction over per-frame scores.
type Statistic struct {
	Kind  StatisticKind `yaml:"kind"`
	Value float64       `yaml:"value,omitempty"`
}

// Reduce computes the statistic over scores. scores is not modified.
func (s Statistic) Reduce(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, ErrNoScores
	}
	sorted := slices.Clone(scores)
	slices.Sort(sorted)

	switch s.Kind {
	case Mean, "":
		return stat.Mean(sorted, nil), nil
	case Median:
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2, nil
		}
		return sorted[mid], nil
	case Harmonic:
		if sorted[0] <= 0 {
			return 0, fmt.Errorf("harmonic mean needs positive scores, got %g", sorted[0])
		}
		return stat.HarmonicMean(sorted, nil), nil
	case Percentile:
		if s.Value < 0 || s.Value > 100 {
			return 0, fmt.Errorf("percentile %g outside [0, 100]", s.Value)
		}
		return stat.Quantile(s.Value/100, stat.LinInterp, sorted, nil), nil
	case StandardDeviationDistance:
		if len(sorted) == 1 {
			return sorted[0], nil
		}
		mean, sd := stat.MeanStdDev(sorted, nil)
		return min(max(mean+s.Value*sd, sorted[0]), sorted[len(sorted)-1]), nil
	case Mode:
		v, _ := stat.Mode(sorted, nil)
		return v, nil
	case Minimum:
		return sorted[0], nil
	case Maximum:
		return sorted[len(sorted)-1], nil
	case RootMeanSquare:
		var sum float64
		for _, v := range sorted {
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(sorted))), nil
	}
	return 0, fmt.Errorf("unknown statistic %q", s.Kind)
}

func (s Statistic) String() string {
	switch s.Kind {
	case Percentile, StandardDeviationDistance:
		return string(s.Kind) + ":" + strconv.FormatFloat(s.Value, 'f', -1, 64)
	case "":
		return string(Mean)
	}
	return string(s.Kind)
}

// ParseStatistic accepts the forms produced by String, such as "mean",
// "percentile:5" and "stddev:-1".
func ParseStatistic(s string) (Statistic, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	kind := StatisticKind(name)
	switch kind {
	case Mean, Median, Harmonic, Mode, Minimum, Maximum, RootMeanSquare:
		if hasArg {
			return Statistic{}, fmt.Errorf("statistic %s takes no value", kind)
		}
		return Statistic{Kind: kind}, nil
	case Percentile, StandardDeviationDistance:
		if !hasArg {
			return Statistic{}, fmt.Errorf("statistic %s needs a value, e.g. %s:5", kind, kind)
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Statistic{}, fmt.Errorf("statistic %s: invalid value %q", kind, arg)
		}
		st := Statistic{Kind: kind, Value: v}
		if kind == Percentile && (v < 0 || v > 100) {
			return Statistic{}, fmt.Errorf("percentile %g outside [0, 100]", v)
		}
		return st, nil
	}
	return Statistic{}, fmt.Errorf("unknown statistic %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Statistic) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Statistic) UnmarshalText(b []byte) error {
	v, err := ParseStatistic(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
