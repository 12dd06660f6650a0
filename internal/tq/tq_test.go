package tq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scene"
)

// linearProbe scores every frame at 100-2q.
func linearProbe(calls *[]float64) ProbeFunc {
	return func(_ context.Context, q float64) (scene.QualityPass, error) {
		*calls = append(*calls, q)
		return scene.QualityPass{Scores: []float64{100 - 2*q, 100 - 2*q}}, nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig(encoder.SVTAV1)
	cfg.QRange = [2]float64{0, 51}
	return cfg
}

type flag bool

func (f flag) Cancelled() bool { return bool(f) }

func TestSearch_LinearMetricConverges(t *testing.T) {
	var calls []float64
	res, err := Search(context.Background(), testConfig(), nil, linearProbe(&calls), flag(false))
	require.NoError(t, err)

	assert.Equal(t, []float64{25, 12, 3}, calls)
	assert.Equal(t, ReasonInRange, res.Reason)
	assert.Equal(t, 3.0, res.Quantizer)
	assert.Equal(t, 94.0, res.Score)
	assert.Len(t, res.Passes, 3)
	assert.LessOrEqual(t, len(calls), DefaultMaximumProbes)
}

func TestSearch_ResumesFromHistory(t *testing.T) {
	history := []scene.QualityPass{
		{Quantizer: 25, Scores: []float64{50}, Score: 50},
		{Quantizer: 12, Scores: []float64{76}, Score: 76},
	}
	var calls []float64
	res, err := Search(context.Background(), testConfig(), history, linearProbe(&calls), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, calls)
	assert.Equal(t, 3.0, res.Quantizer)
}

func TestSearch_HistoryAlreadyInRange(t *testing.T) {
	history := []scene.QualityPass{{Quantizer: 20, Score: 95}}
	res, err := Search(context.Background(), testConfig(), history, func(context.Context, float64) (scene.QualityPass, error) {
		t.Fatal("no probe expected")
		return scene.QualityPass{}, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonInRange, res.Reason)
	assert.Equal(t, 20.0, res.Quantizer)
}

func TestSearch_UnreachableTargetStopsAtBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.MaximumProbes = 20
	// Quality is always too high, so the bracket climbs to the top.
	probe := func(_ context.Context, q float64) (scene.QualityPass, error) {
		return scene.QualityPass{Scores: []float64{99}}, nil
	}
	res, err := Search(context.Background(), cfg, nil, probe, nil)
	require.NoError(t, err)
	assert.Contains(t, []Reason{ReasonBoundary, ReasonRepeated}, res.Reason)
	assert.LessOrEqual(t, len(res.Passes), cfg.MaximumProbes)
}

func TestSearch_ProbeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaximumProbes = 1
	var calls []float64
	res, err := Search(context.Background(), cfg, nil, linearProbe(&calls), nil)
	require.NoError(t, err)
	assert.Len(t, calls, 1)
	assert.Equal(t, ReasonProbeLimit, res.Reason)
	assert.Equal(t, 25.0, res.Quantizer)
}

func TestSearch_InverseMetric(t *testing.T) {
	cfg := testConfig()
	cfg.Metric = Metric{Kind: Butteraugli}
	cfg.Target = Butteraugli.DefaultTarget()
	// Butteraugli distance grows with the quantizer.
	probe := func(_ context.Context, q float64) (scene.QualityPass, error) {
		return scene.QualityPass{Scores: []float64{q / 20}}, nil
	}
	res, err := Search(context.Background(), cfg, nil, probe, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonInRange, res.Reason)
	assert.True(t, cfg.InRange(res.Score), "score %g", res.Score)
}

func TestSearch_Cancelled(t *testing.T) {
	var calls []float64
	_, err := Search(context.Background(), testConfig(), nil, linearProbe(&calls), flag(true))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, calls)
}

func TestSearch_ProbeErrorKeepsHistory(t *testing.T) {
	boom := errors.New("encoder crashed")
	n := 0
	probe := func(_ context.Context, q float64) (scene.QualityPass, error) {
		n++
		if n == 2 {
			return scene.QualityPass{}, boom
		}
		return scene.QualityPass{Scores: []float64{50}}, nil
	}
	res, err := Search(context.Background(), testConfig(), nil, probe, nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, res.Passes, 1)
}

func TestInverse(t *testing.T) {
	// q = 50 - score/2 sampled at four points.
	scores := []float64{60, 70, 80, 90}
	qs := []float64{20, 15, 10, 5}
	for _, m := range Methods {
		t.Run(string(m), func(t *testing.T) {
			v, err := Inverse(m, scores, qs, 75)
			require.NoError(t, err)
			assert.InDelta(t, 12.5, v, 0.01)
		})
	}
}

func TestInverse_Extrapolates(t *testing.T) {
	v, err := Inverse(Pchip, []float64{50, 76, 80}, []float64{25, 12, 10}, 95)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-9)
}

func TestInverse_TooFewPoints(t *testing.T) {
	_, err := Inverse(Linear, []float64{50, 50}, []float64{20, 22}, 60)
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestStatistic_Reduce(t *testing.T) {
	scores := []float64{4, 1, 2, 2, 3}
	tests := []struct {
		stat Statistic
		want float64
	}{
		{Statistic{Kind: Mean}, 2.4},
		{Statistic{Kind: Median}, 2},
		{Statistic{Kind: Minimum}, 1},
		{Statistic{Kind: Maximum}, 4},
		{Statistic{Kind: Mode}, 2},
		{Statistic{Kind: Harmonic}, 5 / (1.0 + 0.5 + 0.5 + 1.0/3 + 0.25)},
		{Statistic{Kind: RootMeanSquare}, 2.6076809620810595},
		{Statistic{Kind: Percentile, Value: 0}, 1},
		{Statistic{Kind: Percentile, Value: 100}, 4},
		{Statistic{Kind: StandardDeviationDistance, Value: -100}, 1},
		{Statistic{Kind: StandardDeviationDistance, Value: 0}, 2.4},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			got, err := tt.stat.Reduce(scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
	assert.Equal(t, []float64{4, 1, 2, 2, 3}, scores, "input must not be reordered")
}

func TestStatistic_Errors(t *testing.T) {
	_, err := Statistic{Kind: Mean}.Reduce(nil)
	assert.ErrorIs(t, err, ErrNoScores)

	_, err = Statistic{Kind: Harmonic}.Reduce([]float64{0, 1})
	assert.Error(t, err)

	_, err = ParseStatistic("percentile")
	assert.Error(t, err)

	s, err := ParseStatistic("STDDEV:-1.5")
	require.NoError(t, err)
	assert.Equal(t, Statistic{Kind: StandardDeviationDistance, Value: -1.5}, s)
}

func TestProbingStrategy_FrameIndices(t *testing.T) {
	tests := []struct {
		name  string
		input string
		start int
		end   int
		want  []int
	}{
		{"whole", "whole", 10, 14, []int{10, 11, 12, 13}},
		{"skip", "skip:3", 10, 18, []int{10, 13, 16}},
		{"subset start", "subset:start:3", 0, 100, []int{0, 1, 2}},
		{"subset end", "subset:end:3", 0, 100, []int{97, 98, 99}},
		{"subset middle odd", "subset:middle:3", 0, 10, []int{4, 5, 6}},
		{"subset middle clipped", "subset:middle:11", 20, 24, []int{20, 21, 22, 23}},
		{"subset percent", "subset:start:10%", 0, 50, []int{0, 1, 2, 3, 4}},
		{"exact", "exact:5,1,30,3,3", 0, 10, []int{1, 3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProbing(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.FrameIndices(tt.start, tt.end))
			assert.Equal(t, p, mustParse(t, p.String()))
		})
	}
}

func mustParse(t *testing.T, s string) ProbingStrategy {
	t.Helper()
	p, err := ParseProbing(s)
	require.NoError(t, err)
	return p
}

func TestDefaultProbing(t *testing.T) {
	frames := DefaultProbing().FrameIndices(100, 200)
	assert.Len(t, frames, 11)
	assert.Equal(t, 145, frames[0])
	assert.Equal(t, 155, frames[10])
}

func TestParseProbing_Errors(t *testing.T) {
	for _, in := range []string{"", "skip", "skip:0", "subset:top:5", "subset:start:150%", "subset:start:2.5", "exact:", "exact:a", "whole:1"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseProbing(in)
			assert.Error(t, err)
		})
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("vmaf:neg,uhd")
	require.NoError(t, err)
	assert.True(t, m.Has(FeatureNeg))
	assert.True(t, m.Has(FeatureUHD))
	assert.Equal(t, "vmaf:neg,uhd", m.String())

	m, err = ParseMetric("vmaf")
	require.NoError(t, err)
	assert.Equal(t, []VMAFFeature{FeatureDefault}, m.Features)

	_, err = ParseMetric("xpsnr:uhd")
	assert.Error(t, err)
	_, err = ParseMetric("psnr")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestInterpolator_ByProbeCount(t *testing.T) {
	cfg := testConfig()
	cfg.Interpolators = [2]Method{Quadratic, Akima}
	tests := []struct {
		probes int
		want   Method
	}{
		{2, Linear},
		{3, Quadratic},
		{4, Akima},
		{7, Akima},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, interpolator(cfg, tt.probes))
		})
	}
}

func TestSearch_BootstrapMethodSteersFourthProbe(t *testing.T) {
	// A sharp bend near the target: a line and a parabola disagree on it.
	history := []scene.QualityPass{
		{Quantizer: 10, Score: 99},
		{Quantizer: 20, Score: 90},
		{Quantizer: 40, Score: 89},
	}
	fourth := func(m Method) float64 {
		cfg := testConfig()
		cfg.Interpolators[0] = m
		var calls []float64
		_, err := Search(context.Background(), cfg, history, func(_ context.Context, q float64) (scene.QualityPass, error) {
			calls = append(calls, q)
			return scene.QualityPass{Scores: []float64{95}}, nil
		}, nil)
		require.NoError(t, err)
		require.Len(t, calls, 1)
		return calls[0]
	}
	assert.Equal(t, 14.0, fourth(Linear))
	assert.Equal(t, 11.0, fourth(Quadratic)) // Clamped to the bracket.
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig(encoder.X264)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, [2]float64{15, 35}, cfg.QRange)

	cfg.Interpolators[0] = Pchip
	assert.Error(t, cfg.Validate())
}
