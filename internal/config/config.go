// Package config holds runtime configuration: defaults, CLI flag parsing, and
// validation. The result seeds a new project; a resumed project keeps what
// it saved and only takes the display and pool settings from here.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to packages
// that need it.
type Config struct {
	// Paths. Input and Output come from positional args.
	Input   string
	Output  string
	WorkDir string // Default: ".<output name>.condor" beside the output.

	// Encoder.
	Encoder       encoder.Kind // Default: svt-av1.
	EncoderParams string       // Raw encoder options, e.g. "--preset 6 --crf 30".
	Passes        int          // Default: 1.

	// Scene detection.
	SceneMethod scenedetect.Kind  // Default: cost.
	SceneSpeed  scenedetect.Speed // Default: standard.
	MinScene    int               // Default: 24 frames.
	MaxScene    int               // 0 derives ten seconds from the frame rate.
	ZonesFile   string

	// Worker pool.
	Workers     int // 0 lets the benchmarker or the hardware decide.
	Buffer      worker.BufferStrategy
	MaxTries    int
	MaxFailures int // -1 is unlimited.

	// Target quality.
	TargetQuality bool
	Metric        tq.Metric
	Target        [2]float64 // Zero uses the metric's default range.
	Probes        int
	QRange        [2]float64 // Zero uses the encoder's full range.
	Interpolators [2]tq.Method
	Probing       tq.ProbingStrategy
	Statistic     tq.Statistic

	// Output stages.
	Concat             condor.ConcatMethod
	QualityCheck       bool
	Benchmark          bool
	BenchmarkThreshold float64 // Percent fps gain.
	MaxMemory          uint64  // Bytes; 0 is no cap.

	// Behavior.
	Force bool // Discard a saved project instead of resuming it.

	// Display and logging.
	Verbose     bool
	ColorMode   ColorMode
	LogFile     string
	MetricsAddr string // Serve Prometheus metrics here when set.
	CheckOnly   bool
}

// DefaultConfig returns a Config with every default applied. Used as the
// base before [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	pe := condor.DefaultParallelEncoder()
	tqc := tq.DefaultConfig(encoder.SVTAV1)
	return Config{
		Encoder:            encoder.SVTAV1,
		Passes:             1,
		SceneMethod:        scenedetect.CostBased,
		SceneSpeed:         scenedetect.Standard,
		MinScene:           scenedetect.DefaultMinLength,
		Buffer:             pe.Buffer,
		MaxTries:           pe.MaxTries,
		MaxFailures:        pe.MaxFailures,
		Metric:             tqc.Metric,
		Probes:             tqc.MaximumProbes,
		Interpolators:      tqc.Interpolators,
		Probing:            tqc.Probing,
		Statistic:          tqc.Statistic,
		Concat:             condor.ConcatMKVMerge,
		BenchmarkThreshold: condor.DefaultBenchmarkThreshold,
		ColorMode:          ColorAuto,
	}
}

// Validate checks values flag parsing cannot catch on its own and fills in
// the work directory. Paths are only required outside CheckOnly mode.
func (c *Config) Validate() error {
	var errs []error
	if _, err := encoder.ParseKind(string(c.Encoder)); err != nil {
		errs = append(errs, err)
	}
	if c.EncoderParams != "" {
		if _, err := encoder.ParseArgString(c.EncoderParams); err != nil {
			errs = append(errs, fmt.Errorf("encoder params: %w", err))
		}
	}
	if c.Passes < 1 {
		errs = append(errs, errors.New("passes must be at least 1"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}
	if c.MaxTries < 1 {
		errs = append(errs, errors.New("max tries must be at least 1"))
	}
	if c.MaxScene != 0 && c.MaxScene < c.MinScene {
		errs = append(errs, fmt.Errorf("maximum scene length %d is below minimum %d", c.MaxScene, c.MinScene))
	}
	if c.TargetQuality {
		if err := c.TargetQualityConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("target quality: %w", err))
		}
	}
	if c.BenchmarkThreshold < 0 {
		errs = append(errs, errors.New("benchmark threshold must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.CheckOnly {
		return nil
	}
	if c.Input == "" || c.Output == "" {
		return errors.New("need exactly input and output")
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir(c.Output)
	}
	return nil
}

// DefaultWorkDir is a hidden directory beside output named after it.
func DefaultWorkDir(output string) string {
	base := filepath.Base(output)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(output), "."+stem+".condor")
}

// ValidatePaths ensures the output is not the input and the work directory
// does not contain the input. Both paths must be absolute and
// symlink-resolved.
func (c *Config) ValidatePaths(inputAbs, outputAbs, workAbs string) error {
	if inputAbs == outputAbs {
		return errors.New("output must not overwrite the input")
	}
	sep := string(filepath.Separator)
	if workAbs == inputAbs || strings.HasPrefix(inputAbs, workAbs+sep) {
		return errors.New("input must not live inside the work directory")
	}
	return nil
}

// TargetQualityConfig builds the search settings for the chosen encoder,
// falling back to the metric's target and the encoder's range.
func (c *Config) TargetQualityConfig() tq.Config {
	tqc := tq.DefaultConfig(c.Encoder)
	tqc.Metric = c.Metric
	tqc.Target = c.Metric.Kind.DefaultTarget()
	if c.Target != [2]float64{} {
		tqc.Target = c.Target
	}
	if c.QRange != [2]float64{} {
		tqc.QRange = c.QRange
	}
	tqc.MaximumProbes = c.Probes
	tqc.Interpolators = c.Interpolators
	tqc.Probing = c.Probing
	tqc.Statistic = c.Statistic
	return tqc
}

// BuildEncoder returns the default encoder for the run.
func (c *Config) BuildEncoder() (encoder.Encoder, error) {
	enc := encoder.New(c.Encoder)
	enc.Passes = c.Passes
	if c.EncoderParams == "" {
		return enc, nil
	}
	params, err := encoder.ParseArgString(c.EncoderParams)
	if err != nil {
		return encoder.Encoder{}, fmt.Errorf("encoder params: %w", err)
	}
	enc = enc.WithParams(params, false)
	return enc, enc.Validate()
}

// StageConfig returns the per-stage configuration for a new project.
// Optional stages are left nil when disabled.
func (c *Config) StageConfig() condor.Config {
	var sc condor.Config

	// A zero maximum is derived from the frame rate by the detector.
	sc.SceneDetection = &condor.SceneDetectionConfig{
		Method:    scenedetect.Method{Kind: c.SceneMethod, Min: c.MinScene, Max: c.MaxScene, Speed: c.SceneSpeed},
		ZonesFile: c.ZonesFile,
	}

	if c.TargetQuality {
		tqc := c.TargetQualityConfig()
		sc.TargetQuality = &tqc
	}

	pe := condor.DefaultParallelEncoder()
	pe.Workers = c.Workers
	pe.Buffer = c.Buffer
	pe.MaxTries = c.MaxTries
	pe.MaxFailures = c.MaxFailures
	sc.ParallelEncoder = &pe

	sc.SceneConcatenation = &condor.ConcatConfig{Method: c.Concat}

	if c.QualityCheck {
		qc := condor.DefaultQualityCheck()
		qc.Metric = c.Metric
		qc.Statistic = c.Statistic
		sc.QualityCheck = &qc
	}
	if c.Benchmark && c.Workers == 0 {
		sc.Benchmarker = &condor.BenchmarkerConfig{Threshold: c.BenchmarkThreshold, MaxMemory: c.MaxMemory}
	}
	return sc
}
