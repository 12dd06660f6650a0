package condor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

// ErrConfigNotFound is returned when a stage's configuration is absent.
var ErrConfigNotFound = errors.New("stage configuration not found")

// Config has one optional entry per stage. A nil entry means the stage
// falls back to its defaults, or is skipped if it is optional.
type Config struct {
	SceneDetection     *SceneDetectionConfig  `yaml:"scene_detection,omitempty"`
	TargetQuality      *tq.Config             `yaml:"target_quality,omitempty"`
	ParallelEncoder    *ParallelEncoderConfig `yaml:"parallel_encoder,omitempty"`
	SceneConcatenation *ConcatConfig          `yaml:"scene_concatenation,omitempty"`
	QualityCheck       *QualityCheckConfig    `yaml:"quality_check,omitempty"`
	Benchmarker        *BenchmarkerConfig     `yaml:"benchmarker,omitempty"`
}

// SceneDetectionConfig configures cut selection and zones.
type SceneDetectionConfig struct {
	Method    scenedetect.Method `yaml:"method"`
	ZonesFile string             `yaml:"zones_file,omitempty"`
	Zones     []scene.Zone       `yaml:"zones,omitempty"`
}

// ParallelEncoderConfig configures the worker pool.
type ParallelEncoderConfig struct {
	Workers     int                   `yaml:"workers,omitempty"` // 0 until chosen by the user or the benchmarker.
	Buffer      worker.BufferStrategy `yaml:"buffer_strategy"`
	MaxTries    int                   `yaml:"max_tries"`
	MaxFailures int                   `yaml:"max_failures"` // -1 is unlimited.
	ScenesDir   string                `yaml:"scenes_directory,omitempty"`
}

// DefaultParallelEncoder leaves Workers unset for the benchmarker or the
// hardware default to fill in.
func DefaultParallelEncoder() ParallelEncoderConfig {
	return ParallelEncoderConfig{
		Buffer:      worker.DefaultBuffer(),
		MaxTries:    worker.DefaultMaxTries,
		MaxFailures: -1,
	}
}

// ConcatMethod selects the tool that joins encoded scenes.
type ConcatMethod string

const (
	ConcatFFmpeg   ConcatMethod = "ffmpeg"
	ConcatMKVMerge ConcatMethod = "mkvmerge"
)

// ParseConcatMethod accepts "ffmpeg" or "mkvmerge".
func ParseConcatMethod(s string) (ConcatMethod, error) {
	switch m := ConcatMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case ConcatFFmpeg, ConcatMKVMerge:
		return m, nil
	}
	return "", fmt.Errorf("unknown concat method %q (use ffmpeg or mkvmerge)", s)
}

// ConcatConfig configures scene concatenation.
type ConcatConfig struct {
	Method ConcatMethod `yaml:"method"`
}

// QualityCheckConfig configures the final per-scene measurement.
type QualityCheckConfig struct {
	Metric    tq.Metric          `yaml:"metric"`
	Probing   tq.ProbingStrategy `yaml:"probing"`
	Statistic tq.Statistic       `yaml:"statistic"`
}

// DefaultQualityCheck measures every frame with VMAF.
func DefaultQualityCheck() QualityCheckConfig {
	return QualityCheckConfig{
		Metric:    tq.Metric{Kind: tq.VMAF, Features: []tq.VMAFFeature{tq.FeatureDefault}},
		Probing:   tq.ProbingStrategy{Kind: tq.ProbeWhole},
		Statistic: tq.Statistic{Kind: tq.Mean},
	}
}

// BenchmarkerConfig configures the worker-count benchmark.
type BenchmarkerConfig struct {
	Threshold float64 `yaml:"threshold"`            // Minimum fps gain in percent to keep adding workers.
	MaxMemory uint64  `yaml:"max_memory,omitempty"` // Bytes; 0 is no cap.
}

// DefaultBenchmarkThreshold is the minimum fps gain, in percent.
const DefaultBenchmarkThreshold = 5.0

// Detection returns the scene-detection config.
func (c *Config) Detection() (*SceneDetectionConfig, error) {
	if c.SceneDetection == nil {
		return nil, ErrConfigNotFound
	}
	return c.SceneDetection, nil
}

// Quality returns the target-quality config.
func (c *Config) Quality() (*tq.Config, error) {
	if c.TargetQuality == nil {
		return nil, ErrConfigNotFound
	}
	return c.TargetQuality, nil
}

// Encoding returns the parallel-encoder config.
func (c *Config) Encoding() (*ParallelEncoderConfig, error) {
	if c.ParallelEncoder == nil {
		return nil, ErrConfigNotFound
	}
	return c.ParallelEncoder, nil
}

// Concatenation returns the scene-concatenation config.
func (c *Config) Concatenation() (*ConcatConfig, error) {
	if c.SceneConcatenation == nil {
		return nil, ErrConfigNotFound
	}
	return c.SceneConcatenation, nil
}

// Check returns the quality-check config.
func (c *Config) Check() (*QualityCheckConfig, error) {
	if c.QualityCheck == nil {
		return nil, ErrConfigNotFound
	}
	return c.QualityCheck, nil
}

// Benchmark returns the benchmarker config.
func (c *Config) Benchmark() (*BenchmarkerConfig, error) {
	if c.Benchmarker == nil {
		return nil, ErrConfigNotFound
	}
	return c.Benchmarker, nil
}

// EnsureEncoding returns the parallel-encoder config, creating the default
// if absent.
func (c *Config) EnsureEncoding() *ParallelEncoderConfig {
	if c.ParallelEncoder == nil {
		pe := DefaultParallelEncoder()
		c.ParallelEncoder = &pe
	}
	return c.ParallelEncoder
}
