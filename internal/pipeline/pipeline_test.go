package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/logging"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/sequence"
	"github.com/backmassage/condor/internal/worker"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	log, err := logging.NewLogger(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

// runConfig returns a validated config for an input inside a fresh dir.
func runConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Input = filepath.Join(dir, "in.mkv")
	cfg.Output = filepath.Join(dir, "out.mkv")
	writeFile(t, cfg.Input, 4096)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestIsMedia(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"movie.mkv", true},
		{"clip.MP4", true},
		{"raw.y4m", true},
		{"music.mp3", false},
		{"noext", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMedia(tt.path))
		})
	}
}

func TestResolvePaths(t *testing.T) {
	log := testLogger(t)

	t.Run("valid", func(t *testing.T) {
		cfg := runConfig(t)
		p, err := ResolvePaths(&cfg, log)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(p.Input))
		assert.Equal(t, int64(4096), p.Size)
		assert.Equal(t, ".out.condor", filepath.Base(p.WorkDir))
	})

	t.Run("too small", func(t *testing.T) {
		cfg := runConfig(t)
		writeFile(t, cfg.Input, 10)
		_, err := ResolvePaths(&cfg, log)
		assert.ErrorIs(t, err, ErrInputTooSmall)
	})

	t.Run("missing", func(t *testing.T) {
		cfg := runConfig(t)
		cfg.Input += ".gone"
		_, err := ResolvePaths(&cfg, log)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("output overwrites input through symlink", func(t *testing.T) {
		cfg := runConfig(t)
		link := filepath.Join(filepath.Dir(cfg.Input), "link")
		require.NoError(t, os.Symlink(filepath.Dir(cfg.Input), link))
		cfg.Output = filepath.Join(link, "in.mkv")
		_, err := ResolvePaths(&cfg, log)
		assert.Error(t, err)
	})
}

func TestResolve_NonExistentTail(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := resolve(filepath.Join(dir, "a", "b.mkv"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "a", "b.mkv"), got)
}

func TestOpenProject(t *testing.T) {
	log := testLogger(t)
	cfg := runConfig(t)
	cfg.Workers = 0
	p, err := ResolvePaths(&cfg, log)
	require.NoError(t, err)

	c, resumed, err := OpenProject(&cfg, p)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.DirExists(t, p.WorkDir)
	require.NotNil(t, c.Config.SceneDetection)
	assert.Equal(t, p.Input, c.Input.Path)

	c.Scenes = []scene.Scene{{StartFrame: 0, EndFrame: 48}}
	require.NoError(t, condor.Save(ProjectPath(p.WorkDir), c))

	t.Run("resume keeps project and takes pool size", func(t *testing.T) {
		cfg := cfg
		cfg.Workers = 3
		cfg.Buffer = worker.BufferStrategy{Kind: worker.BufferNone}
		got, resumed, err := OpenProject(&cfg, p)
		require.NoError(t, err)
		assert.True(t, resumed)
		assert.Equal(t, c.ID, got.ID)
		assert.Len(t, got.Scenes, 1)
		pe, err := got.Config.Encoding()
		require.NoError(t, err)
		assert.Equal(t, 3, pe.Workers)
		assert.Equal(t, worker.BufferNone, pe.Buffer.Kind)
	})

	t.Run("different output", func(t *testing.T) {
		other := p
		other.Output = filepath.Join(filepath.Dir(p.Output), "other.mkv")
		_, _, err := OpenProject(&cfg, other)
		assert.ErrorIs(t, err, ErrProjectMismatch)
	})

	t.Run("force starts over", func(t *testing.T) {
		cfg := cfg
		cfg.Force = true
		scenes := c.ScenesDir()
		require.NoError(t, os.MkdirAll(scenes, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(scenes, "00000.mkv"), []byte("x"), 0o644))
		stage := c.StageDir("Target Quality")
		require.NoError(t, os.MkdirAll(stage, 0o755))
		unrelated := filepath.Join(p.WorkDir, "notes.txt")
		require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

		got, resumed, err := OpenProject(&cfg, p)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.NotEqual(t, c.ID, got.ID)
		assert.NoFileExists(t, ProjectPath(p.WorkDir))
		assert.NoDirExists(t, scenes)
		assert.NoDirExists(t, stage)
		assert.FileExists(t, unrelated)
	})
}

func TestBuildStages(t *testing.T) {
	log := testLogger(t)
	cfg := runConfig(t)
	col := newCollaborators(cfg.Input, &cfg, log)

	enc, err := cfg.BuildEncoder()
	require.NoError(t, err)
	c := condor.New(cfg.Input, cfg.Output, cfg.WorkDir, enc)
	c.Config = cfg.StageConfig()
	stages := buildStages(context.Background(), c, col)
	require.Len(t, stages, 3)
	assert.IsType(t, &sequence.SceneDetector{}, stages[0])
	assert.IsType(t, &sequence.ParallelEncoder{}, stages[1])
	assert.IsType(t, &sequence.SceneConcatenator{}, stages[2])

	cfg.TargetQuality, cfg.QualityCheck, cfg.Benchmark = true, true, true
	c.Config = cfg.StageConfig()
	stages = buildStages(context.Background(), c, col)
	var names []string
	for _, s := range stages {
		names = append(names, s.Details().Name)
	}
	assert.Equal(t, []string{
		"Scene Detector", "Target Quality", "Benchmarker",
		"Parallel Encoder", "Scene Concatenator", "Quality Check",
	}, names)
}

func TestRunStats(t *testing.T) {
	s := newRunStats()
	pe := sequence.Details{Name: "Parallel Encoder"}
	parent := sequence.Processing("Parallel Encoder", sequence.Scenes{})
	for _, child := range []sequence.Unit{
		sequence.Completed("00000"),
		sequence.Completed("00001"),
		sequence.Failed("00002", errors.New("boom")),
		sequence.Processing("00003", sequence.Frames{Completed: 1, Total: 2}),
	} {
		st := sequence.Subprocess(parent, child)
		s.Observe(sequence.Event{Details: pe, Phase: sequence.PhaseProcessing, Status: &st})
	}
	s.Observe(sequence.Event{Details: pe, Phase: sequence.PhaseCompleted})

	require.Contains(t, s.Units, "Parallel Encoder")
	assert.Equal(t, Tally{Completed: 2, Failed: 1}, *s.Units["Parallel Encoder"])

	c := &condor.Condor{Scenes: []scene.Scene{{StartFrame: 0, EndFrame: 120}, {StartFrame: 120, EndFrame: 240}}}
	s.finish(c, sequence.Report{}, 1000, 400, 4*time.Second)
	assert.Equal(t, 2, s.Scenes)
	assert.Equal(t, 240, s.Frames)
	assert.Equal(t, int64(600), s.SpaceSaved())
	assert.InDelta(t, 60.0, s.FPS(), 1e-9)

	assert.Zero(t, newRunStats().FPS())
}

func TestComputeStats(t *testing.T) {
	b := computeStats([]float64{100, 110, 120, 130, 140, 150, 160, 170})
	require.True(t, b.valid)
	assert.Equal(t, "", b.classify(135, false))
	assert.Equal(t, "extreme", b.classify(5000, false))
	assert.Equal(t, "", b.classify(5000, true), "high values pass when only low side counts")
	assert.Equal(t, "", b.classify(0, false), "unknown values are never flagged")

	assert.False(t, computeStats([]float64{1, 2, 3}).valid, "too few samples")
	assert.False(t, computeStats([]float64{5, 5, 5, 5}).valid, "no spread")
}

func TestWorstFlag(t *testing.T) {
	assert.Equal(t, "", worstFlag("", ""))
	assert.Equal(t, "outlier", worstFlag("", "outlier"))
	assert.Equal(t, "extreme", worstFlag("outlier", "extreme"))
}

func TestSceneRows(t *testing.T) {
	q := 30.0
	c := &condor.Condor{
		Input: condor.Input{Info: &condor.ClipInfo{Frames: 48, FrameRate: condor.Rational{Num: 24, Den: 1}}},
		Scenes: []scene.Scene{
			{StartFrame: 0, EndFrame: 24, Data: scene.Data{
				ParallelEncoder: &scene.EncodeData{Bytes: 125000},
				QualityCheck:    &scene.CheckData{Pass: scene.QualityPass{Score: 93.5}},
			}},
			{StartFrame: 24, EndFrame: 48, Data: scene.Data{
				TargetQuality: &scene.QualityData{Quantizer: &q, Score: 95},
			}},
		},
	}
	rows := sceneRows(c)
	require.Len(t, rows, 2)
	assert.Equal(t, "00000", rows[0].ID)
	assert.InDelta(t, 1000.0, rows[0].Kbps, 1e-9)
	assert.Equal(t, 93.5, rows[0].Score)
	assert.Zero(t, rows[1].Kbps)
	assert.True(t, rows[1].HasScore)
	assert.Equal(t, 95.0, rows[1].Score)
}
