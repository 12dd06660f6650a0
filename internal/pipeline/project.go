package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/sequence"
)

// ErrProjectMismatch is returned when the work directory holds a project
// for another input or output.
var ErrProjectMismatch = errors.New("work directory belongs to a different project (use --force to start over)")

// ProjectPath is the project file inside workDir.
func ProjectPath(workDir string) string {
	return filepath.Join(workDir, condor.ProjectFile)
}

// OpenProject resumes the project saved in p.WorkDir or starts a new one.
// With cfg.Force an existing project is discarded first: its project file,
// scenes and stage scratch directories. Other files in the work directory
// are left alone. A resumed
// project keeps its saved stage settings; only the worker pool size and
// buffer come from cfg.
func OpenProject(cfg *config.Config, p Paths) (c *condor.Condor, resumed bool, err error) {
	path := ProjectPath(p.WorkDir)
	if cfg.Force {
		if err := discardProject(path, p.WorkDir); err != nil {
			return nil, false, fmt.Errorf("discard project: %w", err)
		}
	}

	c, err = condor.Load(path)
	switch {
	case errors.Is(err, condor.ErrNoProject):
		return newProject(cfg, p)
	case err != nil:
		return nil, false, err
	}

	if c.Input.Path != p.Input || c.Output.Path != p.Output {
		return nil, false, fmt.Errorf("%w: saved %s -> %s", ErrProjectMismatch, c.Input.Path, c.Output.Path)
	}
	c.WorkDir = p.WorkDir
	pe := c.Config.EnsureEncoding()
	if cfg.Workers > 0 {
		pe.Workers = cfg.Workers
	}
	pe.Buffer = cfg.Buffer
	return c, true, nil
}

func discardProject(path, workDir string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	old, err := condor.Load(path)
	if err != nil {
		// Unreadable project: fall back to the default layout.
		old = &condor.Condor{}
	}
	old.WorkDir = workDir
	for _, dir := range sequence.ScratchDirs(old) {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return os.Remove(path)
}

func newProject(cfg *config.Config, p Paths) (*condor.Condor, bool, error) {
	enc, err := cfg.BuildEncoder()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create work dir: %w", err)
	}
	c := condor.New(p.Input, p.Output, p.WorkDir, enc)
	c.Config = cfg.StageConfig()
	return c, false, nil
}
