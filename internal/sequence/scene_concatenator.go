package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
)

// SceneConcatenator joins the encoded scenes, in order, into the output.
type SceneConcatenator struct {
	Info   ClipInfoer
	Concat Concatenator
	Log    hclog.Logger
}

func (*SceneConcatenator) sealed() {}

func (*SceneConcatenator) Details() Details { return sceneConcatenatorDetails }

func concatMethod(c *condor.Condor) condor.ConcatMethod {
	if cfg, err := c.Config.Concatenation(); err == nil && cfg.Method != "" {
		return cfg.Method
	}
	return condor.ConcatFFmpeg
}

func (s *SceneConcatenator) Validate(c *condor.Condor) (Warnings, error) {
	if s.Concat == nil {
		return nil, errors.New("no concatenator configured")
	}
	if c.Output.Path == "" {
		return nil, errors.New("no output path")
	}
	if err := s.Concat.Available(concatMethod(c)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *SceneConcatenator) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	if _, err := indexInput(ctx, c, s.Info, p, sceneConcatenatorDetails.Name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.StageDir(sceneConcatenatorDetails.Name), 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return nil, nil
}

func (s *SceneConcatenator) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := sceneConcatenatorDetails.Name
	info, err := clipInfo(ctx, c, s.Info)
	if err != nil {
		return nil, err
	}

	var warnings Warnings
	paths := make([]string, 0, len(c.Scenes))
	for i := range c.Scenes {
		path := c.ScenePath(i)
		if _, err := os.Stat(path); err != nil {
			warnings = append(warnings, fmt.Errorf("%w: %s", ErrMissingSceneOutput, path))
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return warnings, ErrScenesEmpty
	}
	if token.Cancelled() {
		return warnings, ErrCancelled
	}

	m := concatMethod(c)
	p.Whole(Processing(name, Scenes{Completed: 0, Total: len(paths)}))
	logger(s.Log).Info("concatenating scenes", "scenes", len(paths), "method", string(m), "output", c.Output.Path)
	if err := s.Concat.Concat(ctx, m, paths, c.Output.Path, c.StageDir(name), info.FrameRate); err != nil {
		return warnings, fmt.Errorf("concatenate with %s: %w", m, err)
	}
	p.Whole(Completed(name))
	return warnings, nil
}
