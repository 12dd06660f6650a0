package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
)

// QualityCheck measures every encoded scene against the source and stores
// the result on the scene.
type QualityCheck struct {
	Info  ClipInfoer
	Meter Meter
	Log   hclog.Logger
}

func (*QualityCheck) sealed() {}

func (*QualityCheck) Details() Details { return qualityCheckDetails }

func checkConfig(c *condor.Condor) condor.QualityCheckConfig {
	if cfg, err := c.Config.Check(); err == nil {
		return *cfg
	}
	return condor.DefaultQualityCheck()
}

func (s *QualityCheck) Validate(c *condor.Condor) (Warnings, error) {
	if s.Meter == nil {
		return nil, errors.New("quality check needs a meter")
	}
	cfg := checkConfig(c)
	if cfg.Metric.Kind == "" {
		return nil, errors.New("no metric configured")
	}
	return nil, nil
}

func (s *QualityCheck) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	_, err := indexInput(ctx, c, s.Info, p, qualityCheckDetails.Name)
	return nil, err
}

func (s *QualityCheck) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := qualityCheckDetails.Name
	log := logger(s.Log)
	info, err := clipInfo(ctx, c, s.Info)
	if err != nil {
		return nil, err
	}
	if len(c.Scenes) == 0 {
		p.Whole(Completed(name))
		return Warnings{ErrScenesEmpty}, nil
	}
	cfg := checkConfig(c)

	var warnings Warnings
	total := len(c.Scenes)
	done := 0
	for i := range c.Scenes {
		sc := &c.Scenes[i]
		id := scene.ID(i)
		if _, err := sc.Data.Check(); err == nil {
			done++
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Completed(id))
			continue
		}
		if token.Cancelled() {
			return warnings, ErrCancelled
		}

		p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Processing(id, Frames{Total: uint64(sc.Frames())}))
		pass, err := s.measure(ctx, c, i, cfg, info.FrameRate)
		if err != nil {
			if ctx.Err() != nil {
				return warnings, ctx.Err()
			}
			warnings = append(warnings, &SceneError{Scene: id, Err: err})
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Failed(id, err))
			continue
		}
		sc.Data.QualityCheck = &scene.CheckData{Pass: pass}
		done++
		log.Debug("scene measured", "scene", id, "metric", cfg.Metric.String(), "score", pass.Score)
		p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Completed(id))
	}
	p.Whole(Completed(name))
	return warnings, nil
}

// measure scores every frame of the encoded scene and reduces the frames
// picked by the probing strategy.
func (s *QualityCheck) measure(ctx context.Context, c *condor.Condor, i int, cfg condor.QualityCheckConfig, fps condor.Rational) (scene.QualityPass, error) {
	sc := c.Scenes[i]
	pass := scene.QualityPass{StartedOn: scene.NowMillis()}
	path := c.ScenePath(i)
	fi, err := os.Stat(path)
	if err != nil {
		return pass, fmt.Errorf("%w: %s", ErrMissingSceneOutput, path)
	}

	all := make([]int, sc.Frames())
	for j := range all {
		all[j] = sc.StartFrame + j
	}
	scores, err := s.Meter.Measure(ctx, c.Input.Path, all, path, cfg.Metric)
	if err != nil {
		return pass, fmt.Errorf("measure %s: %w", cfg.Metric, err)
	}
	if len(scores) != len(all) {
		return pass, fmt.Errorf("measure %s: got %d scores for %d frames", cfg.Metric, len(scores), len(all))
	}

	picked := make([]float64, 0, len(scores))
	for _, f := range cfg.Probing.FrameIndices(sc.StartFrame, sc.EndFrame) {
		picked = append(picked, scores[f-sc.StartFrame])
	}
	score, err := cfg.Statistic.Reduce(picked)
	if err != nil {
		return pass, err
	}
	if q, ok := c.SceneEncoder(i).Quantizer(); ok {
		pass.Quantizer = q
	}
	pass.Scores = picked
	pass.Score = score
	pass.Bitrate = bitrate(uint64(fi.Size()), sc.Frames(), fps)
	pass.CompletedOn = scene.NowMillis()
	return pass, nil
}
