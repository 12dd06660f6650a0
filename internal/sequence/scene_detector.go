package sequence

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/scenedetect"
)

// SceneDetector splits the source into scenes. Detection resumes from the
// end of the last known scene and is skipped when the scenes already cover
// the whole clip.
type SceneDetector struct {
	Info   ClipInfoer
	Scorer SceneScorer
	Log    hclog.Logger
}

func (*SceneDetector) sealed() {}

func (*SceneDetector) Details() Details { return sceneDetectorDetails }

func (s *SceneDetector) Validate(c *condor.Condor) (Warnings, error) {
	if err := c.Encoder.Validate(); err != nil {
		return nil, err
	}
	cfg, err := c.Config.Detection()
	if err != nil {
		return nil, nil
	}
	if cfg.Method.Kind != "" {
		m := cfg.Method
		if m.Max == 0 {
			// Derived from the frame rate during initialization.
			m.Max = max(m.Min, scenedetect.DefaultMaxLength)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Method.Kind == scenedetect.CostBased && s.Scorer == nil {
		return nil, fmt.Errorf("cost based detection needs a scene scorer")
	}
	if _, err := scene.SortZones(cfg.Zones); err != nil {
		return nil, err
	}
	for _, z := range cfg.Zones {
		if z.Kind != "" {
			if err := z.Encoder(c.Encoder).Validate(); err != nil {
				return nil, fmt.Errorf("zone [%d, %d): %w", z.StartFrame, z.EndFrame, err)
			}
		}
	}
	return nil, nil
}

func (s *SceneDetector) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	var warnings Warnings
	info, err := indexInput(ctx, c, s.Info, p, sceneDetectorDetails.Name)
	if err != nil {
		return nil, err
	}

	if n := len(c.Scenes); n > 0 && c.Scenes[n-1].EndFrame > info.Frames {
		warnings = append(warnings, fmt.Errorf("%w: scenes end at %d, input has %d frames; detecting again",
			ErrInputFrameMismatch, c.Scenes[n-1].EndFrame, info.Frames))
		c.Scenes = nil
	}

	cfg, err := c.Config.Detection()
	if err != nil {
		cfg = &condor.SceneDetectionConfig{}
		c.Config.SceneDetection = cfg
	}
	if cfg.Method.Kind == "" {
		cfg.Method = scenedetect.DefaultMethod(info.FrameRate.Float())
		if s.Scorer == nil {
			cfg.Method.Kind = scenedetect.FixedLength
		}
	}
	if cfg.Method.Max == 0 {
		cfg.Method.Max = max(scenedetect.MaxLengthFor(info.FrameRate.Float()), cfg.Method.Min)
	}

	if cfg.ZonesFile != "" && len(cfg.Zones) == 0 {
		zones, zw, err := scene.ReadZoneFile(cfg.ZonesFile, info.Frames)
		for _, w := range zw {
			warnings = append(warnings, fmt.Errorf("%s", w))
		}
		if err != nil {
			return warnings, &FatalError{Stage: sceneDetectorDetails.Name, Err: err}
		}
		cfg.Zones = zones
	}
	zones, err := scene.SortZones(cfg.Zones)
	if err != nil {
		return warnings, &FatalError{Stage: sceneDetectorDetails.Name, Err: err}
	}
	for _, z := range zones {
		if z.StartFrame < 0 || z.EndFrame > info.Frames || z.StartFrame >= z.EndFrame {
			return warnings, &FatalError{Stage: sceneDetectorDetails.Name,
				Err: fmt.Errorf("zone [%d, %d) outside clip of %d frames", z.StartFrame, z.EndFrame, info.Frames)}
		}
	}
	cfg.Zones = zones
	return warnings, nil
}

func (s *SceneDetector) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := sceneDetectorDetails.Name
	log := logger(s.Log)
	info, err := clipInfo(ctx, c, s.Info)
	if err != nil {
		return nil, err
	}
	cfg, err := c.Config.Detection()
	if err != nil {
		return nil, err
	}
	total := info.Frames

	from := 0
	if n := len(c.Scenes); n > 0 {
		from = c.Scenes[n-1].EndFrame
	}
	if from == total {
		log.Debug("all scenes already detected", "scenes", len(c.Scenes))
		p.Whole(Completed(name))
		return nil, nil
	}
	log.Debug("detecting scenes", "method", cfg.Method.String(), "from", from, "frames", total)

	for _, seg := range scenedetect.Plan(cfg.Zones, from, total) {
		if token.Cancelled() {
			return nil, ErrCancelled
		}
		var scores map[int]scene.ScenecutScore
		if cfg.Method.Kind == scenedetect.CostBased {
			segStart := seg.StartFrame
			scores, err = s.Scorer.Score(ctx, c.Input.Path, seg.StartFrame, seg.EndFrame, cfg.Method.Speed, func(n int) {
				p.Whole(Processing(name, Frames{Completed: uint64(segStart + n), Total: uint64(total)}))
			})
			if err != nil {
				return nil, fmt.Errorf("score frames %d-%d: %w", seg.StartFrame, seg.EndFrame, err)
			}
		}

		scenes := cfg.Method.Detect(seg.StartFrame, seg.EndFrame, scores)
		scenedetect.AttachZone(scenes, seg.Zone, c.Encoder)
		for _, sc := range scenes {
			p.Whole(Processing(name, Custom{Name: "new-scene", Completed: float64(sc.StartFrame), Total: float64(sc.EndFrame)}))
		}
		c.Scenes = append(c.Scenes, scenes...)
		p.Whole(Processing(name, Frames{Completed: uint64(seg.EndFrame), Total: uint64(total)}))
	}

	if err := scene.ValidateList(c.Scenes, total); err != nil {
		return nil, err
	}
	log.Info("scenes detected", "scenes", len(c.Scenes), "zones", len(cfg.Zones))
	p.Whole(Completed(name))
	return nil, nil
}

func logger(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
