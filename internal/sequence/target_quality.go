package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

// TargetQuality searches each scene for the highest quantizer whose measured
// quality lands in the target range. Scenes are searched one at a time with
// one probe in flight.
type TargetQuality struct {
	Info    ClipInfoer
	Decoder worker.Decoder
	Encoder worker.Encoder
	Meter   Meter
	Log     hclog.Logger
}

func (*TargetQuality) sealed() {}

func (*TargetQuality) Details() Details { return targetQualityDetails }

func (s *TargetQuality) Validate(c *condor.Condor) (Warnings, error) {
	cfg, err := c.Config.Quality()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.Decoder == nil || s.Encoder == nil || s.Meter == nil {
		return nil, errors.New("target quality needs a decoder, an encoder and a meter")
	}
	if err := c.Encoder.Validate(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *TargetQuality) Initialize(ctx context.Context, c *condor.Condor, p *Progress) (Warnings, error) {
	if _, err := indexInput(ctx, c, s.Info, p, targetQualityDetails.Name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.StageDir(targetQualityDetails.Name), 0o755); err != nil {
		return nil, fmt.Errorf("create probe directory: %w", err)
	}
	return nil, nil
}

func (s *TargetQuality) Process(ctx context.Context, c *condor.Condor, p *Progress, token *Token) (Warnings, error) {
	name := targetQualityDetails.Name
	log := logger(s.Log)
	cfg, err := c.Config.Quality()
	if err != nil {
		return nil, err
	}
	info, err := clipInfo(ctx, c, s.Info)
	if err != nil {
		return nil, err
	}
	if len(c.Scenes) == 0 {
		return Warnings{ErrScenesEmpty}, nil
	}

	var warnings Warnings
	total := len(c.Scenes)
	done := 0
	for i := range c.Scenes {
		sc := &c.Scenes[i]
		id := scene.ID(i)
		if qd, err := sc.Data.Quality(); err == nil && qd.Quantizer != nil {
			done++
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Completed(id))
			continue
		}
		if token.Cancelled() {
			return warnings, ErrCancelled
		}

		if len(cfg.Probing.FrameIndices(sc.StartFrame, sc.EndFrame)) == 0 {
			err := fmt.Errorf("%w in %s", tq.ErrNoProbeFrames, sc)
			warnings = append(warnings, &SceneError{Scene: id, Err: err})
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Failed(id, err))
			log.Warn("quality search skipped", "scene", id, "probing", cfg.Probing.String())
			continue
		}

		qd := sc.Data.EnsureQuality()
		history := qd.Passes
		probe := s.probe(c, i, *cfg, info.FrameRate, func(n int) {
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}),
				Processing(id, Passes{Completed: n, Total: cfg.MaximumProbes}))
		}, len(history))

		res, err := tq.Search(ctx, *cfg, history, probe, token)
		for _, pass := range res.Passes[min(len(history), len(res.Passes)):] {
			qd.Record(pass)
		}
		if err != nil {
			if errors.Is(err, tq.ErrCancelled) {
				return warnings, ErrCancelled
			}
			if ctx.Err() != nil {
				return warnings, ctx.Err()
			}
			se := &SceneError{Scene: id, Err: err}
			warnings = append(warnings, se)
			p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Failed(id, err))
			log.Warn("quality search failed", "scene", id, "error", err)
			continue
		}

		q := res.Quantizer
		qd.Quantizer, qd.Score = &q, res.Score
		enc := c.SceneEncoder(i).WithQuantizer(q)
		sc.Encoder = &enc
		done++
		log.Debug("quantizer chosen", "scene", id, "quantizer", q, "score", res.Score,
			"probes", len(res.Passes), "reason", string(res.Reason))
		p.Sub(Processing(name, Scenes{Completed: done, Total: total}), Completed(id))
	}
	p.Whole(Completed(name))
	return warnings, nil
}

// probe builds the search's probe for scene i: encode the selected frames
// with psychovisual tuning stripped, then measure them against the source.
// prior is the number of passes already recorded for the scene.
func (s *TargetQuality) probe(c *condor.Condor, i int, cfg tq.Config, fps condor.Rational, report func(n int), prior int) tq.ProbeFunc {
	sc := c.Scenes[i]
	frames := cfg.Probing.FrameIndices(sc.StartFrame, sc.EndFrame)
	base := c.SceneEncoder(i).WithoutPsychovisual()
	dir := c.StageDir(targetQualityDetails.Name)
	n := prior

	return func(ctx context.Context, q float64) (scene.QualityPass, error) {
		n++
		report(n)
		var pass scene.QualityPass
		pass.StartedOn = scene.NowMillis()

		t := worker.Task{
			Index:      i,
			ID:         scene.ID(i),
			StartFrame: sc.StartFrame,
			EndFrame:   sc.EndFrame,
			Frames:     frames,
			Encoder:    base.WithQuantizer(q),
			Output:     filepath.Join(dir, scene.ID(i)+"_"+strconv.FormatFloat(q, 'f', -1, 64)+condor.SceneExt),
		}
		size, err := encodeProbe(ctx, s.Decoder, s.Encoder, t)
		if err != nil {
			return pass, err
		}
		scores, err := s.Meter.Measure(ctx, c.Input.Path, frames, t.Output, cfg.Metric)
		if err != nil {
			return pass, fmt.Errorf("measure %s: %w", cfg.Metric, err)
		}
		if len(scores) != len(frames) {
			return pass, fmt.Errorf("measure %s: got %d scores for %d frames", cfg.Metric, len(scores), len(frames))
		}
		pass.Scores = scores
		pass.Bitrate = bitrate(size, len(frames), fps)
		pass.CompletedOn = scene.NowMillis()
		return pass, nil
	}
}

// encodeProbe runs a single encode outside the worker pool and moves the
// result to t.Output.
func encodeProbe(ctx context.Context, dec worker.Decoder, enc worker.Encoder, t worker.Task) (uint64, error) {
	rc, err := dec.Decode(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	defer rc.Close()
	size, err := enc.Encode(ctx, t, rc, func(int, uint64) {})
	if err != nil {
		os.Remove(t.TempOutput())
		return 0, fmt.Errorf("encode: %w", err)
	}
	if err := os.Rename(t.TempOutput(), t.Output); err != nil {
		return 0, fmt.Errorf("finalize probe: %w", err)
	}
	return size, nil
}

// bitrate is kilobits per second of an encode of n frames.
func bitrate(bytes uint64, n int, fps condor.Rational) float64 {
	rate := fps.Float()
	if n == 0 || rate == 0 {
		return 0
	}
	return float64(bytes) * 8 / 1000 / (float64(n) / rate)
}
