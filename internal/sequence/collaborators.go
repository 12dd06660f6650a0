package sequence

import (
	"context"
	"fmt"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
)

// The stages reach decoders, encoders and measuring tools only through
// these interfaces, together with worker.Decoder and worker.Encoder.

// ClipInfoer reads frame count and frame rate from a source.
type ClipInfoer interface {
	ClipInfo(ctx context.Context, path string) (condor.ClipInfo, error)
}

// SceneScorer scores every frame boundary in [start, end) of a source.
// progress receives the number of frames analysed so far.
type SceneScorer interface {
	Score(ctx context.Context, path string, start, end int, speed scenedetect.Speed, progress func(frames int)) (map[int]scene.ScenecutScore, error)
}

// Meter compares an encode with the source and returns one score per
// frame. frames lists the source frames that the encode contains, in
// order.
type Meter interface {
	Measure(ctx context.Context, source string, frames []int, distorted string, m tq.Metric) ([]float64, error)
}

// Concatenator joins encoded scenes into output. scratch is a directory it
// may use for list and option files.
type Concatenator interface {
	Available(method condor.ConcatMethod) error
	Concat(ctx context.Context, method condor.ConcatMethod, scenes []string, output, scratch string, fps condor.Rational) error
}

// MemoryProbe reports memory available for encoder processes, in bytes.
type MemoryProbe interface {
	AvailableMemory(ctx context.Context) (uint64, error)
}

// clipInfo returns the source's clip info, reading it once and caching it
// on the aggregate.
func clipInfo(ctx context.Context, c *condor.Condor, info ClipInfoer) (*condor.ClipInfo, error) {
	if c.Input.Info != nil {
		return c.Input.Info, nil
	}
	if info == nil {
		return nil, ErrClipInfoMissing
	}
	ci, err := info.ClipInfo(ctx, c.Input.Path)
	if err != nil {
		return nil, fmt.Errorf("read clip info: %w", err)
	}
	c.Input.Info = &ci
	return c.Input.Info, nil
}

// indexInput reports clip indexing as a custom unit around the lookup.
func indexInput(ctx context.Context, c *condor.Condor, info ClipInfoer, p *Progress, stage string) (*condor.ClipInfo, error) {
	if c.Input.Info != nil {
		return c.Input.Info, nil
	}
	p.Whole(Processing(stage, Custom{Name: "Indexing Input", Total: 1}))
	ci, err := clipInfo(ctx, c, info)
	if err != nil {
		p.Whole(Failed(stage, err))
		return nil, err
	}
	p.Whole(Processing(stage, Custom{Name: "Indexing Input", Completed: 1, Total: 1}))
	return ci, nil
}
