package tq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/backmassage/condor/internal/scene"
)

// ProbeFunc encodes the scene at quantizer q and measures it. The returned
// pass carries per-frame scores; Search fills in the reduced Score.
type ProbeFunc func(ctx context.Context, q float64) (scene.QualityPass, error)

// Canceller is polled before each probe.
type Canceller interface {
	Cancelled() bool
}

// ErrCancelled is returned when the canceller fires before the search ends.
var ErrCancelled = errors.New("target quality search cancelled")

// Reason records why the search stopped.
type Reason string

const (
	ReasonInRange    Reason = "in range"
	ReasonProbeLimit Reason = "probe limit"
	ReasonBoundary   Reason = "range boundary"
	ReasonRepeated   Reason = "repeated quantizer"
)

// Result is the accepted probe and the full pass history.
type Result struct {
	Quantizer float64
	Score     float64
	Passes    []scene.QualityPass
	Reason    Reason
}

// searcher holds the bracket [lo, hi] of quantizers still worth probing.
type searcher struct {
	cfg    Config
	lo, hi float64
	passes []scene.QualityPass
	sign   float64 // -1 when lower scores are better.
}

// Search probes quantizers until a score lands in cfg.Target or the search
// can make no further progress. history holds passes from an earlier run
// and is replayed before any new probe. The returned Result always carries
// every pass, including on error, so callers can persist partial progress.
func Search(ctx context.Context, cfg Config, history []scene.QualityPass, probe ProbeFunc, token Canceller) (Result, error) {
	s := &searcher{cfg: cfg, lo: cfg.QRange[0], hi: cfg.QRange[1], sign: 1}
	if cfg.Metric.Kind.Inverse() {
		s.sign = -1
	}

	for _, p := range history {
		if done, ok := s.add(p); ok {
			return done, nil
		}
	}

	for {
		if len(s.passes) >= max(cfg.MaximumProbes, 1) {
			return s.best(ReasonProbeLimit), nil
		}
		if s.lo > s.hi {
			return s.boundary(), nil
		}
		if token != nil && token.Cancelled() {
			return s.result(ReasonProbeLimit), ErrCancelled
		}

		q := s.next()
		if s.probed(q) {
			return s.best(ReasonRepeated), nil
		}

		started := scene.NowMillis()
		pass, err := probe(ctx, q)
		if err != nil {
			return s.result(ReasonProbeLimit), fmt.Errorf("probe at %g: %w", q, err)
		}
		pass.Quantizer = q
		if pass.StartedOn == 0 {
			pass.StartedOn = started
		}
		if pass.CompletedOn == 0 {
			pass.CompletedOn = scene.NowMillis()
		}
		score, err := cfg.Statistic.Reduce(pass.Scores)
		if err != nil {
			return s.result(ReasonProbeLimit), fmt.Errorf("probe at %g: %w", q, err)
		}
		pass.Score = score

		if done, ok := s.add(pass); ok {
			return done, nil
		}
	}
}

// add records a pass and narrows the bracket. It reports a finished result
// when the pass is in range.
func (s *searcher) add(p scene.QualityPass) (Result, bool) {
	s.passes = append(s.passes, p)
	if s.cfg.InRange(p.Score) {
		r := s.result(ReasonInRange)
		r.Quantizer, r.Score = p.Quantizer, p.Score
		return r, true
	}
	if s.effective(p.Score) > s.effective(s.tooGood()) {
		// Quality to spare: a higher quantizer is worth trying.
		s.lo = max(s.lo, p.Quantizer+1)
	} else {
		s.hi = min(s.hi, p.Quantizer-1)
	}
	return Result{}, false
}

// tooGood is the edge of the target range past which quality is wasted.
func (s *searcher) tooGood() float64 {
	if s.sign < 0 {
		return s.cfg.Target[0]
	}
	return s.cfg.Target[1]
}

func (s *searcher) effective(score float64) float64 { return s.sign * score }

func (s *searcher) midpoint() float64 {
	return math.Floor((s.lo + s.hi) / 2)
}

// next picks the quantizer for the following probe.
func (s *searcher) next() float64 {
	var q float64
	switch len(s.passes) {
	case 0, 1:
		q = s.midpoint()
	default:
		method := interpolator(s.cfg, len(s.passes))
		scores := make([]float64, len(s.passes))
		qs := make([]float64, len(s.passes))
		for i, p := range s.passes {
			scores[i], qs[i] = s.effective(p.Score), p.Quantizer
		}
		target := s.effective((s.cfg.Target[0] + s.cfg.Target[1]) / 2)
		v, err := Inverse(method, scores, qs, target)
		if err != nil {
			v = s.midpoint()
		}
		q = math.Round(v)
	}
	return min(max(q, s.lo), s.hi)
}

// interpolator picks the method for n probes: a line through two, the
// bootstrap method at three and the refinement method from four on.
func interpolator(cfg Config, n int) Method {
	switch {
	case n <= 2:
		return Linear
	case n == 3:
		return cfg.Interpolators[0]
	default:
		return cfg.Interpolators[1]
	}
}

func (s *searcher) probed(q float64) bool {
	return slices.ContainsFunc(s.passes, func(p scene.QualityPass) bool { return p.Quantizer == q })
}

// best accepts the in-range probe with the highest quantizer, or failing
// that the probe whose score is closest to the middle of the target range.
func (s *searcher) best(reason Reason) Result {
	r := s.result(reason)
	if len(s.passes) == 0 {
		return r
	}
	mid := (s.cfg.Target[0] + s.cfg.Target[1]) / 2
	pick := s.passes[0]
	for _, p := range s.passes[1:] {
		pIn, pickIn := s.cfg.InRange(p.Score), s.cfg.InRange(pick.Score)
		switch {
		case pIn && !pickIn:
			pick = p
		case pIn == pickIn && pIn && p.Quantizer > pick.Quantizer:
			pick = p
		case pIn == pickIn && !pIn:
			d, dp := math.Abs(p.Score-mid), math.Abs(pick.Score-mid)
			if d < dp || (d == dp && p.Quantizer > pick.Quantizer) {
				pick = p
			}
		}
	}
	r.Quantizer, r.Score = pick.Quantizer, pick.Score
	return r
}

// boundary handles a collapsed bracket. When it collapsed against an edge of
// the quantizer range the probe at that edge is accepted.
func (s *searcher) boundary() Result {
	switch {
	case s.lo > s.cfg.QRange[1]:
		return s.extreme(true)
	case s.hi < s.cfg.QRange[0]:
		return s.extreme(false)
	}
	return s.best(ReasonBoundary)
}

func (s *searcher) extreme(highest bool) Result {
	r := s.result(ReasonBoundary)
	if len(s.passes) == 0 {
		return r
	}
	pick := s.passes[0]
	for _, p := range s.passes[1:] {
		if (highest && p.Quantizer > pick.Quantizer) || (!highest && p.Quantizer < pick.Quantizer) {
			pick = p
		}
	}
	r.Quantizer, r.Score = pick.Quantizer, pick.Score
	return r
}

func (s *searcher) result(reason Reason) Result {
	return Result{Passes: slices.Clone(s.passes), Reason: reason}
}
