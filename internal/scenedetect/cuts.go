package scenedetect

import (
	"maps"
	"math"
	"slices"

	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scene"
)

// Cuts returns the ascending scene boundaries strictly inside (start, end).
// scores is only read by CostBased methods and may be nil otherwise.
//
// Every method goes through the same length enforcement: candidates closer
// than Min to the previous cut are dropped, a trailing scene shorter than Min
// is merged into the one before it, and any scene longer than Max is split
// into ceil(len/Max) near-equal pieces. When Max is below twice Min the
// piece count is capped at floor(len/Min), so a scene may stay longer than
// Max rather than fall below Min.
func (m Method) Cuts(start, end int, scores map[int]scene.ScenecutScore) []int {
	if end-start <= 0 {
		return nil
	}
	var candidates []int
	switch m.Kind {
	case CostBased:
		candidates = m.costCandidates(start, end, scores)
	default:
		for c := start + m.Max; c < end; c += m.Max {
			candidates = append(candidates, c)
		}
	}
	return m.enforce(start, end, candidates)
}

func (m Method) costCandidates(start, end int, scores map[int]scene.ScenecutScore) []int {
	var out []int
	for _, frame := range slices.Sorted(maps.Keys(scores)) {
		if frame <= start || frame >= end {
			continue
		}
		s := scores[frame]
		cost := s.AdjustedCost()
		if m.Speed == Fast {
			cost = s.InterCost
		}
		if cost > s.Threshold {
			out = append(out, frame)
		}
	}
	return out
}

func (m Method) enforce(start, end int, candidates []int) []int {
	minLen := max(m.Min, 1)
	maxLen := max(m.Max, minLen)

	var cuts []int
	prev := start
	for _, c := range candidates {
		if c-prev >= minLen && c < end {
			cuts = append(cuts, c)
			prev = c
		}
	}
	if n := len(cuts); n > 0 && end-cuts[n-1] < minLen {
		cuts = cuts[:n-1]
	}

	var out []int
	prev = start
	for _, c := range append(cuts, end) {
		out = append(out, split(prev, c, minLen, maxLen)...)
		if c != end {
			out = append(out, c)
		}
		prev = c
	}
	return out
}

// split returns the interior boundaries that divide [a, b) into
// ceil(len/maxLen) near-equal pieces, but never so many that a piece is
// shorter than minLen.
func split(a, b, minLen, maxLen int) []int {
	length := b - a
	if length <= maxLen {
		return nil
	}
	pieces := min((length+maxLen-1)/maxLen, length/minLen)
	if pieces < 2 {
		return nil
	}
	out := make([]int, 0, pieces-1)
	for k := 1; k < pieces; k++ {
		out = append(out, a+int(math.Round(float64(k*length)/float64(pieces))))
	}
	return out
}

// Detect turns [start, end) into scenes. Each scene keeps the scores of
// frames inside it as audit data.
func (m Method) Detect(start, end int, scores map[int]scene.ScenecutScore) []scene.Scene {
	scenes := scene.FromCuts(start, end, m.Cuts(start, end, scores))
	if m.Kind != CostBased {
		return scenes
	}
	for i := range scenes {
		s := &scenes[i]
		kept := make(map[int]scene.ScenecutScore)
		for f, sc := range scores {
			if f >= s.StartFrame && f < s.EndFrame {
				kept[f] = sc
			}
		}
		if len(kept) > 0 {
			s.Data.EnsureDetection().ScenecutScores = kept
		}
	}
	return scenes
}

// Plan lays zones over [from, frames) and returns the segments that still
// need detection. Segments before from are already covered by an earlier run.
func Plan(zones []scene.Zone, from, frames int) []scene.Segment {
	var out []scene.Segment
	for _, seg := range scene.Segments(zones, frames) {
		if seg.EndFrame <= from {
			continue
		}
		seg.StartFrame = max(seg.StartFrame, from)
		out = append(out, seg)
	}
	return out
}

// AttachZone gives every scene in scenes the encoder resolved for zone.
func AttachZone(scenes []scene.Scene, zone *scene.Zone, def encoder.Encoder) {
	if zone == nil {
		return
	}
	for i := range scenes {
		enc := zone.Encoder(def)
		scenes[i].Encoder = &enc
	}
}
