package tq

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ProbingKind selects which frames of a scene are measured.
type ProbingKind string

const (
	ProbeWhole  ProbingKind = "whole"
	ProbeSkip   ProbingKind = "skip"
	ProbeSubset ProbingKind = "subset"
	ProbeExact  ProbingKind = "exact"
)

// SubsetPosition anchors a subset window inside the scene.
type SubsetPosition string

const (
	PositionStart  SubsetPosition = "start"
	PositionMiddle SubsetPosition = "middle"
	PositionEnd    SubsetPosition = "end"
)

// ErrNoProbeFrames is returned when a strategy selects no frame of a scene,
// as exact probing does for a scene that holds none of its frames.
var ErrNoProbeFrames = errors.New("probing selects no frames")

// ProbingStrategy chooses the measured frames.
//
//	whole                     every frame
//	skip:N                    every N-th frame from the scene start
//	subset:POSITION:N         a window of N frames
//	subset:POSITION:P%        a window of P percent of the scene
//	exact:F1,F2,...           the listed frames that fall inside the scene
type ProbingStrategy struct {
	Kind     ProbingKind
	Skip     int
	Position SubsetPosition
	Length   float64 // Frames, or a percentage when Percent is set.
	Percent  bool
	Frames   []int
}

// DefaultProbing is the middle 11 frames of each scene.
func DefaultProbing() ProbingStrategy {
	return ProbingStrategy{Kind: ProbeSubset, Position: PositionMiddle, Length: 11}
}

// FrameIndices returns the frames of [start, end) to measure, ascending.
func (p ProbingStrategy) FrameIndices(start, end int) []int {
	if end <= start {
		return nil
	}
	switch p.Kind {
	case ProbeSkip:
		step := max(p.Skip, 1)
		out := make([]int, 0, (end-start+step-1)/step)
		for i := start; i < end; i += step {
			out = append(out, i)
		}
		return out
	case ProbeSubset:
		return p.subset(start, end)
	case ProbeExact:
		var out []int
		for _, f := range p.Frames {
			if f >= start && f < end {
				out = append(out, f)
			}
		}
		slices.Sort(out)
		return slices.Compact(out)
	default:
		return span(start, end)
	}
}

func (p ProbingStrategy) subset(start, end int) []int {
	total := end - start
	length := int(p.Length)
	if p.Percent {
		length = int(math.Round(p.Length / 100 * float64(total)))
	}
	length = min(max(length, 1), total)

	switch p.Position {
	case PositionStart:
		return span(start, min(start+length, end))
	case PositionEnd:
		return span(max(end-length, start), end)
	default:
		middle := start + total/2
		lo := max(middle-length/2, start)
		hi := min(middle+(length+1)/2, end)
		return span(lo, hi)
	}
}

func span(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}

func (p ProbingStrategy) String() string {
	switch p.Kind {
	case ProbeSkip:
		return fmt.Sprintf("skip:%d", p.Skip)
	case ProbeSubset:
		length := strconv.FormatFloat(p.Length, 'f', -1, 64)
		if p.Percent {
			length += "%"
		}
		return fmt.Sprintf("subset:%s:%s", p.Position, length)
	case ProbeExact:
		parts := make([]string, len(p.Frames))
		for i, f := range p.Frames {
			parts[i] = strconv.Itoa(f)
		}
		return "exact:" + strings.Join(parts, ",")
	}
	return string(ProbeWhole)
}

// ParseProbing parses the forms listed on [ProbingStrategy].
func ParseProbing(s string) (ProbingStrategy, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), ":")
	switch ProbingKind(parts[0]) {
	case ProbeWhole:
		if len(parts) != 1 {
			return ProbingStrategy{}, fmt.Errorf("probing %q: whole takes no arguments", s)
		}
		return ProbingStrategy{Kind: ProbeWhole}, nil

	case ProbeSkip:
		if len(parts) != 2 {
			return ProbingStrategy{}, fmt.Errorf("probing %q: expected skip:N", s)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return ProbingStrategy{}, fmt.Errorf("probing %q: skip must be a positive integer", s)
		}
		return ProbingStrategy{Kind: ProbeSkip, Skip: n}, nil

	case ProbeSubset:
		if len(parts) != 3 {
			return ProbingStrategy{}, fmt.Errorf("probing %q: expected subset:start|middle|end:LENGTH", s)
		}
		pos := SubsetPosition(parts[1])
		if pos != PositionStart && pos != PositionMiddle && pos != PositionEnd {
			return ProbingStrategy{}, fmt.Errorf("probing %q: unknown position %q", s, parts[1])
		}
		raw, percent := strings.CutSuffix(parts[2], "%")
		length, err := strconv.ParseFloat(raw, 64)
		if err != nil || length <= 0 || (percent && length > 100) {
			return ProbingStrategy{}, fmt.Errorf("probing %q: invalid length %q", s, parts[2])
		}
		if !percent && length != math.Trunc(length) {
			return ProbingStrategy{}, fmt.Errorf("probing %q: frame count must be whole", s)
		}
		return ProbingStrategy{Kind: ProbeSubset, Position: pos, Length: length, Percent: percent}, nil

	case ProbeExact:
		if len(parts) != 2 || parts[1] == "" {
			return ProbingStrategy{}, fmt.Errorf("probing %q: expected exact:F1,F2,...", s)
		}
		var frames []int
		for f := range strings.SplitSeq(parts[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || n < 0 {
				return ProbingStrategy{}, fmt.Errorf("probing %q: invalid frame %q", s, f)
			}
			frames = append(frames, n)
		}
		return ProbingStrategy{Kind: ProbeExact, Frames: frames}, nil
	}
	return ProbingStrategy{}, fmt.Errorf("unknown probing strategy %q (use whole, skip, subset or exact)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p ProbingStrategy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProbingStrategy) UnmarshalText(b []byte) error {
	v, err := ParseProbing(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
