package scene

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/backmassage/condor/internal/encoder"
)

// ErrOverlappingZones is fatal: two zones claim the same frames.
var ErrOverlappingZones = errors.New("overlapping zones")

// Zone is a user-declared frame range with its own encoder settings.
// Zones are laid over the clip before scene detection so that no scene
// crosses a zone boundary.
type Zone struct {
	StartFrame int                          `yaml:"start_frame"`
	EndFrame   int                          `yaml:"end_frame"`
	Kind       encoder.Kind                 `yaml:"kind,omitempty"` // Empty keeps the default encoder.
	Reset      bool                         `yaml:"reset,omitempty"`
	Params     map[string]encoder.Parameter `yaml:"params,omitempty"`
	Line       int                          `yaml:"-"`
}

// Encoder resolves the zone's encoder against the default. A different kind
// starts from that kind's defaults; Reset discards inherited parameters.
func (z Zone) Encoder(def encoder.Encoder) encoder.Encoder {
	base := def
	if z.Kind != "" && z.Kind != def.Kind {
		base = encoder.New(z.Kind)
		base.Passes = def.Passes
	}
	return base.WithParams(z.Params, z.Reset)
}

// Contains reports whether frame lies inside the zone.
func (z Zone) Contains(frame int) bool {
	return frame >= z.StartFrame && frame < z.EndFrame
}

// ReadZoneFile opens path and parses it with [ParseZones].
func ReadZoneFile(path string, frames int) ([]Zone, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open zones file: %w", err)
	}
	defer f.Close()
	return ParseZones(f, frames)
}

// ParseZones reads one zone per line:
//
//	start end [encoder] [reset] [--param value ...]
//
// An end of -1 means the last frame of the clip. Blank lines and lines
// starting with '#' are skipped. Zones that run past the clip are clamped
// and reported as warnings. The result is sorted by StartFrame; overlapping
// zones return [ErrOverlappingZones].
func ParseZones(r io.Reader, frames int) ([]Zone, []string, error) {
	var (
		zones    []Zone
		warnings []string
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		z, err := parseZoneLine(strings.Fields(text))
		if err != nil {
			return nil, warnings, fmt.Errorf("zones line %d: %w", line, err)
		}
		z.Line = line
		if z.EndFrame == -1 || z.EndFrame > frames {
			if z.EndFrame != -1 {
				warnings = append(warnings, fmt.Sprintf("zones line %d: end %d clamped to %d", line, z.EndFrame, frames))
			}
			z.EndFrame = frames
		}
		if z.StartFrame >= z.EndFrame {
			if z.StartFrame >= frames {
				warnings = append(warnings, fmt.Sprintf("zones line %d: starts past the last frame, skipped", line))
				continue
			}
			return nil, warnings, fmt.Errorf("zones line %d: start %d is not before end %d", line, z.StartFrame, z.EndFrame)
		}
		zones = append(zones, z)
	}
	if err := sc.Err(); err != nil {
		return nil, warnings, fmt.Errorf("read zones: %w", err)
	}
	sorted, err := SortZones(zones)
	return sorted, warnings, err
}

// SortZones returns zones ordered by StartFrame, or ErrOverlappingZones if
// any two share a frame.
func SortZones(zones []Zone) ([]Zone, error) {
	out := slices.Clone(zones)
	slices.SortStableFunc(out, func(a, b Zone) int { return a.StartFrame - b.StartFrame })
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if cur.StartFrame < prev.EndFrame {
			return nil, fmt.Errorf("%w: [%d, %d) and [%d, %d)",
				ErrOverlappingZones, prev.StartFrame, prev.EndFrame, cur.StartFrame, cur.EndFrame)
		}
	}
	return out, nil
}

func parseZoneLine(fields []string) (Zone, error) {
	if len(fields) < 2 {
		return Zone{}, errors.New("expected at least start and end frame")
	}
	start, err := strconv.Atoi(fields[0])
	if err != nil || start < 0 {
		return Zone{}, fmt.Errorf("invalid start frame %q", fields[0])
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil || end < -1 {
		return Zone{}, fmt.Errorf("invalid end frame %q", fields[1])
	}
	z := Zone{StartFrame: start, EndFrame: end}

	rest := fields[2:]
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		kind, err := encoder.ParseKind(rest[0])
		if err != nil {
			return Zone{}, err
		}
		z.Kind = kind
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == "reset" {
		z.Reset = true
		rest = rest[1:]
	}
	if len(rest) > 0 {
		params, err := encoder.ParseArgs(rest)
		if err != nil {
			return Zone{}, err
		}
		z.Params = params
	}
	return z, nil
}

// Segments splits [0, frames) into ranges that never cross a zone boundary.
// Each segment carries the zone covering it, or nil.
func Segments(zones []Zone, frames int) []Segment {
	var segs []Segment
	pos := 0
	for i := range zones {
		z := &zones[i]
		if z.StartFrame > pos {
			segs = append(segs, Segment{StartFrame: pos, EndFrame: z.StartFrame})
		}
		segs = append(segs, Segment{StartFrame: z.StartFrame, EndFrame: z.EndFrame, Zone: z})
		pos = z.EndFrame
	}
	if pos < frames {
		segs = append(segs, Segment{StartFrame: pos, EndFrame: frames})
	}
	return segs
}

// Segment is a contiguous range that is either wholly inside one zone or
// outside all of them.
type Segment struct {
	StartFrame int
	EndFrame   int
	Zone       *Zone
}
