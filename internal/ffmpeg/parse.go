package ffmpeg

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/backmassage/condor/internal/scene"
)

var (
	reStatsLine  = regexp.MustCompile(`^\s*frame=\s*\d+`)
	reStatsFrame = regexp.MustCompile(`frame=\s*(\d+)`)
	reXPSNR      = regexp.MustCompile(`n:\s*(\d+)\s+XPSNR y:\s*(\S+)\s+XPSNR u:\s*(\S+)\s+XPSNR v:\s*(\S+)`)
	reSceneFrame = regexp.MustCompile(`^frame:(\d+)\s`)
	reSceneScore = regexp.MustCompile(`^lavfi\.scene_score=(\S+)`)
)

// ParseStatsFrame extracts the frame counter from an ffmpeg stats line.
func ParseStatsFrame(line string) (uint64, bool) {
	m := reStatsFrame.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	return n, err == nil
}

type vmafFrame struct {
	FrameNum int                `json:"frameNum"`
	Metrics  map[string]float64 `json:"metrics"`
}

type vmafLog struct {
	Frames []vmafFrame `json:"frames"`
}

// ParseVMAFLog reads per-frame scores from a libvmaf JSON log, in frame
// order.
func ParseVMAFLog(data []byte) ([]float64, error) {
	var raw vmafLog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse vmaf log: %w", err)
	}
	slices.SortFunc(raw.Frames, func(a, b vmafFrame) int { return a.FrameNum - b.FrameNum })
	out := make([]float64, 0, len(raw.Frames))
	for _, f := range raw.Frames {
		v, ok := f.Metrics["vmaf"]
		if !ok {
			return nil, fmt.Errorf("parse vmaf log: frame %d has no vmaf score", f.FrameNum)
		}
		out = append(out, v)
	}
	return out, nil
}

// xpsnrCeiling replaces infinite scores from identical frames.
const xpsnrCeiling = 100.0

// ParseXPSNRLog reads an xpsnr stats file and returns one score per frame,
// weighting luma four times each chroma plane.
func ParseXPSNRLog(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := reXPSNR.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		var planes [3]float64
		for i := range planes {
			v, err := strconv.ParseFloat(m[i+2], 64)
			if err != nil {
				return nil, fmt.Errorf("parse xpsnr log: frame %s: %w", m[1], err)
			}
			planes[i] = math.Min(v, xpsnrCeiling)
		}
		out = append(out, (4*planes[0]+planes[1]+planes[2])/6)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse xpsnr log: %w", err)
	}
	return out, nil
}

// ParseSceneScores reads metadata=print output for the scene filter.
// Frame numbers are relative to the trimmed input and are shifted by
// start. progress receives the number of frames read so far.
func ParseSceneScores(r io.Reader, start int, threshold float64, progress func(int)) (map[int]scene.ScenecutScore, error) {
	out := make(map[int]scene.ScenecutScore)
	frame, seen := -1, 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := reSceneFrame.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("parse scene scores: %w", err)
			}
			frame = n
			seen++
			if progress != nil {
				progress(seen)
			}
			continue
		}
		m := reSceneScore.FindStringSubmatch(line)
		if m == nil || frame < 0 {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse scene scores: frame %d: %w", frame, err)
		}
		if frame == 0 {
			continue // No previous frame to compare with.
		}
		out[start+frame] = scene.ScenecutScore{
			InterCost:            v,
			ImpBlockCost:         v,
			BackwardAdjustedCost: v,
			ForwardAdjustedCost:  v,
			Threshold:            threshold,
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse scene scores: %w", err)
	}
	return out, nil
}
