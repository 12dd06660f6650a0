package probe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/condor/internal/condor"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64
	Size       int64
	BitRate    int64
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	PixFmt        string
	Width         int
	Height        int
	NbFrames      int // 0 when the container does not store it.
	Duration      float64
	RFrameRate    string
	AvgFrameRate  string
	Tags          map[string]string
}

// ProbeResult is the parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type ProbeResult struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
}

// FrameRate returns the primary stream's frame rate. r_frame_rate is
// preferred; avg_frame_rate covers streams where it is 0/0.
func (p *ProbeResult) FrameRate() (condor.Rational, error) {
	if p.PrimaryVideo == nil {
		return condor.Rational{}, ErrNoVideo
	}
	for _, s := range []string{p.PrimaryVideo.RFrameRate, p.PrimaryVideo.AvgFrameRate} {
		if r, err := ParseRational(s); err == nil {
			return r, nil
		}
	}
	return condor.Rational{}, fmt.Errorf("no usable frame rate in %q or %q",
		p.PrimaryVideo.RFrameRate, p.PrimaryVideo.AvgFrameRate)
}

// StoredFrames returns the frame count recorded in the file: nb_frames, or
// the NUMBER_OF_FRAMES statistics tag mkvmerge writes.
func (p *ProbeResult) StoredFrames() int {
	v := p.PrimaryVideo
	if v == nil {
		return 0
	}
	if v.NbFrames > 0 {
		return v.NbFrames
	}
	for k, val := range v.Tags {
		if strings.HasPrefix(strings.ToUpper(k), "NUMBER_OF_FRAMES") {
			return parseInt(val)
		}
	}
	return 0
}

// EstimatedFrames derives a frame count from duration and frame rate.
func (p *ProbeResult) EstimatedFrames(fps condor.Rational) int {
	d := p.Format.Duration
	if p.PrimaryVideo != nil && p.PrimaryVideo.Duration > 0 {
		d = p.PrimaryVideo.Duration
	}
	return int(d*fps.Float() + 0.5)
}

// ParseRational parses "num/den" or a plain integer rate.
func ParseRational(s string) (condor.Rational, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return condor.Rational{}, fmt.Errorf("frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return condor.Rational{}, fmt.Errorf("frame rate %q: %w", s, err)
	}
	if n <= 0 || d <= 0 {
		return condor.Rational{}, fmt.Errorf("frame rate %q: not positive", s)
	}
	return condor.Rational{Num: n, Den: d}, nil
}
