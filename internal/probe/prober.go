package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/condor"
)

// ErrNoVideo is returned for inputs without a video stream.
var ErrNoVideo = errors.New("no video stream")

// Prober reads clip information with ffprobe.
type Prober struct {
	FFprobe string
	Log     hclog.Logger
}

// New returns a Prober using ffprobe from PATH.
func New(log hclog.Logger) *Prober {
	return &Prober{FFprobe: "ffprobe", Log: log}
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.bin(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseJSON(out)
}

// ClipInfo returns the frame count, frame rate and size of path's primary
// video stream.
func (p *Prober) ClipInfo(ctx context.Context, path string) (condor.ClipInfo, error) {
	pr, err := p.Probe(ctx, path)
	if err != nil {
		return condor.ClipInfo{}, err
	}
	fps, err := pr.FrameRate()
	if err != nil {
		return condor.ClipInfo{}, fmt.Errorf("%s: %w", path, err)
	}

	frames := pr.StoredFrames()
	if frames == 0 {
		frames, err = p.countPackets(ctx, path)
		if err != nil {
			p.logger().Warn("packet count failed, estimating from duration", "path", path, "error", err)
			frames = pr.EstimatedFrames(fps)
		}
	}
	if frames <= 0 {
		return condor.ClipInfo{}, fmt.Errorf("%s: cannot determine frame count", path)
	}

	p.logger().Debug("probed input", "path", path, "frames", frames, "fps", fps.String())
	return condor.ClipInfo{
		Frames:    frames,
		FrameRate: fps,
		Width:     pr.PrimaryVideo.Width,
		Height:    pr.PrimaryVideo.Height,
	}, nil
}

// countPackets demuxes the whole video stream to count its packets.
func (p *Prober) countPackets(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, p.bin(),
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe count %q: %w", path, err)
	}
	n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(string(out)), ","))
	if err != nil {
		return 0, fmt.Errorf("ffprobe count %q: %w", path, err)
	}
	return n, nil
}

func (p *Prober) bin() string {
	if p.FFprobe == "" {
		return "ffprobe"
	}
	return p.FFprobe
}

func (p *Prober) logger() hclog.Logger {
	if p.Log == nil {
		return hclog.NewNullLogger()
	}
	return p.Log
}

// ParseJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	PixFmt       string            `json:"pix_fmt"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	NbFrames     string            `json:"nb_frames"`
	Duration     string            `json:"duration"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
}

// --- Conversion from wire types to domain types ---

func buildResult(raw *ffprobeOutput) *ProbeResult {
	pr := &ProbeResult{
		Format: FormatInfo{
			Filename:   raw.Format.Filename,
			FormatName: raw.Format.FormatName,
			Duration:   parseFloat(raw.Format.Duration),
			Size:       parseInt64(raw.Format.Size),
			BitRate:    parseInt64(raw.Format.BitRate),
		},
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		pr.PrimaryVideo = &VideoStream{
			Index:         s.Index,
			Codec:         s.CodecName,
			PixFmt:        s.PixFmt,
			Width:         s.Width,
			Height:        s.Height,
			NbFrames:      parseInt(s.NbFrames),
			Duration:      parseFloat(s.Duration),
			RFrameRate:    s.RFrameRate,
			AvgFrameRate:  s.AvgFrameRate,
			Tags:          s.Tags,
		}
		break
	}
	return pr
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
