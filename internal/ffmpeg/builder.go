package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

const (
	// SceneThreshold is the scene filter score above which a frame starts
	// a new scene.
	SceneThreshold = 0.3
	// fastSceneHeight is the analysis height for fast scene scoring.
	fastSceneHeight = 270
	// MKVMergeGroup is how many files one mkvmerge call appends.
	MKVMergeGroup = 100
)

var codecs = map[encoder.Kind]string{
	encoder.AOM:    "libaom-av1",
	encoder.Rav1e:  "librav1e",
	encoder.SVTAV1: "libsvtav1",
	encoder.VPX:    "libvpx-vp9",
	encoder.X264:   "libx264",
	encoder.X265:   "libx265",
}

// Codec returns the ffmpeg encoder name for k.
func Codec(k encoder.Kind) string { return codecs[k] }

// preamble is the shared start of every ffmpeg command line.
func preamble(bin string, verbose bool) []string {
	level := "error"
	if verbose {
		level = "info"
	}
	return []string{bin, "-hide_banner", "-nostdin", "-loglevel", level}
}

// SelectFilter keeps [start, end), or the listed frames when frames is not
// nil, and renumbers the kept frames from zero. A contiguous list becomes a
// trim; anything else a select over runs of frames.
func SelectFilter(start, end int, frames []int) string {
	if frames != nil {
		runs := frameRuns(frames)
		if len(runs) != 1 {
			terms := make([]string, len(runs))
			for i, r := range runs {
				terms[i] = fmt.Sprintf("between(n,%d,%d)", r[0], r[1])
			}
			return "select='" + strings.Join(terms, "+") + "',setpts=N/FRAME_RATE/TB"
		}
		start, end = runs[0][0], runs[0][1]+1
	}
	return fmt.Sprintf("trim=start_frame=%d:end_frame=%d,setpts=PTS-STARTPTS", start, end)
}

// frameRuns groups ascending frames into inclusive [first, last] runs.
func frameRuns(frames []int) [][2]int {
	var runs [][2]int
	for _, f := range frames {
		if n := len(runs); n > 0 && f == runs[n-1][1]+1 {
			runs[n-1][1] = f
			continue
		}
		runs = append(runs, [2]int{f, f})
	}
	return runs
}

// DecodeArgs streams t's frames from input as y4m on stdout.
func DecodeArgs(bin, input string, t worker.Task, verbose bool) []string {
	args := preamble(bin, verbose)
	return append(args,
		"-i", input,
		"-map", "0:v:0",
		"-vf", SelectFilter(t.StartFrame, t.EndFrame, t.Frames),
		"-fps_mode", "passthrough",
		"-an", "-sn", "-dn",
		"-strict", "-1",
		"-f", "yuv4mpegpipe", "-",
	)
}

// EncodeArgs encodes y4m from stdin for one pass of t. Earlier passes of a
// multi-pass encode only write the pass log.
func EncodeArgs(bin string, t worker.Task, pass int, passlog string, verbose bool) []string {
	args := preamble(bin, verbose)
	args = append(args, "-y", "-stats", "-stats_period", "0.5",
		"-f", "yuv4mpegpipe", "-i", "-",
		"-c:v", Codec(t.Encoder.Kind),
	)
	args = append(args, t.Encoder.Args()...)
	passes := t.Encoder.PassCount()
	if passes > 1 {
		args = append(args, "-pass", strconv.Itoa(pass), "-passlogfile", passlog)
	}
	if pass < passes {
		return append(args, "-an", "-f", "null", "-")
	}
	return append(args, "-an", "-f", "matroska", t.TempOutput())
}

var filterPathEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)

// vmafModel picks the libvmaf model for m's features. weighted has no
// libvmaf counterpart and is scored like default.
func vmafModel(m tq.Metric) string {
	version := "vmaf_v0.6.1"
	switch {
	case m.Has(tq.FeatureNeg):
		version = "vmaf_v0.6.1neg"
	case m.Has(tq.FeatureUHD):
		version = "vmaf_4k_v0.6.1"
	}
	model := "version=" + version
	if m.Has(tq.FeatureMotionless) {
		model += `\:motion.motion_force_zero=true`
	}
	return model
}

// MetricFilter returns the comparison filter for m that writes per-frame
// scores to logPath.
func MetricFilter(m tq.Metric, logPath string) (string, error) {
	path := filterPathEscaper.Replace(logPath)
	switch m.Kind {
	case tq.VMAF:
		f := fmt.Sprintf("libvmaf=log_fmt=json:log_path=%s:model='%s'", path, vmafModel(m))
		if m.Threads > 0 {
			f += ":n_threads=" + strconv.Itoa(m.Threads)
		}
		return f, nil
	case tq.XPSNR:
		return "xpsnr=stats_file=" + path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMetric, m.Kind)
}

// MetricArgs compares distorted, which holds exactly frames of source, and
// writes per-frame scores to logPath.
func MetricArgs(bin, source string, frames []int, distorted string, m tq.Metric, logPath string, verbose bool) ([]string, error) {
	filter, err := MetricFilter(m, logPath)
	if err != nil {
		return nil, err
	}
	graph := fmt.Sprintf("[0:v]setpts=PTS-STARTPTS[dist];[1:v]%s[ref];[dist][ref]%s",
		SelectFilter(0, 0, frames), filter)
	args := preamble(bin, verbose)
	return append(args,
		"-i", distorted,
		"-i", source,
		"-lavfi", graph,
		"-f", "null", "-",
	), nil
}

// SceneArgs prints the scene filter score of every frame of [start, end)
// to stdout.
func SceneArgs(bin, input string, start, end int, speed scenedetect.Speed, verbose bool) []string {
	vf := SelectFilter(start, end, nil)
	if speed == scenedetect.Fast {
		vf += fmt.Sprintf(",scale=-2:%d", fastSceneHeight)
	}
	vf += ",select='gte(scene,0)',metadata=print:key=lavfi.scene_score:file=-"
	args := preamble(bin, verbose)
	return append(args,
		"-i", input,
		"-map", "0:v:0",
		"-vf", vf,
		"-an", "-f", "null", "-",
	)
}

// ConcatList renders the concat demuxer list for paths.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatArgs joins the files in list without re-encoding.
func ConcatArgs(bin, list, output string, verbose bool) []string {
	args := preamble(bin, verbose)
	return append(args, "-y",
		"-f", "concat", "-safe", "0",
		"-i", list,
		"-map", "0",
		"-c", "copy",
		output,
	)
}

// MKVMergeOptions returns the option list for appending files into output,
// in the form mkvmerge reads from a JSON option file.
func MKVMergeOptions(files []string, output string, fps condor.Rational) []string {
	opts := []string{"--quiet", "--output", output}
	for i, f := range files {
		if i > 0 {
			opts = append(opts, "+")
		}
		if fps.Num > 0 && fps.Den > 0 {
			opts = append(opts, "--default-duration", "0:"+fps.String()+"fps")
		}
		opts = append(opts, f)
	}
	return opts
}

// Groups splits files into runs of at most size.
func Groups(files []string, size int) [][]string {
	var out [][]string
	for len(files) > size {
		out = append(out, files[:size])
		files = files[size:]
	}
	if len(files) > 0 {
		out = append(out, files)
	}
	return out
}
