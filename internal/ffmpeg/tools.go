package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/scene"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

// Tools decodes, encodes, measures, scores and concatenates with ffmpeg and
// mkvmerge.
type Tools struct {
	Source   string // Input decoded for every task.
	FFmpeg   string
	MKVMerge string
	Verbose  bool
	Runner   *Runner
}

// New returns Tools for source using binaries from PATH.
func New(source string, r *Runner) *Tools {
	return &Tools{Source: source, FFmpeg: "ffmpeg", MKVMerge: "mkvmerge", Verbose: r.Verbose, Runner: r}
}

// stream is a running decoder. Closing it stops the decoder.
type stream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (s *stream) Close() error {
	s.ReadCloser.Close()
	s.cancel()
	s.cmd.Wait()
	return nil
}

// Decode starts an ffmpeg process that writes t's frames as y4m.
func (x *Tools) Decode(ctx context.Context, t worker.Task) (io.ReadCloser, error) {
	args := DecodeArgs(x.FFmpeg, x.Source, t, x.Verbose)
	dctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(dctx, args[0], args[1:]...)
	if x.Verbose {
		cmd.Stderr = os.Stderr
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start decoder: %w", err)
	}
	return &stream{ReadCloser: out, cmd: cmd, cancel: cancel}, nil
}

// Encode runs every pass of t. The first pass reads frames; later passes
// decode the scene again.
func (x *Tools) Encode(ctx context.Context, t worker.Task, frames io.Reader, progress func(pass int, frames uint64)) (uint64, error) {
	passes := t.Encoder.PassCount()
	passlog := filepath.Join(filepath.Dir(t.TempOutput()), t.ID+".passlog")
	if passes > 1 {
		defer removeGlob(passlog + "*")
	}

	for pass := 1; pass <= passes; pass++ {
		in := frames
		if pass > 1 {
			rc, err := x.Decode(ctx, t)
			if err != nil {
				return 0, err
			}
			defer rc.Close()
			in = rc
		}
		res := x.Runner.Execute(ctx, Cmd{
			Args:  EncodeArgs(x.FFmpeg, t, pass, passlog, x.Verbose),
			Stdin: in,
			OnLine: func(line string) {
				if n, ok := ParseStatsFrame(line); ok {
					progress(pass, n)
				}
			},
		})
		if err := Classify("ffmpeg encode", res); err != nil {
			return 0, fmt.Errorf("pass %d/%d: %w", pass, passes, err)
		}
	}

	fi, err := os.Stat(t.TempOutput())
	if err != nil {
		return 0, fmt.Errorf("encoded output: %w", err)
	}
	return uint64(fi.Size()), nil
}

// Measure compares distorted with the listed frames of source.
func (x *Tools) Measure(ctx context.Context, source string, frames []int, distorted string, m tq.Metric) ([]float64, error) {
	logPath := filepath.Join(os.TempDir(), "condor-"+uuid.NewString()+".log")
	defer os.Remove(logPath)

	args, err := MetricArgs(x.FFmpeg, source, frames, distorted, m, logPath, x.Verbose)
	if err != nil {
		return nil, err
	}
	if err := Classify("ffmpeg "+string(m.Kind), x.Runner.Execute(ctx, Cmd{Args: args})); err != nil {
		return nil, err
	}

	if m.Kind == tq.XPSNR {
		f, err := os.Open(logPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseXPSNRLog(f)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, err
	}
	return ParseVMAFLog(data)
}

// Score reads the scene filter score of every frame in [start, end).
func (x *Tools) Score(ctx context.Context, path string, start, end int, speed scenedetect.Speed, progress func(frames int)) (map[int]scene.ScenecutScore, error) {
	pr, pw := io.Pipe()
	done := make(chan ExecResult, 1)
	go func() {
		res := x.Runner.Execute(ctx, Cmd{Args: SceneArgs(x.FFmpeg, path, start, end, speed, x.Verbose), Stdout: pw})
		pw.Close()
		done <- res
	}()

	scores, perr := ParseSceneScores(pr, start, SceneThreshold, progress)
	io.Copy(io.Discard, pr)
	if err := Classify("ffmpeg scene scoring", <-done); err != nil {
		return nil, err
	}
	return scores, perr
}

// Available reports whether the tool for method is installed.
func (x *Tools) Available(method condor.ConcatMethod) error {
	bin := x.FFmpeg
	if method == condor.ConcatMKVMerge {
		bin = x.MKVMerge
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%w: %s", ErrToolMissing, bin)
	}
	return nil
}

// Concat joins scenes into output. mkvmerge appends at most MKVMergeGroup
// files per call and then joins the groups.
func (x *Tools) Concat(ctx context.Context, method condor.ConcatMethod, scenes []string, output, scratch string, fps condor.Rational) error {
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return err
	}
	if method != condor.ConcatMKVMerge {
		list := filepath.Join(scratch, "concat.txt")
		if err := os.WriteFile(list, []byte(ConcatList(scenes)), 0o644); err != nil {
			return err
		}
		return Classify("ffmpeg concat", x.Runner.Execute(ctx, Cmd{Args: ConcatArgs(x.FFmpeg, list, output, x.Verbose)}))
	}

	groups := Groups(scenes, MKVMergeGroup)
	if len(groups) == 1 {
		return x.mkvmerge(ctx, groups[0], output, filepath.Join(scratch, "options.json"), fps)
	}
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = filepath.Join(scratch, fmt.Sprintf("group_%03d%s", i, condor.SceneExt))
		if err := x.mkvmerge(ctx, g, parts[i], filepath.Join(scratch, fmt.Sprintf("options_%03d.json", i)), fps); err != nil {
			return err
		}
	}
	defer func() {
		for _, p := range parts {
			os.Remove(p)
		}
	}()
	return x.mkvmerge(ctx, parts, output, filepath.Join(scratch, "options.json"), fps)
}

func (x *Tools) mkvmerge(ctx context.Context, files []string, output, optionsFile string, fps condor.Rational) error {
	data, err := json.Marshal(MKVMergeOptions(files, output, fps))
	if err != nil {
		return err
	}
	if err := os.WriteFile(optionsFile, data, 0o644); err != nil {
		return err
	}
	res := x.Runner.Execute(ctx, Cmd{Args: []string{x.MKVMerge, "@" + optionsFile}})
	// mkvmerge exits 1 when it only printed warnings.
	var exitErr *exec.ExitError
	if errors.As(res.Err, &exitErr) && exitErr.ExitCode() == 1 {
		res.Err = nil
	}
	return Classify("mkvmerge", res)
}

func removeGlob(pattern string) {
	files, _ := filepath.Glob(pattern)
	for _, f := range files {
		os.Remove(f)
	}
}
