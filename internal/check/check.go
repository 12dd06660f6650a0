// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for ffmpeg, ffprobe, mkvmerge, and the
// selected encoder.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/ffmpeg"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound     = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound    = errors.New("ffprobe not found on PATH")
	ErrMKVMergeNotFound   = errors.New("mkvmerge not found on PATH (use --concat ffmpeg)")
	ErrEncoderUnavailable = errors.New("encoder test failed")
)

// Logger is the minimal logging interface needed by RunCheck.
type Logger interface {
	Info(string, ...any)
	Success(string, ...any)
	Warn(string, ...any)
	Error(string, ...any)
	Debug(string, ...any)
}

// Swapped in tests.
var (
	lookPath = exec.LookPath
	output   = func(name string, args ...string) ([]byte, error) { return exec.Command(name, args...).Output() }
	run      = func(name string, args ...string) error { return exec.Command(name, args...).Run() }
)

// RunCheck prints the availability of every tool and of each encoder ffmpeg
// was built with. It is informational only and does not stop on failure.
func RunCheck(cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	checkVersion(log, "ffmpeg", "-version")
	checkVersion(log, "ffprobe", "-version")
	checkVersion(log, "mkvmerge", "--version")
	checkEncoders(log)

	log.Info("Testing %s...", cfg.Encoder)
	if err := testEncode(cfg.Encoder); err != nil {
		log.Error("%s test encode failed: %v", cfg.Encoder, err)
	} else {
		log.Success("%s works", cfg.Encoder)
	}
}

// checkVersion verifies name is on PATH and logs its version line.
func checkVersion(log Logger, name, flag string) {
	if _, err := lookPath(name); err != nil {
		log.Error("%s not found", name)
		return
	}
	out, err := output(name, flag)
	if err != nil {
		log.Warn("%s found but %s failed: %v", name, flag, err)
		return
	}
	log.Success("%s: %s", name, firstLine(string(out)))
}

// checkEncoders reports which supported encoders ffmpeg lists.
func checkEncoders(log Logger) {
	out, err := output("ffmpeg", "-hide_banner", "-encoders")
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return
	}
	have := ListedEncoders(string(out))
	log.Info("Encoders:")
	for _, k := range encoder.Kinds {
		codec := ffmpeg.Codec(k)
		if have[codec] {
			log.Success("  %-8s %s", k, codec)
		} else {
			log.Warn("  %-8s %s missing", k, codec)
		}
	}
}

// ListedEncoders returns the encoder names in ffmpeg -encoders output.
func ListedEncoders(out string) map[string]bool {
	have := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		// Rows look like " V....D libx264   libx264 H.264 ...".
		if len(fields) < 2 || len(fields[0]) != 6 || fields[1] == "=" {
			continue
		}
		have[fields[1]] = true
	}
	return have
}

// CheckDeps is the pre-run validation: ffmpeg and ffprobe must be on PATH,
// mkvmerge too when it joins the scenes, and a short test encode with the
// selected encoder must succeed.
func CheckDeps(cfg *config.Config) error {
	if _, err := lookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := lookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if cfg.Concat == condor.ConcatMKVMerge {
		if _, err := lookPath("mkvmerge"); err != nil {
			return ErrMKVMergeNotFound
		}
	}
	if err := testEncode(cfg.Encoder); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncoderUnavailable, cfg.Encoder, err)
	}
	return nil
}

// testEncode runs a tiny lavfi encode with k's codec.
func testEncode(k encoder.Kind) error {
	return run("ffmpeg", testArgs(k)...)
}

func testArgs(k encoder.Kind) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", ffmpeg.Codec(k),
		"-f", "null", "-",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}
