package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/logging"
)

// Inputs smaller than this are almost certainly truncated.
const minFileSize = 1000

// ErrInputTooSmall is returned for inputs below minFileSize bytes.
var ErrInputTooSmall = errors.New("input too small (possibly corrupt)")

// Container extensions ffmpeg is routinely fed (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ogv":  true,
	".y4m":  true,
	".ivf":  true,
}

// Paths are the absolute, symlink-resolved locations of one run.
type Paths struct {
	Input   string
	Output  string
	WorkDir string
	Size    int64 // Input size in bytes.
}

// IsMedia reports whether path has a known media container extension.
func IsMedia(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// ResolvePaths makes the configured paths absolute, resolves symlinks and
// rejects layouts that would overwrite or bury the input. An unfamiliar
// input extension is only a warning since ffmpeg probes by content.
func ResolvePaths(cfg *config.Config, log *logging.Logger) (Paths, error) {
	fi, err := os.Stat(cfg.Input)
	if err != nil {
		return Paths{}, fmt.Errorf("input: %w", err)
	}
	if fi.IsDir() {
		return Paths{}, fmt.Errorf("input %s is a directory", cfg.Input)
	}
	if fi.Size() < minFileSize {
		return Paths{}, fmt.Errorf("%w: %s", ErrInputTooSmall, cfg.Input)
	}
	if !IsMedia(cfg.Input) {
		log.Warn("Unrecognised input extension %q, letting ffmpeg decide", filepath.Ext(cfg.Input))
	}

	p := Paths{Size: fi.Size()}
	if p.Input, err = resolve(cfg.Input); err != nil {
		return Paths{}, err
	}
	if p.Output, err = resolve(cfg.Output); err != nil {
		return Paths{}, err
	}
	if p.WorkDir, err = resolve(cfg.WorkDir); err != nil {
		return Paths{}, err
	}
	if err := cfg.ValidatePaths(p.Input, p.Output, p.WorkDir); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// resolve returns the absolute path with symlinks resolved for the longest
// existing prefix, so paths that do not exist yet still compare correctly.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var rest []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
	}
}
