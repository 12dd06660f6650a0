package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/backmassage/condor/internal/worker"
)

var (
	ErrToolMissing       = errors.New("tool not found on PATH")
	ErrUnsupportedMetric = errors.New("metric not supported by ffmpeg")
)

// Pre-compiled regexes for classifying stderr from a failed run. A match
// decides whether the worker pool retries the scene, backs off first, or
// gives up at once.
var (
	reResourceExhausted = regexp.MustCompile(
		`(?i)Cannot allocate memory|out of memory|std::bad_alloc|` +
			`Resource temporarily unavailable|Too many open files|` +
			`No space left on device`)

	reInvalidOption = regexp.MustCompile(
		`(?i)Unrecognized option|Option .* not found|` +
			`Error setting option|Unknown encoder|` +
			`Invalid argument|Invalid data found when processing input|` +
			`No such file or directory|Encoder not found`)

	reBrokenPipe = regexp.MustCompile(
		`(?i)Broken pipe|End of file|Conversion failed`)
)

// MatchResourceExhausted reports whether stderr shows the system ran out of
// memory, file handles or disk.
func MatchResourceExhausted(stderr string) bool {
	return reResourceExhausted.MatchString(stderr)
}

// MatchInvalidOption reports whether stderr shows an argument or input
// error that a retry cannot fix.
func MatchInvalidOption(stderr string) bool {
	return reInvalidOption.MatchString(stderr)
}

// MatchBrokenPipe reports whether the run died because its input stream
// ended early.
func MatchBrokenPipe(stderr string) bool {
	return reBrokenPipe.MatchString(stderr)
}

// Classify turns a failed run into an error the worker pool understands.
// Exhaustion wraps worker.ErrResourceExhausted, bad options are marked
// permanent and anything else is left retryable.
func Classify(tool string, res ExecResult) error {
	if res.Err == nil {
		return nil
	}
	err := fmt.Errorf("%s: %w%s", tool, res.Err, tail(res.Stderr))
	switch {
	case MatchResourceExhausted(res.Stderr):
		return fmt.Errorf("%w: %w", worker.ErrResourceExhausted, err)
	case MatchInvalidOption(res.Stderr) && !MatchBrokenPipe(res.Stderr):
		return worker.Permanent(err)
	}
	return err
}

const tailLines = 5

// tail formats the last few lines of stderr for an error message.
func tail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return ""
	}
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return "\n  " + strings.Join(lines, "\n  ")
}
