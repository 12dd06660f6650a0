package ffmpeg

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// ExecResult holds the outcome of a single tool invocation.
type ExecResult struct {
	Stderr string
	Err    error
}

// Cmd is one invocation. Args[0] is the binary.
type Cmd struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	// OnLine receives each stderr line as it arrives. ffmpeg's carriage
	// return separated stats updates count as lines.
	OnLine func(line string)
}

// Runner executes commands. When Verbose is set, stderr is tee'd to
// os.Stderr in real time; otherwise it is captured silently for error
// classification.
type Runner struct {
	Verbose bool
	Log     hclog.Logger
}

// Execute runs c to completion. Stats lines are passed to OnLine but kept
// out of the captured stderr.
func (r *Runner) Execute(ctx context.Context, c Cmd) ExecResult {
	if r.Log != nil {
		r.Log.Trace("exec", "cmd", strings.Join(c.Args, " "))
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout

	lw := &lineWriter{onLine: c.OnLine}
	if r.Verbose {
		cmd.Stderr = io.MultiWriter(lw, os.Stderr)
	} else {
		cmd.Stderr = lw
	}

	err := cmd.Run()
	lw.flush()
	return ExecResult{Stderr: lw.captured(), Err: err}
}

// lineWriter splits stderr on '\n' and '\r'.
type lineWriter struct {
	mu      sync.Mutex
	onLine  func(string)
	partial []byte
	kept    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.line()
			continue
		}
		w.partial = append(w.partial, b)
	}
	return len(p), nil
}

func (w *lineWriter) line() {
	if len(w.partial) == 0 {
		return
	}
	s := string(w.partial)
	w.partial = w.partial[:0]
	if w.onLine != nil {
		w.onLine(s)
	}
	if !reStatsLine.MatchString(s) {
		w.kept.WriteString(s)
		w.kept.WriteByte('\n')
	}
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.line()
}

func (w *lineWriter) captured() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kept.String()
}
