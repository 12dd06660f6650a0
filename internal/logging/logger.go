// Package logging is the CLI's leveled logger. It keeps printf-style
// helpers for user-facing messages and hands structured hclog loggers to
// library packages; both write to stderr and, optionally, a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/term"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger provides leveled, optionally colored logging with optional file sink.
type Logger struct {
	mu   sync.Mutex
	hc   hclog.InterceptLogger
	file *os.File
}

// NewLogger initializes colors from cfg and optionally opens cfg.LogFile.
// Call Close() when done if LogFile was set.
func NewLogger(cfg *config.Config) (*Logger, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.Config, out io.Writer) (*Logger, error) {
	term.Configure(cfg.ColorMode)
	level := hclog.Info
	if cfg.Verbose {
		level = hclog.Debug
	}
	l := &Logger{
		hc: hclog.NewInterceptLogger(&hclog.LoggerOptions{
			Name:       "condor",
			Level:      level,
			Output:     out,
			Color:      term.HCLogColor(),
			TimeFormat: timeFormat,
		}),
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		// The file always gets debug output, uncolored.
		l.hc.RegisterSink(hclog.NewSinkAdapter(&hclog.LoggerOptions{
			Name:       "condor",
			Level:      hclog.Debug,
			Output:     f,
			TimeFormat: timeFormat,
		}))
	}
	return l, nil
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Named returns a structured logger for a library package. Its output goes
// to the same destinations as l.
func (l *Logger) Named(name string) hclog.Logger { return l.hc.Named(name) }

// Hclog returns the root structured logger.
func (l *Logger) Hclog() hclog.Logger { return l.hc }

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...any) {
	l.hc.Info(fmt.Sprintf(format, args...))
}

// Success logs at INFO level, marked as a success.
func (l *Logger) Success(format string, args ...any) {
	l.hc.Info(fmt.Sprintf(format, args...), "result", "ok")
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...any) {
	l.hc.Warn(fmt.Sprintf(format, args...))
}

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...any) {
	l.hc.Error(fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level; shown with --verbose and always in the log file.
func (l *Logger) Debug(format string, args ...any) {
	l.hc.Debug(fmt.Sprintf(format, args...))
}
