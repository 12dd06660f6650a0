// Package worker encodes scenes on a bounded pool of goroutines. A counting
// semaphore caps how many scenes are decoded ahead of the encoders.
package worker

import (
	"fmt"
	"strconv"
	"strings"
)

// BufferKind selects how many decode-ahead permits exist per worker.
type BufferKind string

const (
	BufferNone    BufferKind = "none"    // One permit per worker.
	BufferWorkers BufferKind = "workers" // Workers plus Extra.
	BufferMaximum BufferKind = "maximum" // Two per worker.
)

// BufferStrategy trades memory for throughput: more permits keep more
// decoded streams ready for idle workers.
type BufferStrategy struct {
	Kind  BufferKind
	Extra int
}

// DefaultBuffer keeps one decoded scene ready beyond the workers.
func DefaultBuffer() BufferStrategy {
	return BufferStrategy{Kind: BufferWorkers, Extra: 1}
}

// Permits returns the semaphore capacity for w workers.
func (b BufferStrategy) Permits(w int) int {
	switch b.Kind {
	case BufferNone:
		return w
	case BufferMaximum:
		return 2 * w
	default:
		return w + max(b.Extra, 0)
	}
}

func (b BufferStrategy) String() string {
	if b.Kind == BufferWorkers {
		return fmt.Sprintf("workers:%d", b.Extra)
	}
	return string(b.Kind)
}

// ParseBuffer accepts "none", "maximum", "workers" (one extra) and
// "workers:N".
func ParseBuffer(s string) (BufferStrategy, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	switch BufferKind(name) {
	case BufferNone, BufferMaximum:
		if hasArg {
			return BufferStrategy{}, fmt.Errorf("buffer %q takes no count", name)
		}
		return BufferStrategy{Kind: BufferKind(name)}, nil
	case BufferWorkers:
		if !hasArg {
			return DefaultBuffer(), nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return BufferStrategy{}, fmt.Errorf("invalid buffer count %q", arg)
		}
		return BufferStrategy{Kind: BufferWorkers, Extra: n}, nil
	}
	return BufferStrategy{}, fmt.Errorf("unknown buffer strategy %q (use none, workers:N or maximum)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BufferStrategy) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BufferStrategy) UnmarshalText(text []byte) error {
	v, err := ParseBuffer(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// FailurePolicy bounds how many scenes may fail before dispatch stops.
type FailurePolicy struct {
	MaxFailures int // Negative means unlimited.
}

// Unlimited never stops dispatch on failures.
func Unlimited() FailurePolicy { return FailurePolicy{MaxFailures: -1} }

// Exceeded reports whether failures is past the limit.
func (f FailurePolicy) Exceeded(failures int) bool {
	return f.MaxFailures >= 0 && failures > f.MaxFailures
}
