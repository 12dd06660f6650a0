package worker

import (
	"context"
	"errors"
	"time"
)

// RetryAction identifies what a failed attempt should lead to.
type RetryAction int

const (
	RetryNone    RetryAction = iota
	RetryAgain                // Retry immediately.
	RetryBackoff              // Retry after a pause; the host ran short of resources.
)

// DefaultMaxTries is the number of attempts per scene.
const DefaultMaxTries = 3

var (
	// ErrResourceExhausted marks failures caused by memory or process
	// limits. They are retried after a pause.
	ErrResourceExhausted = errors.New("resources exhausted")
)

// permanentError wraps a failure that a retry cannot fix, such as an
// unrecognised encoder option.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryState tracks attempts for one scene.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
}

// NewRetryState allows maxTries attempts, at least one.
func NewRetryState(maxTries int, backoff time.Duration) *RetryState {
	return &RetryState{MaxAttempts: max(maxTries, 1), Backoff: backoff}
}

// Advance classifies the error from a failed attempt and counts it. It
// returns RetryNone once the limit is reached, for permanent errors, and
// when the context ended the attempt.
func (s *RetryState) Advance(err error) RetryAction {
	s.Attempt++
	switch {
	case s.Attempt >= s.MaxAttempts:
		return RetryNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RetryNone
	case IsPermanent(err):
		return RetryNone
	case errors.Is(err, ErrResourceExhausted):
		return RetryBackoff
	}
	return RetryAgain
}

// Wait sleeps for the backoff scaled by the attempt number, or until ctx
// ends.
func (s *RetryState) Wait(ctx context.Context) error {
	if s.Backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Backoff * time.Duration(s.Attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
