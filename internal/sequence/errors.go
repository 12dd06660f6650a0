package sequence

import (
	"errors"
	"fmt"
)

var (
	ErrCancelled          = errors.New("run cancelled")
	ErrScenesEmpty        = errors.New("no scenes found")
	ErrClipInfoMissing    = errors.New("clip info not available")
	ErrWorkersConfigured  = errors.New("parallel encoder workers already configured")
	ErrMissingSceneOutput = errors.New("encoded scene not found")
	ErrInputFrameMismatch = errors.New("frame count differs from the project")
)

// ValidationError blocks a stage before it does any work.
type ValidationError struct {
	Stage string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SceneError is a failure scoped to one scene. Siblings keep going.
type SceneError struct {
	Scene string
	Err   error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %s: %v", e.Scene, e.Err)
}

func (e *SceneError) Unwrap() error { return e.Err }

// FatalError aborts the run.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// SceneErrors extracts the scoped failures from warnings.
func SceneErrors(w Warnings) []*SceneError {
	var out []*SceneError
	for _, err := range w {
		var se *SceneError
		if errors.As(err, &se) {
			out = append(out, se)
		}
	}
	return out
}
