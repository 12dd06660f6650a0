package worker

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/backmassage/condor/internal/encoder"
)

// Task is one scene to encode.
type Task struct {
	Index      int // Position in the scene list.
	ID         string
	StartFrame int
	EndFrame   int
	Frames     []int // Explicit frame selection; nil means the whole range.
	Encoder    encoder.Encoder
	Output     string
}

// FrameCount is the number of frames the encoder will receive.
func (t Task) FrameCount() int {
	if t.Frames != nil {
		return len(t.Frames)
	}
	return t.EndFrame - t.StartFrame
}

// TempOutput is where the encoder writes until the encode succeeds:
// "00003.mkv" becomes "00003.temp.mkv".
func (t Task) TempOutput() string {
	ext := filepath.Ext(t.Output)
	return strings.TrimSuffix(t.Output, ext) + ".temp" + ext
}

// Decoder opens a raw frame stream for a task. Streams are opened ahead of
// time, up to the buffer strategy's permit count.
type Decoder interface {
	Decode(ctx context.Context, t Task) (io.ReadCloser, error)
}

// Encoder encodes frames into t.TempOutput and returns the output size.
// progress may be called from the encoding goroutine at any rate.
type Encoder interface {
	Encode(ctx context.Context, t Task, frames io.Reader, progress func(pass int, frames uint64)) (uint64, error)
}

// Token is polled before every dispatch.
type Token interface {
	Cancelled() bool
}
