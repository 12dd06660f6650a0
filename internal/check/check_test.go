package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/config"
	"github.com/backmassage/condor/internal/encoder"
)

type recordLogger struct{ lines []string }

func (l *recordLogger) add(level, f string, a ...any) {
	l.lines = append(l.lines, level+" "+fmt.Sprintf(f, a...))
}
func (l *recordLogger) Info(f string, a ...any)    { l.add("INFO", f, a...) }
func (l *recordLogger) Success(f string, a ...any) { l.add("OK", f, a...) }
func (l *recordLogger) Warn(f string, a ...any)    { l.add("WARN", f, a...) }
func (l *recordLogger) Error(f string, a ...any)   { l.add("ERROR", f, a...) }
func (l *recordLogger) Debug(f string, a ...any)   { l.add("DEBUG", f, a...) }

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libsvtav1            SVT-AV1(Scalable Video Technology for AV1) encoder (codec av1)
 A....D aac                  AAC (Advanced Audio Coding)
`

// stub replaces the process hooks; missing tools fail LookPath and a
// failing encode makes run return an error.
func stub(t *testing.T, missing string, encodeErr error) {
	t.Helper()
	origLook, origOut, origRun := lookPath, output, run
	t.Cleanup(func() { lookPath, output, run = origLook, origOut, origRun })

	lookPath = func(name string) (string, error) {
		if name == missing {
			return "", exec.ErrNotFound
		}
		return "/usr/bin/" + name, nil
	}
	output = func(name string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[len(args)-1] == "-encoders" {
			return []byte(encodersOutput), nil
		}
		return []byte(name + " version 7.1\nbuilt with gcc"), nil
	}
	run = func(string, ...string) error { return encodeErr }
}

func TestCheckDeps(t *testing.T) {
	tests := []struct {
		name      string
		missing   string
		concat    condor.ConcatMethod
		encodeErr error
		want      error
	}{
		{"all present", "", condor.ConcatMKVMerge, nil, nil},
		{"no ffmpeg", "ffmpeg", condor.ConcatMKVMerge, nil, ErrFfmpegNotFound},
		{"no ffprobe", "ffprobe", condor.ConcatFFmpeg, nil, ErrFfprobeNotFound},
		{"no mkvmerge needed", "mkvmerge", condor.ConcatFFmpeg, nil, nil},
		{"no mkvmerge", "mkvmerge", condor.ConcatMKVMerge, nil, ErrMKVMergeNotFound},
		{"encoder broken", "", condor.ConcatFFmpeg, errors.New("exit status 1"), ErrEncoderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub(t, tt.missing, tt.encodeErr)
			cfg := config.DefaultConfig()
			cfg.Concat = tt.concat
			err := CheckDeps(&cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListedEncoders(t *testing.T) {
	have := ListedEncoders(encodersOutput)
	assert.True(t, have["libx264"])
	assert.True(t, have["libsvtav1"])
	assert.True(t, have["aac"])
	assert.False(t, have["="])
	assert.False(t, have["libx265"])
}

func TestRunCheck(t *testing.T) {
	stub(t, "mkvmerge", nil)
	cfg := config.DefaultConfig()
	cfg.Encoder = encoder.X264
	log := &recordLogger{}
	RunCheck(&cfg, log)

	out := strings.Join(log.lines, "\n")
	assert.Contains(t, out, "OK ffmpeg: ffmpeg version 7.1")
	assert.Contains(t, out, "ERROR mkvmerge not found")
	assert.Contains(t, out, "OK   x264     libx264")
	assert.Contains(t, out, "WARN   x265     libx265 missing")
	require.NotEmpty(t, log.lines)
	assert.Equal(t, "OK x264 works", log.lines[len(log.lines)-1])
}
