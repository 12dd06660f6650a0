package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/condor"
)

// Matroska file with cover art ahead of the real video stream and a frame
// count only in mkvmerge's statistics tags.
const sampleMKV = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 900,
      "disposition": { "default": 0, "attached_pic": 1 }
    },
    {
      "index": 1,
      "codec_name": "hevc",
      "codec_type": "video",
      "pix_fmt": "yuv420p10le",
      "width": 1920,
      "height": 1080,
      "r_frame_rate": "24000/1001",
      "avg_frame_rate": "24000/1001",
      "disposition": { "default": 1, "attached_pic": 0 },
      "tags": { "NUMBER_OF_FRAMES-eng": "34462", "DURATION-eng": "00:23:57.436000000" }
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio",
      "disposition": { "default": 1 }
    }
  ],
  "format": {
    "filename": "/media/test/Show.S01E01.mkv",
    "format_name": "matroska,webm",
    "duration": "1437.436000",
    "size": "1234567890",
    "bit_rate": "6873456"
  }
}`

// MP4 with nb_frames and an unusable r_frame_rate.
const sampleMP4 = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "pix_fmt": "yuv420p",
      "width": 1280,
      "height": 720,
      "nb_frames": "240",
      "duration": "10.010000",
      "r_frame_rate": "0/0",
      "avg_frame_rate": "24/1"
    }
  ],
  "format": {
    "filename": "minimal.mp4",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "10.010000",
    "size": "500000",
    "bit_rate": "400000"
  }
}`

const sampleAudioOnly = `{
  "streams": [ { "index": 0, "codec_name": "flac", "codec_type": "audio" } ],
  "format": { "filename": "song.flac", "duration": "200.0" }
}`

func TestParseJSON(t *testing.T) {
	pr, err := ParseJSON([]byte(sampleMKV))
	require.NoError(t, err)

	assert.Equal(t, "/media/test/Show.S01E01.mkv", pr.Format.Filename)
	assert.InDelta(t, 1437.436, pr.Format.Duration, 1e-9)
	assert.Equal(t, int64(1234567890), pr.Format.Size)
	assert.Equal(t, int64(6873456), pr.Format.BitRate)

	require.NotNil(t, pr.PrimaryVideo)
	assert.Equal(t, 1, pr.PrimaryVideo.Index, "cover art must not be the primary stream")
	assert.Equal(t, "hevc", pr.PrimaryVideo.Codec)
	assert.Equal(t, 1920, pr.PrimaryVideo.Width)
	assert.Equal(t, 0, pr.PrimaryVideo.NbFrames)
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestStoredFrames(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   int
	}{
		{"statistics tag", sampleMKV, 34462},
		{"nb_frames", sampleMP4, 240},
		{"no video", sampleAudioOnly, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, err := ParseJSON([]byte(tt.sample))
			require.NoError(t, err)
			assert.Equal(t, tt.want, pr.StoredFrames())
		})
	}
}

func TestFrameRate(t *testing.T) {
	mkv, err := ParseJSON([]byte(sampleMKV))
	require.NoError(t, err)
	fps, err := mkv.FrameRate()
	require.NoError(t, err)
	assert.Equal(t, condor.Rational{Num: 24000, Den: 1001}, fps)

	mp4, err := ParseJSON([]byte(sampleMP4))
	require.NoError(t, err)
	fps, err = mp4.FrameRate()
	require.NoError(t, err)
	assert.Equal(t, condor.Rational{Num: 24, Den: 1}, fps, "falls back to avg_frame_rate")

	audio, err := ParseJSON([]byte(sampleAudioOnly))
	require.NoError(t, err)
	_, err = audio.FrameRate()
	assert.ErrorIs(t, err, ErrNoVideo)
}

func TestEstimatedFrames(t *testing.T) {
	pr, err := ParseJSON([]byte(sampleMP4))
	require.NoError(t, err)
	assert.Equal(t, 240, pr.EstimatedFrames(condor.Rational{Num: 24, Den: 1}))
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in      string
		want    condor.Rational
		wantErr bool
	}{
		{"24000/1001", condor.Rational{Num: 24000, Den: 1001}, false},
		{"25", condor.Rational{Num: 25, Den: 1}, false},
		{" 30/1 ", condor.Rational{Num: 30, Den: 1}, false},
		{"0/0", condor.Rational{}, true},
		{"abc", condor.Rational{}, true},
		{"", condor.Rational{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRational(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeFFprobe writes a shell script that prints out for any arguments.
func fakeFFprobe(t *testing.T, out string) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(data, []byte(out), 0o644))
	bin := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat '" + data + "'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestClipInfo(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("needs /bin/sh")
	}
	p := &Prober{FFprobe: fakeFFprobe(t, sampleMP4)}
	info, err := p.ClipInfo(context.Background(), "minimal.mp4")
	require.NoError(t, err)
	assert.Equal(t, condor.ClipInfo{
		Frames:    240,
		FrameRate: condor.Rational{Num: 24, Den: 1},
		Width:     1280,
		Height:    720,
	}, info)

	p = &Prober{FFprobe: fakeFFprobe(t, sampleAudioOnly)}
	_, err = p.ClipInfo(context.Background(), "song.flac")
	assert.ErrorIs(t, err, ErrNoVideo)
}
