package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"typical scene 700 MiB", 734003200, "700.0 MiB"},
		{"4.7 GiB", 5046586572, "4.7 GiB"},
		{"beyond PiB stays in PiB", 1 << 62, "4096.0 PiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}

func TestFormatBitrate(t *testing.T) {
	tests := []struct {
		name string
		kbps float64
		want string
	}{
		{"sub-megabit", 800, "800 kbps"},
		{"exactly 1 Mbps", 1000, "1.0 Mbps"},
		{"typical video", 5234, "5.2 Mbps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBitrate(tt.kbps))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:07", FormatDuration(7*time.Second))
	assert.Equal(t, "12:03", FormatDuration(12*time.Minute+3*time.Second))
	assert.Equal(t, "2:00:01", FormatDuration(2*time.Hour+time.Second))
}

func TestFormatFPS(t *testing.T) {
	assert.Equal(t, "3.25 fps", FormatFPS(3.25))
	assert.Equal(t, "48.0 fps", FormatFPS(48))
}
