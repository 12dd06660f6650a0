package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatBitrate returns a short label for a bitrate in kbps (e.g. "1200 kbps").
func FormatBitrate(kbps float64) string {
	if kbps < 1000 {
		return fmt.Sprintf("%.0f kbps", kbps)
	}
	return fmt.Sprintf("%.1f Mbps", kbps/1000)
}

// FormatDuration renders d as h:mm:ss, or m:ss under an hour.
func FormatDuration(d time.Duration) string {
	s := int(d.Round(time.Second).Seconds())
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatFPS renders frames per second with precision that suits its size.
func FormatFPS(fps float64) string {
	if fps < 10 {
		return fmt.Sprintf("%.2f fps", fps)
	}
	return fmt.Sprintf("%.1f fps", fps)
}
