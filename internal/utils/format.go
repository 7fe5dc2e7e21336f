package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count with binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}

// FormatSpeed renders bytes per second, e.g. "2.0 MiB/s".
func FormatSpeed(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatSize renders "completed / total", or just the completed amount
// while the total is unknown.
func FormatSize(completed, total int64) string {
	if total <= 0 {
		return FormatBytes(completed)
	}
	return fmt.Sprintf("%s / %s", FormatBytes(completed), FormatBytes(total))
}

// FormatETA estimates the time left at the current speed.
func FormatETA(completed, total, bytesPerSec int64) string {
	if total <= 0 || bytesPerSec <= 0 || completed >= total {
		return "--"
	}
	secs := (total - completed) / bytesPerSec
	return (time.Duration(secs) * time.Second).String()
}

// FormatTime renders a unix timestamp relative to now, e.g. "3 minutes ago".
func FormatTime(unix int64) string {
	if unix <= 0 {
		return "-"
	}
	return humanize.Time(time.Unix(unix, 0))
}
