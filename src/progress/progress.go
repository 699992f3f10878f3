// Package progress renders human-readable time estimates for the
// squaring work a dropout-resilient election's tallier must perform.
// Adapted from the teacher's progress bar utility: the live bar itself
// doesn't generalize (the teacher has exactly one sequential squaring
// loop to narrate; this tallier runs many independent puzzles
// concurrently across a worker pool, so a single textual bar would
// misrepresent whichever puzzle happened to update last), but its
// duration estimation and formatting are domain-agnostic and reused as
// is for the benchmark command's work-factor table.
package progress

import (
	"fmt"
	"time"
)

// EstimateTime returns how long performing the given number of
// sequential squarings would take at opsPerSecond.
func EstimateTime(squarings uint64, opsPerSecond float64) time.Duration {
	if opsPerSecond <= 0 {
		return 0
	}
	seconds := float64(squarings) / opsPerSecond
	return time.Duration(seconds * float64(time.Second))
}

// FormatDuration renders d at whatever unit keeps one decimal digit of
// precision meaningful (seconds, minutes, hours, or days).
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
