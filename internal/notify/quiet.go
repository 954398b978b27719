package notify

import (
	"fmt"
	"time"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
)

// parseClock parses an "HH:MM" wall-clock value into minutes since midnight.
func parseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// inQuietHours reports whether now falls inside the configured window. A
// window whose end precedes its start wraps midnight (22:00-06:00 covers late
// evening and early morning). Unparseable bounds disable the window rather
// than suppressing around the clock.
func inQuietHours(qh models.QuietHours, now time.Time) bool {
	if !qh.Enabled {
		return false
	}

	start, err := parseClock(qh.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(qh.End)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start == end {
		return false
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}
