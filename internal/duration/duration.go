// Package duration provides parsing for human-readable since filters.
package duration

import (
	"fmt"
	"strings"
	"time"
)

// Parse parses human-readable durations like "1w", "30d", "6mo".
// It returns the time that is the given duration in the past from now.
func Parse(s string) (time.Time, error) {
	return parseRelative(s, time.Now())
}

// ParseSince resolves a since filter relative to now. It accepts the
// relative forms understood by Parse, calendar dates (2025-01-31) and
// RFC 3339 timestamps. Results are always UTC.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty since filter")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}

	t, err := parseRelative(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since filter %q (use e.g. 30d, 6mo, 2025-01-31): %w", s, err)
	}
	return t.UTC(), nil
}

func parseRelative(s string, now time.Time) (time.Time, error) {
	// Handle common patterns
	var d time.Duration
	var n int
	var unit string

	if _, err := fmt.Sscanf(s, "%d%s", &n, &unit); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration format: %s (use e.g., 1w, 30d, 6mo)", s)
	}
	if n < 0 {
		return time.Time{}, fmt.Errorf("negative duration: %s", s)
	}

	switch unit {
	case "m", "min", "mins":
		d = time.Duration(n) * time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		d = time.Duration(n) * time.Hour
	case "d", "day", "days":
		d = time.Duration(n) * 24 * time.Hour
	case "w", "wk", "wks", "week", "weeks":
		d = time.Duration(n) * 7 * 24 * time.Hour
	case "mo", "month", "months":
		d = time.Duration(n) * 30 * 24 * time.Hour
	case "y", "yr", "yrs", "year", "years":
		d = time.Duration(n) * 365 * 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("unknown duration unit: %s", unit)
	}

	return now.Add(-d), nil
}
