// Package duration parses human-readable durations. It extends Go's
// standard format with day ("d") and week ("w") units, and accepts a bare
// number as a count of seconds so that values imported from second-based
// environment variables ("600") parse without a unit.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Parse parses strings such as "90s", "10m", "1h30m", "30d", "2w1d" or a
// bare number of seconds such as "600".
func Parse(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	// Bare numbers are seconds.
	if secs, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("duration: negative value %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	// Expand w/d units into hours, then defer to the standard parser.
	expanded, err := expandUnits(trimmed)
	if err != nil {
		return 0, err
	}

	d, err := time.ParseDuration(expanded)
	if err != nil {
		return 0, fmt.Errorf("duration: invalid value %q: %w", s, err)
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Use for constants only.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// expandUnits rewrites day and week components as hours.
// "1w2d12h" becomes "168h48h12h", which time.ParseDuration sums.
func expandUnits(s string) (string, error) {
	var out strings.Builder
	num := strings.Builder{}

	for _, r := range s {
		switch {
		case (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '+':
			num.WriteRune(r)
		case r == 'w' || r == 'd':
			value, err := strconv.ParseFloat(num.String(), 64)
			if err != nil {
				return "", fmt.Errorf("duration: invalid number %q in %q", num.String(), s)
			}
			unit := day
			if r == 'w' {
				unit = week
			}
			hours := value * float64(unit) / float64(time.Hour)
			out.WriteString(strconv.FormatFloat(hours, 'f', -1, 64))
			out.WriteString("h")
			num.Reset()
		default:
			// Part of a standard unit (h, m, s, ms, us, ns); pass through.
			out.WriteString(num.String())
			num.Reset()
			out.WriteRune(r)
		}
	}
	out.WriteString(num.String())

	return out.String(), nil
}

// Format renders a duration compactly, preferring day/week units for
// values that divide cleanly: 720h -> "30d", 90s -> "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d%week == 0 {
		return strconv.FormatInt(int64(d/week), 10) + "w"
	}
	if d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
