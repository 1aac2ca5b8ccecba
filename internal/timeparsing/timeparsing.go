// Package timeparsing resolves the free-form time expressions accepted by
// Task.deadline/scheduledFor input into absolute instants. Three layers are
// tried in order of precedence: a compact shorthand duration ("+6h", "-1d"),
// natural language ("next friday", "in 3 days") via olebedev/when, and
// finally plain date/RFC3339 parsing.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var compactPattern = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether s matches the compact duration shorthand.
func IsCompactDuration(s string) bool {
	return compactPattern.MatchString(s)
}

// ParseCompactDuration parses a shorthand relative duration such as "+6h",
// "-1d", "2w", "3m", "1y" relative to now. A missing sign defaults positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("timeparsing: %q is not a compact duration", s)
	}
	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: invalid amount in %q: %w", s, err)
	}
	n *= sign

	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, n*7), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	case "y":
		return now.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("timeparsing: unknown unit in %q", s)
	}
}

var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage resolves a free-text expression like "tomorrow at
// 9am" or "next monday" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timeparsing: empty input")
	}
	r, err := nlParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: %w", err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("timeparsing: no time expression found in %q", s)
	}
	return r.Time, nil
}

// ParseRelativeTime tries, in order: compact duration, natural language,
// date-only (YYYY-MM-DD), then RFC3339. The first layer that accepts the
// input wins; earlier layers take precedence even when a later layer could
// also parse the same string.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("timeparsing: could not parse %q as a time expression", s)
}
