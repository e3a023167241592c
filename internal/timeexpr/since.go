// Package timeexpr parses the human time expressions accepted by --since.
package timeexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Matches "30m", "2h ago", "1d", "2w ago", "1mo".
var durationRegex = regexp.MustCompile(`^(\d+)\s*(mo|w|d|h|m)(?:\s+ago)?$`)

// ParseSince turns s into a point in the past relative to now. Accepted
// forms: "2h", "2h ago", "today", "yesterday", a weekday ("mon", "last
// friday"), a date (2006-01-02) or an RFC3339 timestamp. Expressions that
// resolve to the future are rejected.
func ParseSince(s string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	input := strings.ToLower(raw)

	t, err := parse(raw, input, now)
	if err != nil {
		return time.Time{}, err
	}
	if t.After(now) {
		return time.Time{}, fmt.Errorf("time expression %q is in the future", raw)
	}
	return t, nil
}

func parse(raw, input string, now time.Time) (time.Time, error) {
	switch input {
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), nil
	}

	if t, ok := lastWeekday(input, now); ok {
		return t, nil
	}

	if m := durationRegex.FindStringSubmatch(input); len(m) == 3 {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return time.Time{}, fmt.Errorf("invalid relative time %q", raw)
		}
		return subtract(now, n, m[2]), nil
	}

	if t, err := time.ParseInLocation("2006-01-02", raw, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time expression %q (try 2h, yesterday, monday or 2006-01-02)", raw)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// lastWeekday resolves "mon" to the start of the most recent Monday,
// today included. "last mon" always goes back at least one day.
func lastWeekday(expr string, now time.Time) (time.Time, bool) {
	strict := false
	if rest, ok := strings.CutPrefix(expr, "last "); ok {
		strict = true
		expr = strings.TrimSpace(rest)
	}
	weekday, ok := weekdays[expr]
	if !ok {
		return time.Time{}, false
	}
	base := startOfDay(now)
	delta := (int(base.Weekday()) - int(weekday) + 7) % 7
	if strict && delta == 0 {
		delta = 7
	}
	return base.AddDate(0, 0, -delta), true
}

var weekdays = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tues":      time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thurs":     time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

func subtract(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "mo":
		return now.AddDate(0, -n, 0)
	case "w":
		return now.AddDate(0, 0, -7*n)
	case "d":
		return now.AddDate(0, 0, -n)
	case "h":
		return now.Add(-time.Duration(n) * time.Hour)
	default:
		return now.Add(-time.Duration(n) * time.Minute)
	}
}
