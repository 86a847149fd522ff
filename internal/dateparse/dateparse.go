// Package dateparse parses the dates people type for when an expense
// happened: exact dates, keywords and offsets into the past.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const layout = "2006-01-02"

// Parse returns the date input refers to, at midnight UTC, using the current
// time as the reference point.
//
// Supported formats:
//   - Exact dates: "2026-03-01"
//   - Keywords: "today", "yesterday"
//   - Offsets into the past: "-3d", "-2w", "-1m"
//   - Day names: "friday", "last-friday" (most recent occurrence before today)
func Parse(input string) (time.Time, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom parses input relative to now.
func ParseFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	if t, err := time.Parse(layout, input); err == nil {
		return t, nil
	}

	today := midnight(now)
	switch input {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if strings.HasPrefix(input, "-") && len(input) >= 3 {
		suffix := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			switch suffix {
			case 'd':
				return today.AddDate(0, 0, -n), nil
			case 'w':
				return today.AddDate(0, 0, -7*n), nil
			case 'm':
				return today.AddDate(0, -n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown unit %q in %q (use d, w, or m)", string(suffix), input)
			}
		}
	}

	dayMap := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if target, ok := dayMap[strings.TrimPrefix(input, "last-")]; ok {
		daysBack := (int(today.Weekday()) - int(target) + 7) % 7
		if daysBack == 0 {
			daysBack = 7
		}
		return today.AddDate(0, 0, -daysBack), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD, today, yesterday, -Nd, or a weekday)", input)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
