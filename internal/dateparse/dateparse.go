// Package dateparse resolves offer window strings such as "+7d", "friday" or
// "2026-12-31" into the instant the window closes.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var natural = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Until returns the end of the window described by input, relative to now.
//
// Supported forms:
//   - Calendar dates: "2026-03-01" (closes at the end of that day)
//   - Offsets: "+12h", "+7d", "+2w", "+1m"
//   - Day names: "friday" (end of the next occurrence, never today)
//   - Keywords: "today", "tomorrow", "next-month"
//   - Anything else english the when parser understands ("in 3 days")
func Until(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.ParseInLocation(dateLayout, input, now.Location()); err == nil {
		return endOfDay(t), nil
	}

	switch input {
	case "today":
		return endOfDay(now), nil
	case "tomorrow":
		return endOfDay(now.AddDate(0, 0, 1)), nil
	case "next-month":
		y, m, _ := now.Date()
		return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	if strings.HasPrefix(input, "+") && len(input) >= 3 {
		unit := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid offset %q", input)
		}
		switch unit {
		case 'h':
			return now.Add(time.Duration(n) * time.Hour), nil
		case 'd':
			return now.AddDate(0, 0, n), nil
		case 'w':
			return now.AddDate(0, 0, 7*n), nil
		case 'm':
			return now.AddDate(0, n, 0), nil
		}
		return time.Time{}, fmt.Errorf("unknown unit %q in %q (use h, d, w or m)", string(unit), input)
	}

	if target, ok := weekdays[input]; ok {
		ahead := (int(target) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return endOfDay(now.AddDate(0, 0, ahead)), nil
	}

	if r, err := natural.Parse(input, now); err == nil && r != nil {
		return r.Time, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", input)
}

// endOfDay is midnight at the start of the following day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
