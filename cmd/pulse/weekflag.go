package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

// parseWeek turns a --week value into a week offset relative to now.
// It accepts an offset ("-1"), a date ("2024-06-03") or natural language
// ("last week", "2 weeks ago"). Future weeks are rejected.
func parseWeek(s string, now time.Time) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "this week" || s == "current" {
		return 0, nil
	}

	var offset int
	if n, err := strconv.Atoi(s); err == nil {
		offset = n
	} else if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		offset = timesheet.OffsetFor(now, t)
	} else {
		t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Past))
		if err != nil {
			return 0, fmt.Errorf("parsing week %q: %w", s, err)
		}
		offset = timesheet.OffsetFor(now, t)
	}

	if timesheet.IsFutureWeek(now, offset) {
		return 0, fmt.Errorf("week %q is in the future", s)
	}
	return offset, nil
}
