package timesheet

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:mm")

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ParseClock converts an "HH:mm" clock value into minutes after midnight.
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}

// HoursBetween returns the decimal hours from start to end on the same day.
// An end before the start yields 0; overnight ranges are not supported.
func HoursBetween(start, end string) (float64, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	if e < s {
		return 0, nil
	}
	return float64(e-s) / 60, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
