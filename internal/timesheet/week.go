package timesheet

import (
	"math"
	"time"
)

const dateLayout = "2006-01-02"

// AnchorDay is the index of the day that gates submission (Friday).
const AnchorDay = 4

// Week is the seven-day window starting on a Monday.
type Week struct {
	Offset int
	Start  time.Time
	Days   [7]time.Time
}

// WeekStart returns midnight of the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := t.AddDate(0, 0, -(wd - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// WeekDays resolves the week that is offset weeks away from the week of now.
func WeekDays(now time.Time, offset int) Week {
	start := WeekStart(now.AddDate(0, 0, offset*7))
	w := Week{Offset: offset, Start: start}
	for i := range w.Days {
		w.Days[i] = start.AddDate(0, 0, i)
	}
	return w
}

// IsFutureWeek reports whether the resolved Monday lies after today.
func IsFutureWeek(now time.Time, offset int) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return WeekDays(now, offset).Start.After(today)
}

// OffsetFor returns the offset of the week containing t relative to the week of now.
func OffsetFor(now, t time.Time) int {
	a := WeekStart(now)
	b := WeekStart(t.In(now.Location()))
	// Mondays are whole weeks apart; rounding absorbs DST shifts.
	days := int(math.Round(b.Sub(a).Hours() / 24))
	return days / 7
}

func (w Week) Editable() bool {
	return w.Offset == 0
}

func (w Week) End() time.Time {
	return w.Days[6]
}

// Key returns the yyyy-MM-dd key of the i-th day.
func (w Week) Key(i int) string {
	return DateKey(w.Days[i])
}

func (w Week) Keys() []string {
	keys := make([]string, len(w.Days))
	for i := range w.Days {
		keys[i] = w.Key(i)
	}
	return keys
}

func (w Week) Contains(date string) bool {
	for i := range w.Days {
		if w.Key(i) == date {
			return true
		}
	}
	return false
}

func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// IsWeekend reports whether the yyyy-MM-dd date is a Saturday or Sunday.
func IsWeekend(date string) bool {
	t, err := time.Parse(dateLayout, NormalizeDate(date))
	if err != nil {
		return false
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NormalizeDate reduces server date values such as "2024-06-03T00:00:00"
// to the yyyy-MM-dd key used by the working set.
func NormalizeDate(s string) string {
	if len(s) >= len(dateLayout) {
		if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return s[:len(dateLayout)]
		}
	}
	return s
}
