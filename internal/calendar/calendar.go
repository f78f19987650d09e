package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

// Event represents a parsed calendar event.
type Event struct {
	Summary   string
	StartTime time.Time
	EndTime   time.Time
	AllDay    bool
}

// Holiday is a public holiday on one date (yyyy-MM-dd).
type Holiday struct {
	Date string
	Name string
}

// Fetch retrieves and parses iCalendar events from a URL or file path,
// returning events that overlap with the given time window.
func Fetch(ctx context.Context, source string, windowStart, windowEnd time.Time) ([]Event, error) {
	r, err := open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return decode(r, windowStart, windowEnd)
}

func open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	return f, nil
}

func decode(r io.Reader, windowStart, windowEnd time.Time) ([]Event, error) {
	dec := ical.NewDecoder(r)
	var events []Event

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := ical.Event{Component: component}

			start, err := event.DateTimeStart(nil)
			if err != nil {
				continue // skip malformed events
			}
			allDay := false
			if prop := event.Props.Get(ical.PropDateTimeStart); prop != nil && prop.ValueType() == ical.ValueDate {
				allDay = true
			}

			end, err := event.DateTimeEnd(nil)
			if err != nil || !end.After(start) {
				if !allDay {
					continue
				}
				end = start.AddDate(0, 0, 1)
			}

			if start.Before(windowEnd) && end.After(windowStart) {
				summary, _ := event.Props.Text(ical.PropSummary)
				if summary != "" {
					events = append(events, Event{
						Summary:   summary,
						StartTime: start,
						EndTime:   end,
						AllDay:    allDay,
					})
				}
			}
		}
	}

	return events, nil
}

// Holidays returns the all-day events that fall on days of week, one entry
// per covered date, ordered by date.
func Holidays(ctx context.Context, source string, week timesheet.Week) ([]Holiday, error) {
	// All-day values are parsed as UTC midnight, so the window is built
	// from the date keys rather than from the week's own location.
	start, _ := time.Parse("2006-01-02", week.Key(0))
	end := start.AddDate(0, 0, len(week.Days))

	events, err := Fetch(ctx, source, start, end)
	if err != nil {
		return nil, err
	}
	return holidaysIn(events, week), nil
}

func holidaysIn(events []Event, week timesheet.Week) []Holiday {
	var out []Holiday
	for _, e := range events {
		if !e.AllDay {
			continue
		}
		for d := e.StartTime; d.Before(e.EndTime); d = d.AddDate(0, 0, 1) {
			key := d.Format("2006-01-02")
			if week.Contains(key) {
				out = append(out, Holiday{Date: key, Name: e.Summary})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// ByDate indexes holidays by date, joining names that share a day.
func ByDate(holidays []Holiday) map[string]string {
	byDate := make(map[string]string, len(holidays))
	for _, h := range holidays {
		if prev, ok := byDate[h.Date]; ok {
			byDate[h.Date] = prev + "; " + h.Name
			continue
		}
		byDate[h.Date] = h.Name
	}
	return byDate
}
