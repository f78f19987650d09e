package calendar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peoplepulse/pulse/internal/calendar"
	"github.com/peoplepulse/pulse/internal/timesheet"
)

const holidayICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//pulse//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240606\r\n" +
	"DTEND;VALUE=DATE:20240607\r\n" +
	"SUMMARY:National Day\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240609\r\n" +
	"DTEND;VALUE=DATE:20240611\r\n" +
	"SUMMARY:Long Weekend\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240604T100000Z\r\n" +
	"DTEND:20240604T110000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:4@test\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240520\r\n" +
	"DTEND;VALUE=DATE:20240521\r\n" +
	"SUMMARY:Earlier Holiday\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var week = timesheet.WeekDays(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC), 0)

func TestHolidaysFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.ics")
	if err := os.WriteFile(path, []byte(holidayICS), 0644); err != nil {
		t.Fatalf("writing ics: %v", err)
	}

	got, err := calendar.Holidays(context.Background(), path, week)
	if err != nil {
		t.Fatalf("Holidays: %v", err)
	}
	want := []calendar.Holiday{
		{Date: "2024-06-06", Name: "National Day"},
		{Date: "2024-06-09", Name: "Long Weekend"},
	}
	if len(got) != len(want) {
		t.Fatalf("Holidays = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Holidays[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	byDate := calendar.ByDate(got)
	if byDate["2024-06-06"] != "National Day" {
		t.Errorf("ByDate = %v", byDate)
	}
}

func TestHolidaysFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(holidayICS))
	}))
	defer srv.Close()

	got, err := calendar.Holidays(context.Background(), srv.URL, week)
	if err != nil {
		t.Fatalf("Holidays: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Holidays = %+v, want 2", got)
	}
}

func TestFetchIncludesTimedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(holidayICS), 0644); err != nil {
		t.Fatalf("writing ics: %v", err)
	}
	start := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	events, err := calendar.Fetch(context.Background(), path, start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Summary != "Standup" || events[0].AllDay {
		t.Errorf("events = %+v", events)
	}
}

func TestHolidaysMissingSource(t *testing.T) {
	if _, err := calendar.Holidays(context.Background(), filepath.Join(t.TempDir(), "none.ics"), week); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestByDateJoinsNames(t *testing.T) {
	got := calendar.ByDate([]calendar.Holiday{{Date: "2024-06-06", Name: "A"}, {Date: "2024-06-06", Name: "B"}})
	if got["2024-06-06"] != "A; B" {
		t.Errorf("ByDate = %v", got)
	}
}
