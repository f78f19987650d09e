package timesheet_test

import (
	"errors"
	"math"
	"testing"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

func newState(t *testing.T, ids ...string) *timesheet.State {
	t.Helper()
	s := timesheet.NewState()
	for _, id := range ids {
		if err := s.AddProject(timesheet.ProjectRef{ID: id, Name: "Project " + id}); err != nil {
			t.Fatalf("AddProject(%s): %v", id, err)
		}
	}
	return s
}

func TestAddProject(t *testing.T) {
	s := newState(t, "10", "20")
	if err := s.AddProject(timesheet.ProjectRef{ID: "10", Name: "dup"}); err != nil {
		t.Fatalf("AddProject duplicate: %v", err)
	}
	if len(s.Projects) != 2 {
		t.Errorf("Projects = %d, want 2", len(s.Projects))
	}
	if err := s.AddProject(timesheet.ProjectRef{}); !errors.Is(err, timesheet.ErrProjectRequired) {
		t.Errorf("AddProject empty id error = %v, want ErrProjectRequired", err)
	}
}

func TestSetHours(t *testing.T) {
	s := newState(t, "10")
	if err := s.SetHours("10", "2024-06-03", 7.5); err != nil {
		t.Fatalf("SetHours: %v", err)
	}
	if h, ok := s.Hours("10", "2024-06-03"); !ok || h != 7.5 {
		t.Errorf("Hours = %v, %v; want 7.5, true", h, ok)
	}
	if _, ok := s.Hours("10", "2024-06-04"); ok {
		t.Error("unset date reported as set")
	}

	// Unknown projects get an entry on first write.
	if err := s.SetHours("99", "2024-06-03", 1); err != nil {
		t.Fatalf("SetHours unknown project: %v", err)
	}
	if h, _ := s.Hours("99", "2024-06-03"); h != 1 {
		t.Errorf("Hours(99) = %v, want 1", h)
	}

	for _, bad := range []float64{-1, 24.5, math.NaN(), math.Inf(1)} {
		if err := s.SetHours("10", "2024-06-03", bad); !errors.Is(err, timesheet.ErrHoursOutOfRange) {
			t.Errorf("SetHours(%v) error = %v, want ErrHoursOutOfRange", bad, err)
		}
	}
	if h, _ := s.Hours("10", "2024-06-03"); h != 7.5 {
		t.Errorf("rejected write changed the value to %v", h)
	}

	s.ClearHours("10", "2024-06-03")
	if _, ok := s.Hours("10", "2024-06-03"); ok {
		t.Error("ClearHours left the value set")
	}
}

func TestSetTimeRangeFansOut(t *testing.T) {
	s := newState(t, "10", "20")
	_ = s.SetHours("10", "2024-06-03", 2)

	if err := s.SetTimeRange("2024-06-03", timesheet.FieldStart, "08:30"); err != nil {
		t.Fatalf("SetTimeRange start: %v", err)
	}
	if h, _ := s.Hours("10", "2024-06-03"); h != 2 {
		t.Errorf("half range changed hours to %v", h)
	}

	if err := s.SetTimeRange("2024-06-03", timesheet.FieldEnd, "17:00"); err != nil {
		t.Fatalf("SetTimeRange end: %v", err)
	}
	for _, id := range []string{"10", "20"} {
		if h, _ := s.Hours(id, "2024-06-03"); h != 8.5 {
			t.Errorf("Hours(%s) = %v, want 8.5", id, h)
		}
	}
	if h, ok := s.Hours("10", "2024-06-04"); ok {
		t.Errorf("other day touched: %v", h)
	}
}

func TestSetTimeRangeInvalid(t *testing.T) {
	s := newState(t, "10")
	if err := s.SetTimeRange("2024-06-03", timesheet.FieldStart, "8am"); !errors.Is(err, timesheet.ErrInvalidTimeFormat) {
		t.Errorf("error = %v, want ErrInvalidTimeFormat", err)
	}
	if _, ok := s.Ranges["2024-06-03"]; ok {
		t.Error("invalid value was stored")
	}
	if err := s.SetTimeRange("2024-06-03", "middle", "08:00"); !errors.Is(err, timesheet.ErrUnknownField) {
		t.Errorf("error = %v, want ErrUnknownField", err)
	}
}

func TestSetTimeRangeBackwardsIsZero(t *testing.T) {
	s := newState(t, "10")
	_ = s.SetTimeRange("2024-06-03", timesheet.FieldStart, "18:00")
	_ = s.SetTimeRange("2024-06-03", timesheet.FieldEnd, "09:00")
	if h, ok := s.Hours("10", "2024-06-03"); !ok || h != 0 {
		t.Errorf("Hours = %v, %v; want 0, true", h, ok)
	}
}

func TestAggregates(t *testing.T) {
	week := timesheet.WeekDays(wednesday, 0)
	s := newState(t, "10", "20")
	_ = s.SetHours("10", "2024-06-03", 2.75)
	_ = s.SetHours("20", "2024-06-03", 3.333)
	_ = s.SetHours("10", "2024-06-04", 9)
	_ = s.SetHours("20", "2024-06-04", 1)
	// Outside the week, ignored by weekly aggregates.
	_ = s.SetHours("10", "2024-06-10", 5)

	if got := s.DayTotal("2024-06-04"); got != 10 {
		t.Errorf("DayTotal = %v, want 10", got)
	}
	if got := s.ProjectTotal("10", week); got != 11.75 {
		t.Errorf("ProjectTotal = %v, want 11.75", got)
	}
	if got := s.WorkedHours(week); got != 16.08 {
		t.Errorf("WorkedHours = %v, want 16.08", got)
	}
	over := s.OvertimeDays(week, 8)
	if len(over) != 1 || over[0] != "2024-06-04" {
		t.Errorf("OvertimeDays = %v, want [2024-06-04]", over)
	}
}

func TestLoadPersisted(t *testing.T) {
	s := newState(t, "99")
	_ = s.SetTimeRange("2024-06-03", timesheet.FieldStart, "09:00")

	ts := &timesheet.Timesheet{
		ID: 5,
		ProjectTimesheetDetails: []timesheet.ProjectDetail{
			{ID: 50, ProjectID: 10, TimesheetDetails: []timesheet.DayDetail{
				{ID: 500, WorkDate: "2024-06-03T00:00:00", HoursWorked: 6},
			}},
			{ID: 51, ProjectID: 20},
		},
	}
	s.LoadPersisted(ts, map[string]string{"10": "Payroll"})

	if len(s.Projects) != 2 {
		t.Fatalf("Projects = %v, want 2", s.Projects)
	}
	if s.Projects[0].Name != "Payroll" || s.Projects[1].Name != "Project 20" {
		t.Errorf("names = %q, %q", s.Projects[0].Name, s.Projects[1].Name)
	}
	if h, _ := s.Hours("10", "2024-06-03"); h != 6 {
		t.Errorf("Hours = %v, want 6", h)
	}
	if s.HasProject("99") {
		t.Error("previous project survived the load")
	}
	if len(s.Ranges) != 0 {
		t.Errorf("Ranges = %v, want empty", s.Ranges)
	}

	s.LoadPersisted(nil, nil)
	if len(s.Projects) != 0 {
		t.Error("nil timesheet should leave an empty working set")
	}
}

func TestClone(t *testing.T) {
	s := newState(t, "10")
	_ = s.SetHours("10", "2024-06-03", 4)
	c := s.Clone()
	_ = c.SetHours("10", "2024-06-03", 8)
	_ = c.AddProject(timesheet.ProjectRef{ID: "20"})
	if h, _ := s.Hours("10", "2024-06-03"); h != 4 {
		t.Errorf("clone shares entries with the original")
	}
	if len(s.Projects) != 1 {
		t.Errorf("clone shares projects with the original")
	}
}
