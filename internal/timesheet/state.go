package timesheet

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	ErrProjectRequired = errors.New("project is required")
	ErrHoursOutOfRange = errors.New("hours must be between 0 and 24")
	ErrUnknownField    = errors.New("time range field must be start or end")
)

// MaxDailyHours bounds a single hour value.
const MaxDailyHours = 24

type RangeField string

const (
	FieldStart RangeField = "start"
	FieldEnd   RangeField = "end"
)

// TimeRange is a clock-in/clock-out pair for one day, shared by all projects.
type TimeRange struct {
	Start string `json:"start" validate:"omitempty,datetime=15:04"`
	End   string `json:"end" validate:"omitempty,datetime=15:04"`
}

func (r TimeRange) Complete() bool {
	return r.Start != "" && r.End != ""
}

func (r TimeRange) Hours() (float64, error) {
	return HoursBetween(r.Start, r.End)
}

// State is the working set being edited for one resource and week.
// Entries maps project id to date to hours; a missing date means unset.
type State struct {
	Projects []ProjectRef
	Entries  map[string]map[string]float64
	Ranges   map[string]TimeRange
}

func NewState() *State {
	return &State{
		Entries: make(map[string]map[string]float64),
		Ranges:  make(map[string]TimeRange),
	}
}

func (s *State) HasProject(id string) bool {
	for _, p := range s.Projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

// AddProject appends p to the working set unless it is already there.
func (s *State) AddProject(p ProjectRef) error {
	if p.ID == "" {
		return ErrProjectRequired
	}
	if s.HasProject(p.ID) {
		return nil
	}
	s.Projects = append(s.Projects, p)
	if _, ok := s.Entries[p.ID]; !ok {
		s.Entries[p.ID] = make(map[string]float64)
	}
	return nil
}

func (s *State) SetHours(projectID, date string, hours float64) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	if math.IsNaN(hours) || hours < 0 || hours > MaxDailyHours {
		return fmt.Errorf("%w: %v", ErrHoursOutOfRange, hours)
	}
	day, ok := s.Entries[projectID]
	if !ok {
		day = make(map[string]float64)
		s.Entries[projectID] = day
	}
	day[date] = hours
	return nil
}

func (s *State) ClearHours(projectID, date string) {
	if day, ok := s.Entries[projectID]; ok {
		delete(day, date)
	}
}

// Hours returns the value for the project and date and whether one is set.
func (s *State) Hours(projectID, date string) (float64, bool) {
	day, ok := s.Entries[projectID]
	if !ok {
		return 0, false
	}
	h, ok := day[date]
	return h, ok
}

// SetTimeRange updates one side of the day's range. Once both sides are
// present the computed hours replace the value of every project on that day.
// An empty value clears that side.
func (s *State) SetTimeRange(date string, field RangeField, value string) error {
	if value != "" {
		if _, err := ParseClock(value); err != nil {
			return err
		}
	}

	r := s.Ranges[date]
	switch field {
	case FieldStart:
		r.Start = value
	case FieldEnd:
		r.End = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.Ranges[date] = r

	if !r.Complete() {
		return nil
	}
	hours, err := r.Hours()
	if err != nil {
		return err
	}
	for _, p := range s.Projects {
		if err := s.SetHours(p.ID, date, hours); err != nil {
			return err
		}
	}
	return nil
}

// AutoFill fills incomplete ranges with def and recomputes the week's hours
// for every project in the working set.
func (s *State) AutoFill(week Week, weekendPermission bool, def TimeRange) error {
	ranges, entries, err := AutoFill(s.Ranges, week, s.Projects, weekendPermission, def)
	if err != nil {
		return err
	}
	s.Ranges = ranges
	for _, p := range s.Projects {
		day, ok := s.Entries[p.ID]
		if !ok {
			day = make(map[string]float64)
			s.Entries[p.ID] = day
		}
		for _, key := range week.Keys() {
			delete(day, key)
		}
		for date, h := range entries[p.ID] {
			day[date] = h
		}
	}
	return nil
}

// LoadPersisted replaces the working set with the contents of ts.
// Time ranges are cleared because the server shape does not carry them.
func (s *State) LoadPersisted(ts *Timesheet, names map[string]string) {
	s.Projects = nil
	s.Entries = make(map[string]map[string]float64)
	s.Ranges = make(map[string]TimeRange)
	if ts == nil {
		return
	}

	for _, pd := range ts.ProjectTimesheetDetails {
		id := strconv.FormatInt(pd.ProjectID, 10)
		name := names[id]
		if name == "" {
			name = "Project " + id
		}
		_ = s.AddProject(ProjectRef{ID: id, Name: name})
		for _, d := range pd.TimesheetDetails {
			s.Entries[id][NormalizeDate(d.WorkDate)] = d.HoursWorked
		}
	}
}

func (s *State) DayTotal(date string) float64 {
	total := 0.0
	for _, p := range s.Projects {
		h, _ := s.Hours(p.ID, date)
		total += h
	}
	return total
}

func (s *State) ProjectTotal(projectID string, week Week) float64 {
	total := 0.0
	for _, key := range week.Keys() {
		h, _ := s.Hours(projectID, key)
		total += h
	}
	return total
}

// WorkedHours sums every project and day of the week, rounded to 2 decimals.
func (s *State) WorkedHours(week Week) float64 {
	total := 0.0
	for _, key := range week.Keys() {
		total += s.DayTotal(key)
	}
	return round2(total)
}

// OvertimeDays returns the dates whose total exceeds dailyLimit, in order.
func (s *State) OvertimeDays(week Week, dailyLimit float64) []string {
	var days []string
	for _, key := range week.Keys() {
		if s.DayTotal(key) > dailyLimit {
			days = append(days, key)
		}
	}
	sort.Strings(days)
	return days
}

func (s *State) Clone() *State {
	c := NewState()
	c.Projects = append([]ProjectRef(nil), s.Projects...)
	for id, day := range s.Entries {
		cp := make(map[string]float64, len(day))
		for k, v := range day {
			cp[k] = v
		}
		c.Entries[id] = cp
	}
	for k, v := range s.Ranges {
		c.Ranges[k] = v
	}
	return c
}
