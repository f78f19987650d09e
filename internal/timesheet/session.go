package timesheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotLoaded        = errors.New("timesheet is not loaded")
	ErrStaleLoad        = errors.New("week changed while loading, result discarded")
	ErrReadOnlyWeek     = errors.New("only the current week can be edited")
	ErrSubmitted        = errors.New("timesheet already submitted")
	ErrSaveInFlight     = errors.New("a save is already in progress")
	ErrSubmitNotAllowed = errors.New("submit requires hours on the anchor day")
	ErrDateOutsideWeek  = errors.New("date is outside the selected week")
)

// Gateway persists timesheets. GetTimesheet returns nil, nil when the
// resource has no timesheet for the week yet.
type Gateway interface {
	GetTimesheet(ctx context.Context, resourceID int64, weekStart time.Time) (*Timesheet, error)
	CreateTimesheet(ctx context.Context, ts *Timesheet) (*Timesheet, error)
	UpdateTimesheet(ctx context.Context, ts *Timesheet) (*Timesheet, error)
}

type Phase int

const (
	PhaseUnloaded Phase = iota
	PhaseLoaded
	PhaseEditing
	PhaseSaving
	PhaseDraftSaved
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnloaded:
		return "unloaded"
	case PhaseLoaded:
		return "loaded"
	case PhaseEditing:
		return "editing"
	case PhaseSaving:
		return "saving"
	case PhaseDraftSaved:
		return "draft saved"
	case PhaseSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProjectNames supplies display names for projects loaded from the backend.
func WithProjectNames(names map[string]string) Option {
	return func(s *Session) { s.names = names }
}

func WithDefaultRange(r TimeRange) Option {
	return func(s *Session) { s.defaultRange = r }
}

// Session drives one resource's timesheet through load, edit and save.
// It is safe for use from the goroutines that run UI commands.
type Session struct {
	mu sync.Mutex

	gateway      Gateway
	resource     ResourceContext
	now          func() time.Time
	logger       *logrus.Logger
	names        map[string]string
	defaultRange TimeRange

	gen       uint64
	week      Week
	phase     Phase
	state     *State
	persisted *Timesheet
	dirty     bool
}

func NewSession(gateway Gateway, rc ResourceContext, opts ...Option) *Session {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := &Session{
		gateway:      gateway,
		resource:     rc,
		now:          time.Now,
		logger:       logger,
		defaultRange: DefaultRange,
		state:        NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.week = WeekDays(s.now(), 0)
	return s
}

// Load fetches the persisted timesheet for the week at offset and replaces
// the working set. If another Load starts before this one returns, the
// result is dropped and ErrStaleLoad is returned.
func (s *Session) Load(ctx context.Context, offset int) error {
	s.mu.Lock()
	if s.phase == PhaseSaving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	s.gen++
	gen := s.gen
	week := WeekDays(s.now(), offset)
	s.week = week
	s.phase = PhaseUnloaded
	s.state = NewState()
	s.persisted = nil
	s.dirty = false
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"resource_id": s.resource.ResourceID,
		"week_start":  DateKey(week.Start),
		"offset":      offset,
	}).Info("Loading timesheet")

	ts, err := s.gateway.GetTimesheet(ctx, s.resource.ResourceID, week.Start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.WithField("week_start", DateKey(week.Start)).Debug("Discarding stale timesheet load")
		return ErrStaleLoad
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to load timesheet")
		return fmt.Errorf("loading timesheet: %w", err)
	}

	s.persisted = ts
	s.state.LoadPersisted(ts, s.names)
	s.phase = PhaseLoaded
	if ts != nil && ts.IsSubmit {
		s.phase = PhaseSubmitted
	}

	s.logger.WithFields(logrus.Fields{
		"timesheet_id": persistedID(ts),
		"projects":     len(s.state.Projects),
		"phase":        s.phase.String(),
	}).Info("Timesheet loaded")
	return nil
}

func (s *Session) Week() Week {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Resource() ResourceContext {
	return s.resource
}

// Snapshot returns a copy of the working set.
func (s *Session) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Persisted returns the last timesheet known to the backend, or nil.
func (s *Session) Persisted() *Timesheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted == nil {
		return nil
	}
	cp := *s.persisted
	return &cp
}

// Dirty reports whether there are edits that have not been saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) Editable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkEditable() == nil
}

func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkEditable() == nil && CanSubmit(s.state, s.week)
}

func (s *Session) AddProject(p ProjectRef) error {
	return s.mutate(func(st *State) error {
		return st.AddProject(p)
	})
}

func (s *Session) SetHours(projectID, date string, hours float64) error {
	return s.mutate(func(st *State) error {
		if !s.week.Contains(date) {
			return fmt.Errorf("%w: %s", ErrDateOutsideWeek, date)
		}
		return st.SetHours(projectID, date, hours)
	})
}

func (s *Session) ClearHours(projectID, date string) error {
	return s.mutate(func(st *State) error {
		st.ClearHours(projectID, date)
		return nil
	})
}

// SetTimeRange edits the day's range; see State.SetTimeRange for the fan-out.
func (s *Session) SetTimeRange(date string, field RangeField, value string) error {
	return s.mutate(func(st *State) error {
		if !s.week.Contains(date) {
			return fmt.Errorf("%w: %s", ErrDateOutsideWeek, date)
		}
		return st.SetTimeRange(date, field, value)
	})
}

func (s *Session) AutoFill() error {
	return s.mutate(func(st *State) error {
		return st.AutoFill(s.week, s.resource.WeekendPermission, s.defaultRange)
	})
}

// Save persists the working set as a draft.
func (s *Session) Save(ctx context.Context) (*Timesheet, error) {
	return s.save(ctx, false)
}

// Submit persists the working set as the final timesheet for the week.
func (s *Session) Submit(ctx context.Context) (*Timesheet, error) {
	return s.save(ctx, true)
}

func (s *Session) save(ctx context.Context, submit bool) (*Timesheet, error) {
	s.mu.Lock()
	if err := s.checkEditable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if submit && !CanSubmit(s.state, s.week) {
		s.mu.Unlock()
		return nil, ErrSubmitNotAllowed
	}
	payload, err := BuildPayload(s.state, s.persisted, s.week, s.resource, submit)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.phase = PhaseSaving
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{
		"resource_id":  payload.ResourceID,
		"week_start":   payload.WeekStartDate,
		"timesheet_id": payload.ID,
		"worked_hours": payload.WorkedHours,
		"submit":       submit,
	})
	log.Info("Saving timesheet")

	var saved *Timesheet
	if payload.Persisted() {
		saved, err = s.gateway.UpdateTimesheet(ctx, payload)
	} else {
		saved, err = s.gateway.CreateTimesheet(ctx, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.phase = PhaseEditing
		log.WithError(err).Error("Failed to save timesheet")
		return nil, fmt.Errorf("saving timesheet: %w", err)
	}

	s.persisted = mergeSaved(payload, saved)
	if !s.persisted.Persisted() {
		log.Warn("Backend did not return a timesheet id")
	}
	s.dirty = false
	s.phase = PhaseDraftSaved
	if submit {
		s.phase = PhaseSubmitted
	}

	log.WithField("saved_id", s.persisted.ID).Info("Timesheet saved")
	cp := *s.persisted
	return &cp, nil
}

func (s *Session) mutate(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := fn(s.state); err != nil {
		return err
	}
	s.phase = PhaseEditing
	s.dirty = true
	return nil
}

func (s *Session) checkEditable() error {
	switch s.phase {
	case PhaseUnloaded:
		return ErrNotLoaded
	case PhaseSaving:
		return ErrSaveInFlight
	case PhaseSubmitted:
		return ErrSubmitted
	}
	if !s.week.Editable() {
		return ErrReadOnlyWeek
	}
	return nil
}

// mergeSaved keeps whatever the backend returned and falls back to the sent
// payload for the parts it left out, so identifiers survive the next save.
func mergeSaved(payload, saved *Timesheet) *Timesheet {
	if saved == nil {
		return payload
	}
	if len(saved.ProjectTimesheetDetails) > 0 {
		return saved
	}
	merged := *payload
	if saved.ID != 0 {
		merged.ID = saved.ID
	}
	return &merged
}

func persistedID(ts *Timesheet) int64 {
	if ts == nil {
		return 0
	}
	return ts.ID
}
