package timesheet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

type fakeGateway struct {
	mu      sync.Mutex
	sheets  map[string]*timesheet.Timesheet
	created []*timesheet.Timesheet
	updated []*timesheet.Timesheet
	nextID  int64
	saveErr error

	getHook  func(weekStart string)
	saveHook func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sheets: make(map[string]*timesheet.Timesheet), nextID: 1000}
}

func (f *fakeGateway) GetTimesheet(_ context.Context, _ int64, weekStart time.Time) (*timesheet.Timesheet, error) {
	key := timesheet.DateKey(weekStart)
	if f.getHook != nil {
		f.getHook(key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sheets[key], nil
}

func (f *fakeGateway) CreateTimesheet(_ context.Context, ts *timesheet.Timesheet) (*timesheet.Timesheet, error) {
	if f.saveHook != nil {
		f.saveHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.created = append(f.created, ts)
	return f.assignIDs(ts), nil
}

func (f *fakeGateway) UpdateTimesheet(_ context.Context, ts *timesheet.Timesheet) (*timesheet.Timesheet, error) {
	if f.saveHook != nil {
		f.saveHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.updated = append(f.updated, ts)
	return f.assignIDs(ts), nil
}

// assignIDs returns a copy of ts with every missing identifier filled in,
// the way the backend answers a write.
func (f *fakeGateway) assignIDs(ts *timesheet.Timesheet) *timesheet.Timesheet {
	out := *ts
	if out.ID == 0 {
		f.nextID++
		out.ID = f.nextID
	}
	out.ProjectTimesheetDetails = make([]timesheet.ProjectDetail, len(ts.ProjectTimesheetDetails))
	for i, pd := range ts.ProjectTimesheetDetails {
		if pd.ID == 0 {
			f.nextID++
			pd.ID = f.nextID
		}
		pd.TimesheetID = out.ID
		days := make([]timesheet.DayDetail, len(pd.TimesheetDetails))
		for j, d := range pd.TimesheetDetails {
			if d.ID == 0 {
				f.nextID++
				d.ID = f.nextID
			}
			d.TimesheetProjectTimesheetDetailID = pd.ID
			days[j] = d
		}
		pd.TimesheetDetails = days
		out.ProjectTimesheetDetails[i] = pd
	}
	f.sheets[ts.WeekStartDate] = &out
	return &out
}

func newSession(gw timesheet.Gateway) *timesheet.Session {
	return timesheet.NewSession(gw, testResource, timesheet.WithClock(func() time.Time { return wednesday }))
}

func TestSessionLoadEmptyWeek(t *testing.T) {
	s := newSession(newFakeGateway())
	if got := s.Phase(); got != timesheet.PhaseUnloaded {
		t.Errorf("initial phase = %s", got)
	}
	if err := s.AddProject(timesheet.ProjectRef{ID: "10"}); !errors.Is(err, timesheet.ErrNotLoaded) {
		t.Errorf("mutation before load error = %v, want ErrNotLoaded", err)
	}
	if err := s.Load(context.Background(), 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Phase(); got != timesheet.PhaseLoaded {
		t.Errorf("phase = %s, want loaded", got)
	}
	if s.Persisted() != nil || len(s.Snapshot().Projects) != 0 {
		t.Error("empty week should load an empty working set")
	}
	if s.Dirty() {
		t.Error("freshly loaded session is dirty")
	}
}

func TestSessionCreateThenUpdate(t *testing.T) {
	gw := newFakeGateway()
	s := newSession(gw)
	ctx := context.Background()
	if err := s.Load(ctx, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.AddProject(timesheet.ProjectRef{ID: "10", Name: "Payroll"}); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if err := s.SetHours("10", "2024-06-03", 8); err != nil {
		t.Fatalf("SetHours: %v", err)
	}
	if !s.Dirty() || s.Phase() != timesheet.PhaseEditing {
		t.Errorf("after edit dirty=%v phase=%s", s.Dirty(), s.Phase())
	}

	saved, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == 0 || len(gw.created) != 1 || len(gw.updated) != 0 {
		t.Fatalf("first save id=%d created=%d updated=%d", saved.ID, len(gw.created), len(gw.updated))
	}
	if s.Dirty() || s.Phase() != timesheet.PhaseDraftSaved {
		t.Errorf("after save dirty=%v phase=%s", s.Dirty(), s.Phase())
	}

	if err := s.SetHours("10", "2024-06-04", 4); err != nil {
		t.Fatalf("SetHours: %v", err)
	}
	if s.Phase() != timesheet.PhaseEditing {
		t.Errorf("mutation after save phase = %s, want editing", s.Phase())
	}
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if len(gw.created) != 1 || len(gw.updated) != 1 {
		t.Fatalf("second save created=%d updated=%d", len(gw.created), len(gw.updated))
	}

	upd := gw.updated[0]
	if upd.ID != saved.ID {
		t.Errorf("update id = %d, want %d", upd.ID, saved.ID)
	}
	first := saved.ProjectTimesheetDetails[0]
	got := upd.ProjectTimesheetDetails[0]
	if got.ID != first.ID || got.TimesheetDetails[0].ID != first.TimesheetDetails[0].ID {
		t.Errorf("row identity lost between saves: %+v vs %+v", got, first)
	}
}

func TestSessionSaveFailureKeepsDraft(t *testing.T) {
	gw := newFakeGateway()
	gw.saveErr = errors.New("connection refused")
	s := newSession(gw)
	ctx := context.Background()
	_ = s.Load(ctx, 0)
	_ = s.AddProject(timesheet.ProjectRef{ID: "10"})
	_ = s.SetHours("10", "2024-06-05", 6)

	if _, err := s.Save(ctx); err == nil {
		t.Fatal("Save succeeded, want error")
	}
	if s.Phase() != timesheet.PhaseEditing || !s.Dirty() {
		t.Errorf("after failure phase=%s dirty=%v", s.Phase(), s.Dirty())
	}
	if h, _ := s.Snapshot().Hours("10", "2024-06-05"); h != 6 {
		t.Errorf("draft lost: %v", h)
	}

	gw.mu.Lock()
	gw.saveErr = nil
	gw.mu.Unlock()
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
}

func TestSessionSubmit(t *testing.T) {
	gw := newFakeGateway()
	s := newSession(gw)
	ctx := context.Background()
	_ = s.Load(ctx, 0)
	_ = s.AddProject(timesheet.ProjectRef{ID: "10"})
	_ = s.SetHours("10", "2024-06-03", 8)

	if s.CanSubmit() {
		t.Error("CanSubmit without anchor day hours")
	}
	if _, err := s.Submit(ctx); !errors.Is(err, timesheet.ErrSubmitNotAllowed) {
		t.Fatalf("Submit error = %v, want ErrSubmitNotAllowed", err)
	}
	if len(gw.created) != 0 {
		t.Fatal("rejected submit reached the gateway")
	}

	_ = s.SetHours("10", "2024-06-07", 8)
	saved, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !saved.IsSubmit || saved.Status != timesheet.StatusSubmitted {
		t.Errorf("saved = submit %v status %q", saved.IsSubmit, saved.Status)
	}
	if s.Phase() != timesheet.PhaseSubmitted {
		t.Errorf("phase = %s, want submitted", s.Phase())
	}
	if err := s.SetHours("10", "2024-06-04", 1); !errors.Is(err, timesheet.ErrSubmitted) {
		t.Errorf("edit after submit error = %v, want ErrSubmitted", err)
	}

	// Reloading a submitted week stays terminal.
	if err := s.Load(ctx, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Phase() != timesheet.PhaseSubmitted || s.Editable() {
		t.Errorf("reloaded phase = %s editable = %v", s.Phase(), s.Editable())
	}
}

func TestSessionPastWeekIsReadOnly(t *testing.T) {
	gw := newFakeGateway()
	gw.sheets["2024-05-27"] = &timesheet.Timesheet{
		ID: 9,
		ProjectTimesheetDetails: []timesheet.ProjectDetail{
			{ID: 90, ProjectID: 10, TimesheetDetails: []timesheet.DayDetail{{ID: 900, WorkDate: "2024-05-27", HoursWorked: 7}}},
		},
	}
	s := newSession(gw)
	ctx := context.Background()
	if err := s.Load(ctx, -1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h, _ := s.Snapshot().Hours("10", "2024-05-27"); h != 7 {
		t.Errorf("loaded hours = %v, want 7", h)
	}
	if err := s.SetHours("10", "2024-05-28", 1); !errors.Is(err, timesheet.ErrReadOnlyWeek) {
		t.Errorf("SetHours error = %v, want ErrReadOnlyWeek", err)
	}
	if err := s.AutoFill(); !errors.Is(err, timesheet.ErrReadOnlyWeek) {
		t.Errorf("AutoFill error = %v, want ErrReadOnlyWeek", err)
	}
	if _, err := s.Save(ctx); !errors.Is(err, timesheet.ErrReadOnlyWeek) {
		t.Errorf("Save error = %v, want ErrReadOnlyWeek", err)
	}
}

func TestSessionRejectsDatesOutsideWeek(t *testing.T) {
	s := newSession(newFakeGateway())
	_ = s.Load(context.Background(), 0)
	_ = s.AddProject(timesheet.ProjectRef{ID: "10"})
	if err := s.SetHours("10", "2024-06-10", 1); !errors.Is(err, timesheet.ErrDateOutsideWeek) {
		t.Errorf("error = %v, want ErrDateOutsideWeek", err)
	}
}

func TestSessionAutoFill(t *testing.T) {
	s := newSession(newFakeGateway())
	_ = s.Load(context.Background(), 0)
	_ = s.AddProject(timesheet.ProjectRef{ID: "10"})
	if err := s.AutoFill(); err != nil {
		t.Fatalf("AutoFill: %v", err)
	}
	snap := s.Snapshot()
	if got := snap.WorkedHours(s.Week()); got != 40 {
		t.Errorf("WorkedHours = %v, want 40", got)
	}
	if !s.CanSubmit() {
		t.Error("auto-filled week should be submittable")
	}
}

func TestSessionDiscardsStaleLoad(t *testing.T) {
	gw := newFakeGateway()
	gw.sheets["2024-05-27"] = &timesheet.Timesheet{ID: 9, ProjectTimesheetDetails: []timesheet.ProjectDetail{{ProjectID: 10}}}

	started := make(chan struct{})
	release := make(chan struct{})
	gw.getHook = func(week string) {
		if week == "2024-05-27" {
			close(started)
			<-release
		}
	}

	s := newSession(gw)
	ctx := context.Background()
	errc := make(chan error, 1)
	go func() { errc <- s.Load(ctx, -1) }()
	<-started

	if err := s.Load(ctx, 0); err != nil {
		t.Fatalf("Load current week: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, timesheet.ErrStaleLoad) {
		t.Fatalf("slow load error = %v, want ErrStaleLoad", err)
	}
	if s.Week().Offset != 0 {
		t.Errorf("week offset = %d, want 0", s.Week().Offset)
	}
	if len(s.Snapshot().Projects) != 0 {
		t.Error("stale result overwrote the current week")
	}
}

func TestSessionSaveInFlight(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.saveHook = func() {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	s := newSession(gw)
	ctx := context.Background()
	_ = s.Load(ctx, 0)
	_ = s.AddProject(timesheet.ProjectRef{ID: "10"})
	_ = s.SetHours("10", "2024-06-03", 8)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Save(ctx)
		errc <- err
	}()
	<-started

	if s.Phase() != timesheet.PhaseSaving {
		t.Errorf("phase = %s, want saving", s.Phase())
	}
	if _, err := s.Save(ctx); !errors.Is(err, timesheet.ErrSaveInFlight) {
		t.Errorf("concurrent Save error = %v, want ErrSaveInFlight", err)
	}
	if err := s.SetHours("10", "2024-06-04", 1); !errors.Is(err, timesheet.ErrSaveInFlight) {
		t.Errorf("edit while saving error = %v, want ErrSaveInFlight", err)
	}
	if err := s.Load(ctx, -1); !errors.Is(err, timesheet.ErrSaveInFlight) {
		t.Errorf("Load while saving error = %v, want ErrSaveInFlight", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(gw.created) != 1 {
		t.Errorf("created = %d, want exactly 1", len(gw.created))
	}
}
