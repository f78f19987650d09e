package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

type viewState int

const (
	gridView viewState = iota
	editView
	pickerView
	confirmView
)

type confirmAction int

const (
	confirmQuit confirmAction = iota
	confirmNavigate
	confirmSubmit
)

// Grid rows above the projects.
const (
	rowStart = iota
	rowEnd
	firstProjectRow
)

const requestTimeout = 60 * time.Second

type Options struct {
	// Projects the resource may add to a week.
	Projects []timesheet.ProjectRef
	// Holidays returns holiday names by date for a week. Optional.
	Holidays func(ctx context.Context, week timesheet.Week) (map[string]string, error)
	// OnSave is told about every save attempt. Optional.
	OnSave     func(week timesheet.Week, saved *timesheet.Timesheet, submit bool, err error)
	DailyLimit float64
	Offset     int
	Now        func() time.Time
	Logger     *logrus.Logger
}

type Result struct {
	LastSaved *timesheet.Timesheet
	Unsaved   bool
}

type loadedMsg struct {
	offset int
	err    error
}

type holidaysMsg struct {
	week     string
	holidays map[string]string
	err      error
}

type savedMsg struct {
	saved  *timesheet.Timesheet
	submit bool
	err    error
}

// App is the Bubbletea model for editing one week's timesheet.
type App struct {
	state   viewState
	session *timesheet.Session
	opts    Options
	logger  *logrus.Logger

	offset        int
	row, col      int
	input         textinput.Model
	picker        projectPickerModel
	spinner       spinner.Model
	busy          string
	confirm       confirmAction
	pendingOffset int
	holidays      map[string]string
	status        string
	errMsg        string
	result        Result
}

func NewApp(session *timesheet.Session, opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.CharLimit = 8
	ti.Width = 10

	return &App{
		state:   gridView,
		session: session,
		opts:    opts,
		logger:  logger,
		offset:  opts.Offset,
		input:   ti,
		spinner: s,
	}
}

func (a *App) Init() tea.Cmd {
	return a.startLoad(a.offset)
}

func (a *App) GetResult() Result {
	a.result.Unsaved = a.session.Dirty()
	return a.result
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			// A second ctrl+c at the prompt quits.
			if a.session.Dirty() && (a.state != confirmView || a.confirm != confirmQuit) {
				a.confirm = confirmQuit
				a.state = confirmView
				return a, nil
			}
			return a, tea.Quit
		}
	case spinner.TickMsg:
		if a.busy == "" {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case loadedMsg:
		return a.handleLoaded(msg)
	case holidaysMsg:
		return a.handleHolidays(msg)
	case savedMsg:
		return a.handleSaved(msg)
	}

	switch a.state {
	case gridView:
		return a.updateGrid(msg)
	case editView:
		return a.updateEdit(msg)
	case pickerView:
		return a.updatePicker(msg)
	case confirmView:
		return a.updateConfirm(msg)
	}
	return a, nil
}

func (a *App) View() string {
	switch a.state {
	case pickerView:
		return a.picker.View()
	case confirmView:
		return a.gridView() + "\n" + warningStyle.Render(a.confirmPrompt()) + "\n"
	}
	return a.gridView()
}

func (a *App) updateGrid(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	if a.busy != "" && keyMsg.String() != "q" {
		return a, nil
	}

	a.status = ""
	a.errMsg = ""
	rows := a.rowCount()

	switch keyMsg.String() {
	case "up", "k":
		if a.row > 0 {
			a.row--
		}
	case "down", "j":
		if a.row < rows-1 {
			a.row++
		}
	case "left", "h":
		if a.col > 0 {
			a.col--
		}
	case "right", "l":
		if a.col < 6 {
			a.col++
		}
	case "enter", "e":
		return a, a.beginEdit()
	case "a":
		return a, a.beginPick()
	case "f":
		a.report(a.session.AutoFill(), "Filled empty days with the default range")
	case "w", "ctrl+s":
		if err := a.checkSavable(); err != nil {
			a.errMsg = err.Error()
			return a, nil
		}
		a.busy = "Saving draft"
		return a, tea.Batch(a.spinner.Tick, a.save(false))
	case "S":
		if !a.session.CanSubmit() {
			if err := a.checkSavable(); err != nil {
				a.errMsg = err.Error()
			} else {
				a.errMsg = "Add hours for Friday before submitting"
			}
			return a, nil
		}
		a.confirm = confirmSubmit
		a.state = confirmView
	case "[":
		return a.navigate(a.offset - 1)
	case "]":
		return a.navigate(a.offset + 1)
	case "t":
		return a.navigate(0)
	case "r":
		return a.navigate(a.offset)
	case "q":
		if a.session.Dirty() {
			a.confirm = confirmQuit
			a.state = confirmView
			return a, nil
		}
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) checkSavable() error {
	if !a.session.Editable() {
		switch a.session.Phase() {
		case timesheet.PhaseSubmitted:
			return timesheet.ErrSubmitted
		case timesheet.PhaseSaving:
			return timesheet.ErrSaveInFlight
		case timesheet.PhaseUnloaded:
			return timesheet.ErrNotLoaded
		}
		return timesheet.ErrReadOnlyWeek
	}
	return nil
}

func (a *App) report(err error, ok string) {
	if err != nil {
		a.errMsg = err.Error()
		return
	}
	a.status = ok
}

func (a *App) beginEdit() tea.Cmd {
	if err := a.checkSavable(); err != nil {
		a.errMsg = err.Error()
		return nil
	}
	snap := a.session.Snapshot()
	date := a.session.Week().Key(a.col)

	value := ""
	switch a.row {
	case rowStart:
		value = snap.Ranges[date].Start
		a.input.Placeholder = "HH:mm"
	case rowEnd:
		value = snap.Ranges[date].End
		a.input.Placeholder = "HH:mm"
	default:
		p, ok := a.projectAt(snap, a.row)
		if !ok {
			return nil
		}
		if h, set := snap.Hours(p.ID, date); set {
			value = formatHours(h)
		}
		a.input.Placeholder = "hours"
	}

	a.input.SetValue(value)
	a.input.CursorEnd()
	a.state = editView
	return a.input.Focus()
}

func (a *App) updateEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			if err := a.applyEdit(a.input.Value()); err != nil {
				a.errMsg = err.Error()
				return a, nil
			}
			a.errMsg = ""
			a.input.Blur()
			a.state = gridView
			return a, nil
		case "esc":
			a.errMsg = ""
			a.input.Blur()
			a.state = gridView
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// applyEdit writes value into the cell under the cursor. An empty value
// clears the cell.
func (a *App) applyEdit(value string) error {
	value = strings.TrimSpace(value)
	date := a.session.Week().Key(a.col)

	switch a.row {
	case rowStart:
		return a.session.SetTimeRange(date, timesheet.FieldStart, value)
	case rowEnd:
		return a.session.SetTimeRange(date, timesheet.FieldEnd, value)
	}

	p, ok := a.projectAt(a.session.Snapshot(), a.row)
	if !ok {
		return nil
	}
	if value == "" {
		return a.session.ClearHours(p.ID, date)
	}
	h, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	if err != nil {
		return fmt.Errorf("hours must be a number, got %q", value)
	}
	return a.session.SetHours(p.ID, date, h)
}

func (a *App) beginPick() tea.Cmd {
	if err := a.checkSavable(); err != nil {
		a.errMsg = err.Error()
		return nil
	}
	snap := a.session.Snapshot()
	var available []timesheet.ProjectRef
	for _, p := range a.opts.Projects {
		if !snap.HasProject(p.ID) {
			available = append(available, p)
		}
	}
	a.picker = newProjectPicker(available)
	a.state = pickerView
	return textinput.Blink
}

func (a *App) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.picker, cmd = a.picker.Update(msg)

	switch {
	case a.picker.canceled:
		a.state = gridView
		return a, nil
	case a.picker.chosen != nil:
		p := *a.picker.chosen
		a.report(a.session.AddProject(p), "Added "+p.Name)
		a.state = gridView
		a.row = firstProjectRow + len(a.session.Snapshot().Projects) - 1
		return a, nil
	}
	return a, cmd
}

func (a *App) navigate(offset int) (tea.Model, tea.Cmd) {
	if timesheet.IsFutureWeek(a.opts.Now(), offset) {
		a.status = "Future weeks cannot be opened"
		return a, nil
	}
	if a.session.Dirty() {
		a.confirm = confirmNavigate
		a.pendingOffset = offset
		a.state = confirmView
		return a, nil
	}
	return a, a.startLoad(offset)
}

func (a *App) confirmPrompt() string {
	switch a.confirm {
	case confirmQuit:
		return "You have unsaved changes. Quit anyway? (y/n)"
	case confirmNavigate:
		return "Discard unsaved changes and switch week? (y/n)"
	case confirmSubmit:
		return "Submit this week? A submitted timesheet can no longer be edited. (y/n)"
	}
	return ""
}

func (a *App) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	switch keyMsg.String() {
	case "y", "Y":
		a.state = gridView
		switch a.confirm {
		case confirmQuit:
			return a, tea.Quit
		case confirmNavigate:
			return a, a.startLoad(a.pendingOffset)
		case confirmSubmit:
			a.busy = "Submitting"
			return a, tea.Batch(a.spinner.Tick, a.save(true))
		}
	case "n", "N", "esc":
		a.state = gridView
	}
	return a, nil
}

func (a *App) startLoad(offset int) tea.Cmd {
	a.offset = offset
	a.busy = "Loading"
	a.status = ""
	a.errMsg = ""
	a.holidays = nil

	cmds := []tea.Cmd{a.spinner.Tick, a.load(offset)}
	if a.opts.Holidays != nil {
		cmds = append(cmds, a.loadHolidays(offset))
	}
	return tea.Batch(cmds...)
}

func (a *App) load(offset int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := a.session.Load(ctx, offset)
		return loadedMsg{offset: offset, err: err}
	}
}

func (a *App) loadHolidays(offset int) tea.Cmd {
	week := timesheet.WeekDays(a.opts.Now(), offset)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		holidays, err := a.opts.Holidays(ctx, week)
		return holidaysMsg{week: week.Key(0), holidays: holidays, err: err}
	}
}

func (a *App) save(submit bool) tea.Cmd {
	week := a.session.Week()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var saved *timesheet.Timesheet
		var err error
		if submit {
			saved, err = a.session.Submit(ctx)
		} else {
			saved, err = a.session.Save(ctx)
		}
		if a.opts.OnSave != nil && !errors.Is(err, timesheet.ErrSaveInFlight) {
			a.opts.OnSave(week, saved, submit, err)
		}
		return savedMsg{saved: saved, submit: submit, err: err}
	}
}

func (a *App) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	// A newer load owns the screen.
	if errors.Is(msg.err, timesheet.ErrStaleLoad) || msg.offset != a.offset {
		return a, nil
	}
	a.busy = ""
	if msg.err != nil {
		a.errMsg = msg.err.Error()
		return a, nil
	}
	if rows := a.rowCount(); a.row >= rows {
		a.row = rows - 1
	}
	return a, nil
}

func (a *App) handleHolidays(msg holidaysMsg) (tea.Model, tea.Cmd) {
	// The session only learns the week once its load runs.
	if msg.week != timesheet.WeekDays(a.opts.Now(), a.offset).Key(0) {
		return a, nil
	}
	if msg.err != nil {
		a.logger.WithError(msg.err).Warn("Failed to load holidays")
		return a, nil
	}
	a.holidays = msg.holidays
	return a, nil
}

func (a *App) handleSaved(msg savedMsg) (tea.Model, tea.Cmd) {
	a.busy = ""
	if msg.err != nil {
		a.errMsg = "Save failed: " + msg.err.Error()
		return a, nil
	}
	a.result.LastSaved = msg.saved
	if msg.submit {
		a.status = "Timesheet submitted"
	} else {
		a.status = "Draft saved"
	}
	return a, nil
}

func (a *App) rowCount() int {
	return firstProjectRow + len(a.session.Snapshot().Projects)
}

func (a *App) projectAt(snap *timesheet.State, row int) (timesheet.ProjectRef, bool) {
	i := row - firstProjectRow
	if i < 0 || i >= len(snap.Projects) {
		return timesheet.ProjectRef{}, false
	}
	return snap.Projects[i], true
}
