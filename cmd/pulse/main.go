package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/invopop/jsonschema"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peoplepulse/pulse/internal/calendar"
	"github.com/peoplepulse/pulse/internal/config"
	"github.com/peoplepulse/pulse/internal/peoplepulse"
	"github.com/peoplepulse/pulse/internal/scheduler"
	"github.com/peoplepulse/pulse/internal/store"
	"github.com/peoplepulse/pulse/internal/timesheet"
	"github.com/peoplepulse/pulse/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:           "pulse",
	Short:         "Weekly timesheets for PeoplePulse",
	Long:          "pulse edits, saves and submits your weekly PeoplePulse timesheet from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Open the weekly timesheet editor",
	RunE:  runWeek,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a week's timesheet",
	RunE:  runShow,
}

var autofillCmd = &cobra.Command{
	Use:   "autofill",
	Short: "Fill the current week with the default working hours and save it",
	RunE:  runAutofill,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects you can log time against",
	RunE:  runProjects,
}

var holidaysCmd = &cobra.Command{
	Use:   "holidays",
	Short: "List public holidays in a week",
	RunE:  runHolidays,
}

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Show the configured resource and its managers",
	RunE:  runResource,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the submit reminder",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reminder",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent saves",
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the timesheet payload",
	RunE:  runSchema,
}

func init() {
	weekCmd.Flags().String("week", "", `Week to open: offset ("-1"), date ("2024-06-03") or "last week"`)
	showCmd.Flags().String("week", "", `Week to print: offset ("-1"), date ("2024-06-03") or "last week"`)
	holidaysCmd.Flags().String("week", "", `Week to list: offset ("-1"), date ("2024-06-03") or "last week"`)
	autofillCmd.Flags().Bool("submit", false, "Submit the week instead of saving a draft")
	resourceCmd.Flags().Bool("save", false, "Write the managers and weekend permission to the config file")
	statusCmd.Flags().Int("limit", 20, "Number of saves to show")

	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(autofillCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(holidaysCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Resource.ID == 0 {
		return nil, fmt.Errorf("resource id not configured, run 'pulse config' or set PEOPLEPULSE_RESOURCE_ID")
	}
	return cfg, nil
}

// newLogger writes to the log file so output does not interfere with the TUI.
func newLogger(cfg *config.Config) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	path, err := cfg.LogPath()
	if err != nil {
		return nil, nil, err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.SetOutput(io.Discard)
		return logger, func() {}, nil
	}
	logger.SetOutput(f)
	return logger, func() { f.Close() }, nil
}

func newClient(cfg *config.Config, logger *logrus.Logger) *peoplepulse.Client {
	return peoplepulse.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.CacheTTL(), logger)
}

// resolveResource fills in the managers from the backend when the config
// does not name them.
func resolveResource(ctx context.Context, cfg *config.Config, client *peoplepulse.Client, logger *logrus.Logger) timesheet.ResourceContext {
	rc := cfg.Context()
	if rc.PMID != 0 && rc.RMID != 0 {
		return rc
	}
	res, err := client.GetResource(ctx, rc.ResourceID)
	if err != nil {
		logger.WithError(err).WithField("resource", rc.ResourceID).Warn("Could not look up resource managers")
		return rc
	}
	if rc.PMID == 0 {
		rc.PMID = res.PMID
	}
	if rc.RMID == 0 {
		rc.RMID = res.RMID
	}
	rc.WeekendPermission = rc.WeekendPermission || res.WeekendPermission
	return rc
}

// app bundles what most commands need.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	client   *peoplepulse.Client
	resource timesheet.ResourceContext
	closeLog func()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	client := newClient(cfg, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		resource: resolveResource(ctx, cfg, client, logger),
		closeLog: closeLog,
	}, nil
}

func (a *app) newSession(projects []peoplepulse.Project) *timesheet.Session {
	return timesheet.NewSession(a.client, a.resource,
		timesheet.WithLogger(a.logger),
		timesheet.WithProjectNames(peoplepulse.ProjectNames(projects)),
		timesheet.WithDefaultRange(a.cfg.DefaultRange()),
	)
}

func (a *app) holidays(ctx context.Context, week timesheet.Week) (map[string]string, error) {
	if !a.cfg.Calendar.Enabled {
		return nil, nil
	}
	hs, err := calendar.Holidays(ctx, a.cfg.Calendar.Source, week)
	if err != nil {
		return nil, err
	}
	return calendar.ByDate(hs), nil
}

func weekFlag(cmd *cobra.Command) (int, error) {
	s, _ := cmd.Flags().GetString("week")
	return parseWeek(s, time.Now())
}

func runWeek(cmd *cobra.Command, args []string) error {
	offset, err := weekFlag(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.closeLog()

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	projects, err := a.client.GetProjects(ctx, a.resource.ResourceID)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}
	refs := make([]timesheet.ProjectRef, 0, len(projects))
	for _, p := range projects {
		refs = append(refs, p.Ref())
	}

	session := a.newSession(projects)
	model := tui.NewApp(session, tui.Options{
		Projects:   refs,
		Holidays:   a.holidays,
		DailyLimit: a.cfg.Timesheet.DailyLimit,
		Offset:     offset,
		Logger:     a.logger,
		OnSave: func(week timesheet.Week, saved *timesheet.Timesheet, submit bool, saveErr error) {
			if _, err := db.RecordSave(a.resource.ResourceID, timesheet.DateKey(week.Start), saved, submit, saveErr); err != nil {
				a.logger.WithError(err).Warn("Failed to record save")
			}
		},
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	result := model.GetResult()
	if result.Unsaved {
		fmt.Println("Quit with unsaved changes.")
	}
	if result.LastSaved != nil {
		fmt.Printf("Last saved: %s week of %s (%.2fh)\n",
			result.LastSaved.Status, result.LastSaved.WeekStartDate, result.LastSaved.WorkedHours)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	offset, err := weekFlag(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.closeLog()

	projects, err := a.client.GetProjects(ctx, a.resource.ResourceID)
	if err != nil {
		a.logger.WithError(err).Warn("Could not fetch project names")
	}

	session := a.newSession(projects)
	if err := session.Load(ctx, offset); err != nil {
		return fmt.Errorf("loading week: %w", err)
	}

	week := session.Week()
	state := session.Snapshot()
	persisted := session.Persisted()

	status := "not started"
	if persisted != nil {
		status = persisted.Status
		if status == "" {
			status = timesheet.StatusDraft
		}
	}
	fmt.Printf("Week of %s (%s)\n\n", timesheet.DateKey(week.Start), status)

	if len(state.Projects) == 0 {
		fmt.Println("No hours logged.")
		return nil
	}

	holidays, err := a.holidays(ctx, week)
	if err != nil {
		a.logger.WithError(err).Warn("Could not load holidays")
	}
	printWeek(week, state, holidays, a.cfg.Timesheet.DailyLimit)
	return nil
}

func printWeek(week timesheet.Week, state *timesheet.State, holidays map[string]string, dailyLimit float64) {
	const nameWidth = 24

	var b strings.Builder
	fmt.Fprintf(&b, "  %-*s", nameWidth, "Project")
	for _, d := range week.Days {
		label := d.Format("Mon 02")
		if holidays[timesheet.DateKey(d)] != "" {
			label += "*"
		}
		fmt.Fprintf(&b, "%8s", label)
	}
	fmt.Fprintf(&b, "%8s\n", "Total")

	for _, p := range state.Projects {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		if len(name) > nameWidth {
			name = name[:nameWidth-1] + "~"
		}
		fmt.Fprintf(&b, "  %-*s", nameWidth, name)
		for _, key := range week.Keys() {
			h, _ := state.Hours(p.ID, key)
			fmt.Fprintf(&b, "%8.2f", h)
		}
		fmt.Fprintf(&b, "%8.2f\n", state.ProjectTotal(p.ID, week))
	}

	overtime := make(map[string]bool)
	for _, d := range state.OvertimeDays(week, dailyLimit) {
		overtime[d] = true
	}
	fmt.Fprintf(&b, "  %-*s", nameWidth, "Day total")
	for _, key := range week.Keys() {
		mark := ""
		if overtime[key] {
			mark = "!"
		}
		fmt.Fprintf(&b, "%8s", fmt.Sprintf("%.2f%s", state.DayTotal(key), mark))
	}
	fmt.Fprintf(&b, "\n\nWorked: %.2f / %.0fh\n", state.WorkedHours(week), float64(timesheet.WeeklyTargetHours))

	fmt.Print(b.String())
	for _, key := range week.Keys() {
		if name := holidays[key]; name != "" {
			fmt.Printf("  * %s: %s\n", key, name)
		}
	}
}

func runAutofill(cmd *cobra.Command, args []string) error {
	submit, _ := cmd.Flags().GetBool("submit")

	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.closeLog()

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	projects, err := a.client.GetProjects(ctx, a.resource.ResourceID)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}

	session := a.newSession(projects)
	if err := session.Load(ctx, 0); err != nil {
		return fmt.Errorf("loading week: %w", err)
	}
	week := session.Week()
	if session.Phase() == timesheet.PhaseSubmitted {
		return fmt.Errorf("week of %s is already submitted", timesheet.DateKey(week.Start))
	}

	if len(session.Snapshot().Projects) == 0 {
		if len(projects) == 0 {
			return fmt.Errorf("no projects assigned to resource %d", a.resource.ResourceID)
		}
		for _, p := range projects {
			if err := session.AddProject(p.Ref()); err != nil {
				return fmt.Errorf("adding project %s: %w", p.ProjectName, err)
			}
		}
	}

	if err := session.AutoFill(); err != nil {
		return fmt.Errorf("auto-filling week: %w", err)
	}

	var saved *timesheet.Timesheet
	if submit {
		saved, err = session.Submit(ctx)
	} else {
		saved, err = session.Save(ctx)
	}

	if _, recErr := db.RecordSave(a.resource.ResourceID, timesheet.DateKey(week.Start), saved, submit, err); recErr != nil {
		a.logger.WithError(recErr).Warn("Failed to record save")
	}
	if err != nil {
		if errors.Is(err, timesheet.ErrSubmitNotAllowed) {
			return fmt.Errorf("nothing logged on Friday, week of %s cannot be submitted", timesheet.DateKey(week.Start))
		}
		return err
	}

	fmt.Printf("%s: week of %s, %.2fh across %d projects\n",
		saved.Status, saved.WeekStartDate, saved.WorkedHours, len(saved.ProjectTimesheetDetails))
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.closeLog()

	projects, err := a.client.GetProjects(ctx, a.resource.ResourceID)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	fmt.Printf("Found %d projects:\n\n", len(projects))
	for _, p := range projects {
		fmt.Printf("  %-6d %-12s %-30s %s\n", p.ID, p.ProjectCode, p.ProjectName, p.ClientName)
	}
	return nil
}

func runHolidays(cmd *cobra.Command, args []string) error {
	offset, err := weekFlag(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Calendar.Enabled {
		fmt.Println("Holiday calendar is disabled. Set [calendar] enabled and source in the config.")
		return nil
	}

	week := timesheet.WeekDays(time.Now(), offset)
	hs, err := calendar.Holidays(context.Background(), cfg.Calendar.Source, week)
	if err != nil {
		return fmt.Errorf("fetching holidays: %w", err)
	}

	if len(hs) == 0 {
		fmt.Printf("No holidays in the week of %s.\n", timesheet.DateKey(week.Start))
		return nil
	}
	for _, h := range hs {
		fmt.Printf("  %s  %s\n", h.Date, h.Name)
	}
	return nil
}

func runResource(cmd *cobra.Command, args []string) error {
	save, _ := cmd.Flags().GetBool("save")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	res, err := newClient(cfg, logger).GetResource(context.Background(), cfg.Resource.ID)
	if err != nil {
		return fmt.Errorf("fetching resource: %w", err)
	}

	fmt.Printf("Resource:  %d %s <%s>\n", res.ID, res.ResourceName, res.Email)
	fmt.Printf("PM:        %d\n", res.PMID)
	fmt.Printf("RM:        %d\n", res.RMID)
	fmt.Printf("Weekends:  %t\n", res.WeekendPermission)

	if !save {
		return nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := config.SaveResource(path, res.Context()); err != nil {
		return fmt.Errorf("saving resource: %w", err)
	}
	fmt.Printf("Saved to %s\n", path)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.closeLog()

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	sched := scheduler.New(a.cfg, a.client, db, a.logger)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return sched.Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := scheduler.ReadPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to pulse (PID %d)\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	saves, err := db.RecentSaves(limit)
	if err != nil {
		return fmt.Errorf("fetching saves: %w", err)
	}

	if len(saves) == 0 {
		fmt.Println("No saves recorded yet.")
		return nil
	}

	fmt.Println("Recent saves:")
	fmt.Println()
	for _, s := range saves {
		line := fmt.Sprintf("  %s  week %s  %6.2fh  #%-6d [%s]",
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.WeekStart,
			s.WorkedHours,
			s.TimesheetID,
			s.Status,
		)
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Println(line)
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	proc := os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	}
	process, err := os.StartProcess(editor, []string{editor, configPath}, &proc)
	if err != nil {
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
		return nil
	}
	_, err = process.Wait()
	return err
}

func runSchema(cmd *cobra.Command, args []string) error {
	r := &jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&timesheet.Timesheet{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
