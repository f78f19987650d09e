package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peoplepulse/pulse/internal/config"
	"github.com/peoplepulse/pulse/internal/timesheet"
)

const reminderKeyPrefix = "reminder:"

type TimesheetFetcher interface {
	GetTimesheet(ctx context.Context, resourceID int64, weekStart time.Time) (*timesheet.Timesheet, error)
}

// StateStore remembers which weeks have already been handled.
type StateStore interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

type Notifier func(title, message string) error

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notify = n }
}

// Scheduler reminds the resource to submit the current week's timesheet.
// It fires at most once per week, on the configured day after the
// configured time, and only while the week is unsubmitted.
type Scheduler struct {
	cfg      config.NotifyConfig
	resource timesheet.ResourceContext
	gateway  TimesheetFetcher
	state    StateStore
	notify   Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

func New(cfg *config.Config, gateway TimesheetFetcher, state StateStore, logger *logrus.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	s := &Scheduler{
		cfg:      cfg.Notifications,
		resource: cfg.Context(),
		gateway:  gateway,
		state:    state,
		notify:   SendNotification,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer s.removePID()

	interval := time.Duration(s.cfg.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	fmt.Printf("Reminder started (%s after %s, checking every %s)\n",
		time.Weekday(s.cfg.ReminderDay), s.cfg.ReminderTime, interval)
	s.logger.WithFields(logrus.Fields{
		"resource_id": s.resource.ResourceID,
		"interval":    interval.String(),
	}).Info("Reminder scheduler started")

	for {
		if _, err := s.Check(ctx); err != nil {
			s.logger.WithError(err).Warn("Reminder check failed")
		}

		next := nextTick(s.now(), interval)
		select {
		case <-ctx.Done():
			fmt.Println("\nReminder stopped.")
			s.logger.Info("Reminder scheduler stopped")
			return nil
		case <-time.After(time.Until(next)):
		}
	}
}

// Check sends the reminder if it is due and reports whether it did.
func (s *Scheduler) Check(ctx context.Context) (bool, error) {
	now := s.now()
	if !s.due(now) {
		return false, nil
	}

	week := timesheet.WeekDays(now, 0)
	key := reminderKeyPrefix + strconv.FormatInt(s.resource.ResourceID, 10) + ":" + week.Key(0)
	done, err := s.state.GetState(key)
	if err != nil {
		return false, fmt.Errorf("reading reminder state: %w", err)
	}
	if done != "" {
		return false, nil
	}

	ts, err := s.gateway.GetTimesheet(ctx, s.resource.ResourceID, week.Start)
	if err != nil {
		return false, fmt.Errorf("checking timesheet: %w", err)
	}

	log := s.logger.WithField("week_start", week.Key(0))
	if ts != nil && ts.IsSubmit {
		log.Debug("Timesheet already submitted, no reminder needed")
		return false, s.state.SetState(key, "submitted")
	}

	msg := "Your timesheet for this week has not been submitted yet."
	if ts != nil {
		msg = fmt.Sprintf("Your timesheet for this week is a draft with %.2f hours. Submit it with 'pulse week'.", ts.WorkedHours)
	}
	if s.cfg.Enabled {
		if err := s.notify("pulse", msg); err != nil {
			log.WithError(err).Warn("Failed to send notification")
		}
	}
	fmt.Println(msg)
	log.Info("Submit reminder sent")

	return true, s.state.SetState(key, now.Format(time.RFC3339))
}

func (s *Scheduler) due(now time.Time) bool {
	if int(now.Weekday()) != s.cfg.ReminderDay {
		return false
	}
	at, err := timesheet.ParseClock(s.cfg.ReminderTime)
	if err != nil {
		return false
	}
	return now.Hour()*60+now.Minute() >= at
}

// nextTick aligns to the next multiple of interval within the hour.
func nextTick(now time.Time, interval time.Duration) time.Time {
	mins := int(interval.Minutes())
	if mins <= 0 {
		mins = 60
	}

	nextMinute := ((now.Minute() / mins) + 1) * mins

	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return next.Add(time.Duration(nextMinute) * time.Minute)
}

func pidPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pulse.pid"), nil
}

func (s *Scheduler) writePID() error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := pidPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) removePID() {
	if path, err := pidPath(); err == nil {
		os.Remove(path)
	}
}

func ReadPID() (int, error) {
	path, err := pidPath()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running reminder found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
