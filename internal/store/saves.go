package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Save is one attempt to persist a week's timesheet.
type Save struct {
	ID          int64
	ResourceID  int64
	WeekStart   string
	TimesheetID int64
	WorkedHours float64
	Submit      bool
	Status      string
	Error       string
	CreatedAt   time.Time
}

// RecordSave logs the outcome of a save. saved may be nil when err is set.
func (db *DB) RecordSave(resourceID int64, weekStart string, saved *timesheet.Timesheet, submit bool, saveErr error) (int64, error) {
	s := &Save{
		ResourceID: resourceID,
		WeekStart:  weekStart,
		Submit:     submit,
		Status:     StatusDraft,
	}
	if submit {
		s.Status = StatusSubmitted
	}
	if saved != nil {
		s.TimesheetID = saved.ID
		s.WorkedHours = saved.WorkedHours
	}
	if saveErr != nil {
		s.Status = StatusFailed
		s.Error = saveErr.Error()
	}
	return db.InsertSave(s)
}

func (db *DB) InsertSave(s *Save) (int64, error) {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := db.Exec(
		`INSERT INTO saves (resource_id, week_start, timesheet_id, worked_hours, submit, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ResourceID, s.WeekStart, s.TimesheetID, s.WorkedHours, s.Submit, s.Status,
		sql.NullString{String: s.Error, Valid: s.Error != ""},
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting save: %w", err)
	}
	return result.LastInsertId()
}

// RecentSaves returns the latest attempts, newest first.
func (db *DB) RecentSaves(limit int) ([]Save, error) {
	return db.querySaves(
		`SELECT id, resource_id, week_start, timesheet_id, worked_hours, submit, status, error, created_at
		 FROM saves
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
}

// LastSuccessfulSave returns the newest non-failed save for the week, or nil.
func (db *DB) LastSuccessfulSave(resourceID int64, weekStart string) (*Save, error) {
	saves, err := db.querySaves(
		`SELECT id, resource_id, week_start, timesheet_id, worked_hours, submit, status, error, created_at
		 FROM saves
		 WHERE resource_id = ? AND week_start = ? AND status != ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		resourceID, weekStart, StatusFailed,
	)
	if err != nil {
		return nil, err
	}
	if len(saves) == 0 {
		return nil, nil
	}
	return &saves[0], nil
}

func (db *DB) querySaves(query string, args ...interface{}) ([]Save, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying saves: %w", err)
	}
	defer rows.Close()

	var saves []Save
	for rows.Next() {
		var s Save
		var errText sql.NullString
		var createdStr string

		if err := rows.Scan(
			&s.ID, &s.ResourceID, &s.WeekStart, &s.TimesheetID, &s.WorkedHours,
			&s.Submit, &s.Status, &errText, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scanning save: %w", err)
		}

		s.Error = errText.String
		if t, err := time.Parse(timeLayout, createdStr); err == nil {
			s.CreatedAt = t
		}

		saves = append(saves, s)
	}

	return saves, rows.Err()
}
