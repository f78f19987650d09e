package timesheet

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidProjectID = errors.New("project id must be numeric")

// WeeklyTargetHours is reported as totalHours on every payload.
const WeeklyTargetHours = 40

const (
	StatusDraft     = "Draft"
	StatusSubmitted = "Submitted"
)

// BuildPayload merges the working set with the previously persisted timesheet
// so that rows the backend already knows keep their identifiers.
func BuildPayload(state *State, persisted *Timesheet, week Week, rc ResourceContext, submit bool) (*Timesheet, error) {
	out := &Timesheet{
		ResourceID:    rc.ResourceID,
		PMID:          rc.PMID,
		RMID:          rc.RMID,
		TotalHours:    WeeklyTargetHours,
		WorkedHours:   state.WorkedHours(week),
		IsActive:      true,
		IsSubmit:      submit,
		Status:        StatusDraft,
		WeekStartDate: week.Key(0),
		WeekEndDate:   week.Key(6),
	}
	if submit {
		out.Status = StatusSubmitted
	}
	if persisted != nil {
		out.ID = persisted.ID
		out.IsActive = persisted.IsActive
		out.IsNotified = persisted.IsNotified
	}

	for _, p := range state.Projects {
		projectID, err := strconv.ParseInt(p.ID, 10, 64)
		if err != nil || projectID <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProjectID, p.ID)
		}

		detail := ProjectDetail{ProjectID: projectID}
		existing := persisted.findProject(projectID)
		if existing != nil {
			detail.ID = existing.ID
			detail.TimesheetID = existing.TimesheetID
			detail.IsActive = existing.IsActive
		}

		for _, key := range week.Keys() {
			hours, _ := state.Hours(p.ID, key)
			day := DayDetail{
				WorkDate:    key,
				HoursWorked: hours,
			}
			if prev := existing.findDay(key); prev != nil {
				day.ID = prev.ID
				day.TimesheetProjectTimesheetDetailID = prev.TimesheetProjectTimesheetDetailID
				day.IsHoliday = prev.IsHoliday
				day.IsActive = prev.IsActive
			}
			detail.TimesheetDetails = append(detail.TimesheetDetails, day)
		}
		out.ProjectTimesheetDetails = append(out.ProjectTimesheetDetails, detail)
	}
	return out, nil
}

// CanSubmit reports whether any project has hours on the anchor day.
// It guards against submitting an empty week, not an incomplete one.
func CanSubmit(state *State, week Week) bool {
	anchor := week.Key(AnchorDay)
	for _, p := range state.Projects {
		if h, ok := state.Hours(p.ID, anchor); ok && h != 0 {
			return true
		}
	}
	return false
}
