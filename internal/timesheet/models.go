package timesheet

// Timesheet is the server shape of a weekly timesheet for one resource.
// ID 0 means the backend has not created it yet.
type Timesheet struct {
	ID                      int64           `json:"id"`
	ResourceID              int64           `json:"resourceID" validate:"required,gt=0"`
	TotalHours              float64         `json:"totalHours" validate:"gte=0"`
	WorkedHours             float64         `json:"workedHours" validate:"gte=0"`
	Status                  string          `json:"status"`
	PMID                    int64           `json:"pmid"`
	RMID                    int64           `json:"rmid"`
	IsActive                bool            `json:"isActive"`
	IsNotified              bool            `json:"isNotified"`
	IsSubmit                bool            `json:"isSubmit"`
	WeekStartDate           string          `json:"weekStartDate" validate:"required"`
	WeekEndDate             string          `json:"weekEndDate" validate:"required"`
	ProjectTimesheetDetails []ProjectDetail `json:"projectTimesheetDetails" validate:"dive"`
}

type ProjectDetail struct {
	ID               int64       `json:"id"`
	ProjectID        int64       `json:"projectID" validate:"required,gt=0"`
	TimesheetID      int64       `json:"timesheetID"`
	IsActive         *bool       `json:"isActive"`
	TimesheetDetails []DayDetail `json:"timesheetDetails" validate:"dive"`
}

type DayDetail struct {
	ID                                int64   `json:"id"`
	TimesheetProjectTimesheetDetailID int64   `json:"timesheet_ProjectTimesheetDetailID"`
	WorkDate                          string  `json:"workDate" validate:"required"`
	HoursWorked                       float64 `json:"hoursWorked" validate:"gte=0,lte=24"`
	IsHoliday                         *bool   `json:"isHoliday"`
	IsActive                          *bool   `json:"isActive"`
}

// ProjectRef identifies a project a resource may log time against.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResourceContext carries who the timesheet belongs to and who approves it.
type ResourceContext struct {
	ResourceID        int64
	PMID              int64
	RMID              int64
	WeekendPermission bool
}

// Persisted reports whether the backend has assigned an identifier.
func (t *Timesheet) Persisted() bool {
	return t != nil && t.ID != 0
}

func (t *Timesheet) findProject(projectID int64) *ProjectDetail {
	if t == nil {
		return nil
	}
	for i := range t.ProjectTimesheetDetails {
		if t.ProjectTimesheetDetails[i].ProjectID == projectID {
			return &t.ProjectTimesheetDetails[i]
		}
	}
	return nil
}

func (p *ProjectDetail) findDay(date string) *DayDetail {
	if p == nil {
		return nil
	}
	for i := range p.TimesheetDetails {
		if NormalizeDate(p.TimesheetDetails[i].WorkDate) == date {
			return &p.TimesheetDetails[i]
		}
	}
	return nil
}
