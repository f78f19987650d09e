package peoplepulse

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

var ErrNotFound = errors.New("not found")

// APIError is returned for any non-2xx response that survives the retries.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%s %s, status %d): %s", e.Method, e.Path, e.Status, truncate(e.Body, 200))
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Resource struct {
	ID                int64  `json:"id"`
	ResourceName      string `json:"resourceName"`
	Email             string `json:"email"`
	PMID              int64  `json:"pmid"`
	RMID              int64  `json:"rmid"`
	WeekendPermission bool   `json:"weekendPermission"`
	IsActive          bool   `json:"isActive"`
}

// Context is the part of the resource the timesheet core needs.
func (r Resource) Context() timesheet.ResourceContext {
	return timesheet.ResourceContext{
		ResourceID:        r.ID,
		PMID:              r.PMID,
		RMID:              r.RMID,
		WeekendPermission: r.WeekendPermission,
	}
}

type Project struct {
	ID          int64  `json:"id"`
	ProjectName string `json:"projectName"`
	ProjectCode string `json:"projectCode"`
	ClientName  string `json:"clientName"`
	IsActive    bool   `json:"isActive"`
}

func (p Project) Ref() timesheet.ProjectRef {
	return timesheet.ProjectRef{ID: strconv.FormatInt(p.ID, 10), Name: p.ProjectName}
}

// ProjectNames maps project ids, as used in the working set, to names.
func ProjectNames(projects []Project) map[string]string {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[strconv.FormatInt(p.ID, 10)] = p.ProjectName
	}
	return names
}
