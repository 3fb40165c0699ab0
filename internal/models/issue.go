package models

import "time"

// ErrorCode classifies a failed remote call for degradation decisions.
type ErrorCode string

const (
	ErrorMissingConfig    ErrorCode = "missing-config"
	ErrorPermissionDenied ErrorCode = "permission-denied"
	ErrorRequestDenied    ErrorCode = "request-denied"
	ErrorNetworkError     ErrorCode = "network-error"
)

// Issue is a normalized Backlog issue as shown in the bucket view.
// DueDate, when set, is a local calendar date formatted YYYY-MM-DD,
// derived by truncating to local midnight — never a raw timestamp.
type Issue struct {
	ID           int       `json:"id"`
	IssueKey     string    `json:"issueKey"`
	Summary      string    `json:"summary"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	StatusID     *int      `json:"statusId"`
	ProjectID    int       `json:"projectId"`
	ProjectName  string    `json:"projectName"`
	CategoryName *string   `json:"categoryName"`
	DueDate      *string   `json:"dueDate"`
	Created      time.Time `json:"created"`
	URL          string    `json:"url"`
}

// ProjectStatuses pairs a project with its workflow statuses.
type ProjectStatuses struct {
	ProjectID int             `json:"projectId"`
	Statuses  []ProjectStatus `json:"statuses"`
}

// BucketSet is the partitioned view of the user's assigned issues.
// The four lists are pairwise disjoint; issues due beyond the current
// week appear in none of them.
type BucketSet struct {
	Past     []Issue           `json:"past"`
	Today    []Issue           `json:"today"`
	ThisWeek []Issue           `json:"thisWeek"`
	NoDue    []Issue           `json:"noDue"`
	Statuses []ProjectStatuses `json:"statuses"`

	FetchedAt    time.Time `json:"fetchedAt"`
	Stale        bool      `json:"stale,omitempty"`
	ErrorCode    ErrorCode `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Total returns the number of issues across all four buckets.
func (b *BucketSet) Total() int {
	return len(b.Past) + len(b.Today) + len(b.ThisWeek) + len(b.NoDue)
}
