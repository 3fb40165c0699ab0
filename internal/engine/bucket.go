package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/backlogdeck/bld/internal/backlog"
	"github.com/backlogdeck/bld/internal/models"
)

// completedKeyword excludes issues from the bucket view by status name
// (substring match).
const completedKeyword = "完了"

// fallbackStatusName is shown when the remote issue carries no status.
const fallbackStatusName = "未設定"

// dateKeyLayout renders a local calendar date.
const dateKeyLayout = "2006-01-02"

// Buckets holds the four date partitions before statuses are attached.
type Buckets struct {
	Past     []models.Issue
	Today    []models.Issue
	ThisWeek []models.Issue
	NoDue    []models.Issue
}

// Bucketize partitions raw issues into date buckets relative to today.
// It is a pure function of its inputs.
//
// Issues with no assignee, a completed status, or an excluded project
// are dropped. Issues due strictly after the week end (the upcoming
// Sunday, or today when today is Sunday) land in no bucket at all.
func Bucketize(raw []backlog.RawIssue, cfg *backlog.AuthConfig, baseURL string, info map[int]models.ProjectInfo, today time.Time) Buckets {
	todayKey := dateKey(today)
	daysUntilSunday := (7 - int(today.Weekday())) % 7
	weekEndKey := dateKey(truncateLocal(today).AddDate(0, 0, daysUntilSunday))

	var b Buckets
	for _, issue := range raw {
		if issue.Assignee == nil {
			continue
		}
		if issue.Status != nil && strings.Contains(strings.TrimSpace(issue.Status.Name), completedKeyword) {
			continue
		}

		projectID := issue.ProjectID
		if projectID <= 0 {
			projectID = issue.Project.ID
		}
		if cfg.Excluded(issue.Project.ProjectKey, projectID) {
			continue
		}

		normalized := normalizeIssue(issue, projectID, baseURL, info)
		switch {
		case normalized.DueDate == nil:
			b.NoDue = append(b.NoDue, normalized)
		case *normalized.DueDate < todayKey:
			b.Past = append(b.Past, normalized)
		case *normalized.DueDate == todayKey:
			b.Today = append(b.Today, normalized)
		case *normalized.DueDate <= weekEndKey:
			b.ThisWeek = append(b.ThisWeek, normalized)
		}
	}

	sortBucket(b.Past)
	sortBucket(b.Today)
	sortBucket(b.ThisWeek)
	sortBucket(b.NoDue)
	return b
}

// normalizeIssue maps a raw issue to the bucket-view shape.
func normalizeIssue(issue backlog.RawIssue, projectID int, baseURL string, info map[int]models.ProjectInfo) models.Issue {
	status := fallbackStatusName
	var statusID *int
	if issue.Status != nil {
		status = issue.Status.Name
		id := issue.Status.ID
		statusID = &id
	}

	var categoryName *string
	if len(issue.Category) > 0 {
		names := make([]string, len(issue.Category))
		for i, c := range issue.Category {
			names[i] = c.Name
		}
		joined := strings.Join(names, ", ")
		categoryName = &joined
	}

	return models.Issue{
		ID:           issue.ID,
		IssueKey:     issue.IssueKey,
		Summary:      issue.Summary,
		Description:  issue.Description,
		Status:       status,
		StatusID:     statusID,
		ProjectID:    projectID,
		ProjectName:  resolveProjectName(issue, projectID, info),
		CategoryName: categoryName,
		DueDate:      normalizeDueDate(issue.DueDate),
		Created:      issue.Created,
		URL:          baseURL + "/view/" + issue.IssueKey,
	}
}

// resolveProjectName prefers the cached project name, then the inline
// name on the raw issue, then the cached project key, then the numeric
// id — in that order.
func resolveProjectName(issue backlog.RawIssue, projectID int, info map[int]models.ProjectInfo) string {
	pi, cached := info[projectID]
	if cached && pi.Name != "" {
		return pi.Name
	}
	if issue.Project.Name != "" {
		return issue.Project.Name
	}
	if cached && pi.ProjectKey != "" {
		return pi.ProjectKey
	}
	return strconv.Itoa(projectID)
}

func sortBucket(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].ProjectID != issues[j].ProjectID {
			return issues[i].ProjectID < issues[j].ProjectID
		}
		return issues[i].Created.Before(issues[j].Created)
	})
}

// normalizeDueDate parses a remote due date and truncates it to local
// midnight, formatted YYYY-MM-DD. Unparseable input yields nil.
func normalizeDueDate(input string) *string {
	if input == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, input)
	if err != nil {
		t, err = time.ParseInLocation(dateKeyLayout, input, time.Local)
		if err != nil {
			return nil
		}
	} else {
		t = t.Local()
	}
	key := dateKey(t)
	return &key
}

// truncateLocal returns wall-clock local midnight of t's day.
func truncateLocal(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateKey(t time.Time) string {
	return truncateLocal(t).Format(dateKeyLayout)
}
