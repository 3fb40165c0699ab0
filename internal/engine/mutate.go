package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/backlogdeck/bld/internal/models"
	"github.com/backlogdeck/bld/internal/store"
)

// defaultPriorityID is Backlog's "normal" priority, applied when a
// creation request leaves the priority unset.
const defaultPriorityID = 3

// startDateConstraintPatterns identify the remote rejection of a due
// date that falls before the issue's start date. The Japanese token and
// the numeric error code come from the remote service's own messages.
var startDateConstraintPatterns = []string{
	"開始日",
	`code":7`,
	"start date",
	"StartDate",
}

// UpdateIssueStatus moves an issue to a new status, then invalidates
// the bucket-set cache and bumps the revision token. Remote errors
// propagate unchanged.
func (e *Engine) UpdateIssueStatus(ctx context.Context, issueID, statusID int) error {
	if issueID <= 0 {
		return fmt.Errorf("invalid issue id: %d", issueID)
	}
	if statusID <= 0 {
		return fmt.Errorf("invalid status id: %d", statusID)
	}

	_, client, err := e.session(ctx)
	if err != nil {
		return err
	}
	if err := client.UpdateIssueStatus(ctx, issueID, statusID); err != nil {
		return err
	}

	e.recordMutation(ctx, &store.Mutation{
		Kind:    "status",
		IssueID: issueID,
		Detail:  fmt.Sprintf("statusId=%d", statusID),
	})
	return nil
}

// UpdateIssueDueDate sets an issue's due date. When the remote service
// rejects the change because the new due date precedes the issue's
// start date, the call is retried exactly once with the start date
// moved to the same day. Any other remote error propagates unchanged.
func (e *Engine) UpdateIssueDueDate(ctx context.Context, issueID int, dueDate string) error {
	if issueID <= 0 {
		return fmt.Errorf("invalid issue id: %d", issueID)
	}
	if dueDate == "" {
		return fmt.Errorf("invalid due date")
	}
	if _, err := time.Parse(dateKeyLayout, dueDate); err != nil {
		return fmt.Errorf("invalid due date %q: expected YYYY-MM-DD", dueDate)
	}

	_, client, err := e.session(ctx)
	if err != nil {
		return err
	}
	if err := client.UpdateIssueDueDate(ctx, issueID, dueDate, ""); err != nil {
		if !matchesStartDateConstraint(err) {
			return err
		}
		if err := client.UpdateIssueDueDate(ctx, issueID, dueDate, dueDate); err != nil {
			return err
		}
	}

	e.recordMutation(ctx, &store.Mutation{
		Kind:    "due-date",
		IssueID: issueID,
		Detail:  "dueDate=" + dueDate,
	})
	return nil
}

// CreateIssue validates and creates a new issue, defaulting the
// priority, then invalidates the bucket-set cache and bumps the
// revision token.
func (e *Engine) CreateIssue(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error) {
	if params.ProjectID <= 0 {
		return nil, fmt.Errorf("invalid project id: %d", params.ProjectID)
	}
	if params.IssueTypeID <= 0 {
		return nil, fmt.Errorf("invalid issue type id: %d", params.IssueTypeID)
	}
	if strings.TrimSpace(params.Summary) == "" {
		return nil, fmt.Errorf("summary is required")
	}
	if params.PriorityID <= 0 {
		params.PriorityID = defaultPriorityID
	}

	_, client, err := e.session(ctx)
	if err != nil {
		return nil, err
	}
	created, err := client.CreateIssue(ctx, params)
	if err != nil {
		return nil, err
	}

	e.recordMutation(ctx, &store.Mutation{
		Kind:     "create",
		IssueID:  created.ID,
		IssueKey: created.IssueKey,
		Detail:   "summary=" + created.Summary,
	})
	return created, nil
}

// recordMutation invalidates the bucket-set cache, bumps the persisted
// revision token, and appends to the audit log. Store failures are
// deliberately non-fatal: the remote write already succeeded.
func (e *Engine) recordMutation(ctx context.Context, m *store.Mutation) {
	e.buckets.Invalidate(bucketKey)
	if e.st == nil {
		return
	}
	revision := strconv.FormatInt(e.now().UnixMilli(), 10)
	_ = e.st.Set(ctx, store.RevisionKey, revision)
	_ = e.st.AppendMutation(ctx, m)
}

func matchesStartDateConstraint(err error) bool {
	message := err.Error()
	for _, pattern := range startDateConstraintPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
