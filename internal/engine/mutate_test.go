package engine

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backlogdeck/bld/internal/backlog"
	"github.com/backlogdeck/bld/internal/models"
	"github.com/backlogdeck/bld/internal/store"
)

func TestUpdateIssueStatus_ValidatesBeforeAnyRequest(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{
		updateStatus: func(ctx context.Context, issueID, statusID int) error {
			calls.Add(1)
			return nil
		},
	}
	e, _ := newTestEngine(t, client, nil)
	ctx := context.Background()

	assert.Error(t, e.UpdateIssueStatus(ctx, 0, 1))
	assert.Error(t, e.UpdateIssueStatus(ctx, 1, 0))
	assert.Error(t, e.UpdateIssueStatus(ctx, -5, 2))
	assert.Equal(t, int32(0), calls.Load())
}

func TestUpdateIssueStatus_BumpsRevisionAndLogs(t *testing.T) {
	st := newMemStore()
	client := &fakeClient{
		assignedIssues: func(ctx context.Context, assigneeID, offset, count int) ([]backlog.RawIssue, error) {
			return []backlog.RawIssue{rawIssue(1, 10, "P10-1", "")}, nil
		},
	}
	e, now := newTestEngine(t, client, st)
	ctx := context.Background()

	// Warm the bucket cache so invalidation is observable.
	e.Buckets(ctx, false)
	_, _, ok := e.buckets.Last(bucketKey)
	require.True(t, ok)

	require.NoError(t, e.UpdateIssueStatus(ctx, 101, 2))

	_, _, ok = e.buckets.Last(bucketKey)
	assert.False(t, ok, "bucket cache should be invalidated")

	rev, ok, err := st.Get(ctx, store.RevisionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), rev)

	muts, err := st.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, "status", muts[0].Kind)
	assert.Equal(t, 101, muts[0].IssueID)
	assert.Equal(t, "statusId=2", muts[0].Detail)
}

func TestUpdateIssueStatus_RemoteErrorPropagatesWithoutRevisionBump(t *testing.T) {
	st := newMemStore()
	client := &fakeClient{
		updateStatus: func(ctx context.Context, issueID, statusID int) error {
			return backlog.NewError(models.ErrorRequestDenied, "401")
		},
	}
	e, _ := newTestEngine(t, client, st)
	ctx := context.Background()

	err := e.UpdateIssueStatus(ctx, 101, 2)
	require.Error(t, err)
	assert.Equal(t, models.ErrorRequestDenied, backlog.Classify(err))

	_, ok, _ := st.Get(ctx, store.RevisionKey)
	assert.False(t, ok)
}

func TestUpdateIssueDueDate_ValidatesDate(t *testing.T) {
	e, _ := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()

	assert.Error(t, e.UpdateIssueDueDate(ctx, 0, "2024-06-10"))
	assert.Error(t, e.UpdateIssueDueDate(ctx, 1, ""))
	assert.Error(t, e.UpdateIssueDueDate(ctx, 1, "06/10/2024"))
	assert.Error(t, e.UpdateIssueDueDate(ctx, 1, "2024-13-40"))
}

func TestUpdateIssueDueDate_RetriesWithStartDateOnConstraint(t *testing.T) {
	type call struct{ dueDate, startDate string }
	var calls []call
	client := &fakeClient{
		updateDueDate: func(ctx context.Context, issueID int, dueDate, startDate string) error {
			calls = append(calls, call{dueDate, startDate})
			if startDate == "" {
				return errors.New(`backlog API error 400: {"errors":[{"message":"開始日より前の日付は設定できません","code":7}]}`)
			}
			return nil
		},
	}
	e, _ := newTestEngine(t, client, newMemStore())

	err := e.UpdateIssueDueDate(context.Background(), 101, "2024-06-01")
	require.NoError(t, err)
	require.Equal(t, []call{
		{"2024-06-01", ""},
		{"2024-06-01", "2024-06-01"},
	}, calls)
}

func TestUpdateIssueDueDate_RetriesOnEnglishConstraintMessage(t *testing.T) {
	attempts := 0
	client := &fakeClient{
		updateDueDate: func(ctx context.Context, issueID int, dueDate, startDate string) error {
			attempts++
			if attempts == 1 {
				return errors.New("due date must not precede the start date")
			}
			return nil
		},
	}
	e, _ := newTestEngine(t, client, nil)

	assert.NoError(t, e.UpdateIssueDueDate(context.Background(), 101, "2024-06-01"))
	assert.Equal(t, 2, attempts)
}

func TestUpdateIssueDueDate_UnrelatedErrorNotRetried(t *testing.T) {
	attempts := 0
	client := &fakeClient{
		updateDueDate: func(ctx context.Context, issueID int, dueDate, startDate string) error {
			attempts++
			return errors.New("backlog API error 500: internal error")
		},
	}
	e, _ := newTestEngine(t, client, nil)

	assert.Error(t, e.UpdateIssueDueDate(context.Background(), 101, "2024-06-01"))
	assert.Equal(t, 1, attempts)
}

func TestUpdateIssueDueDate_RetryFailurePropagates(t *testing.T) {
	client := &fakeClient{
		updateDueDate: func(ctx context.Context, issueID int, dueDate, startDate string) error {
			return errors.New("start date constraint")
		},
	}
	e, _ := newTestEngine(t, client, nil)

	assert.Error(t, e.UpdateIssueDueDate(context.Background(), 101, "2024-06-01"))
}

func TestCreateIssue_Validation(t *testing.T) {
	e, _ := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()

	_, err := e.CreateIssue(ctx, models.CreateIssueParams{IssueTypeID: 1, Summary: "x"})
	assert.Error(t, err)

	_, err = e.CreateIssue(ctx, models.CreateIssueParams{ProjectID: 1, Summary: "x"})
	assert.Error(t, err)

	_, err = e.CreateIssue(ctx, models.CreateIssueParams{ProjectID: 1, IssueTypeID: 1, Summary: "   "})
	assert.Error(t, err)
}

func TestCreateIssue_DefaultsPriority(t *testing.T) {
	var got models.CreateIssueParams
	client := &fakeClient{
		createIssue: func(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error) {
			got = params
			return &models.CreatedIssue{ID: 7, IssueKey: "P10-7", Summary: params.Summary}, nil
		},
	}
	e, _ := newTestEngine(t, client, nil)

	created, err := e.CreateIssue(context.Background(), models.CreateIssueParams{
		ProjectID:   10,
		IssueTypeID: 1,
		Summary:     "new issue",
	})
	require.NoError(t, err)
	assert.Equal(t, defaultPriorityID, got.PriorityID)
	assert.Equal(t, "P10-7", created.IssueKey)
}

func TestCreateIssue_ExplicitPriorityKept(t *testing.T) {
	var got models.CreateIssueParams
	client := &fakeClient{
		createIssue: func(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error) {
			got = params
			return &models.CreatedIssue{ID: 7, IssueKey: "P10-7"}, nil
		},
	}
	e, _ := newTestEngine(t, client, nil)

	_, err := e.CreateIssue(context.Background(), models.CreateIssueParams{
		ProjectID:   10,
		IssueTypeID: 1,
		Summary:     "urgent",
		PriorityID:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.PriorityID)
}

func TestCreateIssue_RecordsMutationWithIssueKey(t *testing.T) {
	st := newMemStore()
	e, _ := newTestEngine(t, &fakeClient{}, st)

	created, err := e.CreateIssue(context.Background(), models.CreateIssueParams{
		ProjectID:   10,
		IssueTypeID: 1,
		Summary:     "new issue",
	})
	require.NoError(t, err)

	muts, err := st.ListMutations(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, "create", muts[0].Kind)
	assert.Equal(t, created.IssueKey, muts[0].IssueKey)
}

func TestMutations_MissingConfigFailsFast(t *testing.T) {
	e := New(staticConfig{cfg: nil}, nil)
	ctx := context.Background()

	err := e.UpdateIssueStatus(ctx, 1, 2)
	require.Error(t, err)
	assert.Equal(t, models.ErrorMissingConfig, backlog.Classify(err))

	err = e.UpdateIssueDueDate(ctx, 1, "2024-06-01")
	require.Error(t, err)
	assert.Equal(t, models.ErrorMissingConfig, backlog.Classify(err))

	_, err = e.CreateIssue(ctx, models.CreateIssueParams{ProjectID: 1, IssueTypeID: 1, Summary: "x"})
	require.Error(t, err)
	assert.Equal(t, models.ErrorMissingConfig, backlog.Classify(err))
}
