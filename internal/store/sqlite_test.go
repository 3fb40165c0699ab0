package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Key-value ---

func TestKV_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	// Overwrite
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is fine
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestKV_RevisionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, RevisionKey, "1718000000000"))
	v, ok, err := s.Get(ctx, RevisionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1718000000000", v)
}

// --- Mutation log ---

func TestAppendMutation_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Mutation{Kind: "status", IssueID: 101, Detail: "statusId=2"}
	require.NoError(t, s.AppendMutation(ctx, m))

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestListMutations_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m := &Mutation{
			Kind:      "status",
			IssueID:   100 + i,
			Detail:    "statusId=2",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendMutation(ctx, m))
	}

	muts, err := s.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, muts, 3)
	assert.Equal(t, 102, muts[0].IssueID)
	assert.Equal(t, 101, muts[1].IssueID)
	assert.Equal(t, 100, muts[2].IssueID)
}

func TestListMutations_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMutation(ctx, &Mutation{Kind: "create", IssueKey: "P-" + string(rune('a'+i))}))
	}

	muts, err := s.ListMutations(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, muts, 2)
}

func TestMutation_RoundTripFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &Mutation{
		Kind:      "create",
		IssueID:   55,
		IssueKey:  "ALPHA-55",
		Detail:    "summary=do the thing",
		CreatedAt: time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendMutation(ctx, in))

	muts, err := s.ListMutations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, muts, 1)

	got := muts[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "create", got.Kind)
	assert.Equal(t, 55, got.IssueID)
	assert.Equal(t, "ALPHA-55", got.IssueKey)
	assert.Equal(t, "summary=do the thing", got.Detail)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
}
