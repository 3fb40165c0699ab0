package store

import (
	"context"
	"time"
)

// RevisionKey holds the last mutation timestamp (unix milliseconds).
// External collaborators read it to detect that cached views may be
// outdated.
const RevisionKey = "issuesRevision"

// Mutation is one recorded write against the remote service.
type Mutation struct {
	ID        string // ULID
	Kind      string // "status", "due-date", "create"
	IssueID   int    // 0 for creations until the remote assigns one
	IssueKey  string
	Detail    string
	CreatedAt time.Time
}

// Store is the persistence interface for bld: a small key-value area
// plus the mutation audit log.
type Store interface {
	// Key-value
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Mutation audit log
	AppendMutation(ctx context.Context, m *Mutation) error
	ListMutations(ctx context.Context, limit int) ([]*Mutation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
