// Package engine keeps a local, queryable view of the user's assigned
// Backlog issues fresh and mediates writes back to the remote service.
package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/backlogdeck/bld/internal/backlog"
	"github.com/backlogdeck/bld/internal/cache"
	"github.com/backlogdeck/bld/internal/models"
	"github.com/backlogdeck/bld/internal/store"
)

// bucketKey is the singleton cache key for the bucket set.
const bucketKey = "buckets"

// Client is the remote surface the engine depends on. *backlog.Client
// implements it; tests inject fakes.
type Client interface {
	BaseURL() string
	Myself(ctx context.Context) (models.User, error)
	AssignedIssues(ctx context.Context, assigneeID, offset, count int) ([]backlog.RawIssue, error)
	Projects(ctx context.Context) ([]backlog.RawProject, error)
	ProjectStatuses(ctx context.Context, projectID int) ([]backlog.RawStatus, error)
	ProjectCategories(ctx context.Context, projectID int) ([]models.Category, error)
	ProjectIssueTypes(ctx context.Context, projectID int) ([]backlog.RawIssueType, error)
	ProjectUsers(ctx context.Context, projectID int) ([]models.User, error)
	ProjectInfo(ctx context.Context, projectID int) (models.ProjectInfo, error)
	CreateIssue(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error)
	UpdateIssueStatus(ctx context.Context, issueID, statusID int) error
	UpdateIssueDueDate(ctx context.Context, issueID int, dueDate, startDate string) error
}

// ConfigProvider supplies the auth config, or reports that none is set.
type ConfigProvider interface {
	AuthConfig(ctx context.Context) (*backlog.AuthConfig, bool)
}

// PermissionChecker gates remote access to an origin before any request
// is issued. A nil checker allows everything.
type PermissionChecker interface {
	Check(ctx context.Context, origin string) error
}

// Engine coordinates caching, fetching, bucketizing, and mutations.
// All caches are process-local; only the revision token and the
// mutation log persist.
type Engine struct {
	config    ConfigProvider
	perms     PermissionChecker
	st        store.Store
	newClient func(cfg *backlog.AuthConfig) Client
	now       func() time.Time

	buckets *cache.Store[string, *models.BucketSet]
	meta    *metadata
	flight  singleflight.Group

	userMu sync.Mutex
	user   *models.User
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClientFactory replaces how remote clients are built. Tests use
// this to inject fakes.
func WithClientFactory(factory func(cfg *backlog.AuthConfig) Client) Option {
	return func(e *Engine) { e.newClient = factory }
}

// WithClock replaces the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.buckets = cache.NewWithClock[string, *models.BucketSet](now)
		e.meta = newMetadata(now)
	}
}

// WithPermissionChecker installs an origin gate.
func WithPermissionChecker(pc PermissionChecker) Option {
	return func(e *Engine) { e.perms = pc }
}

// New builds an engine. The store may be nil; mutations then skip the
// revision bump and audit log.
func New(config ConfigProvider, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		config:    config,
		st:        st,
		newClient: func(cfg *backlog.AuthConfig) Client { return backlog.NewClient(cfg) },
		now:       time.Now,
		buckets:   cache.New[string, *models.BucketSet](),
		meta:      newMetadata(time.Now),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Buckets returns the bucket set, from cache when fresh unless force
// is set. It never returns an error: failures degrade to the last good
// set marked stale, or an empty set carrying the classified code.
// Concurrent callers share one in-flight refresh.
func (e *Engine) Buckets(ctx context.Context, force bool) *models.BucketSet {
	if !force {
		if set, ok := e.buckets.Fresh(bucketKey); ok {
			return set
		}
	}
	v, _, _ := e.flight.Do(bucketKey, func() (any, error) {
		return e.refreshBuckets(ctx), nil
	})
	return v.(*models.BucketSet)
}

func (e *Engine) refreshBuckets(ctx context.Context) *models.BucketSet {
	set, err := e.fetchBuckets(ctx)
	if err == nil {
		e.buckets.Put(bucketKey, set)
		return set
	}

	code := backlog.Classify(err)
	if code == models.ErrorMissingConfig {
		// Nothing meaningful can be cached without config.
		return e.emptyBuckets(code, err.Error(), nil)
	}
	if last, fetchedAt, ok := e.buckets.Last(bucketKey); ok {
		degraded := *last
		degraded.FetchedAt = fetchedAt
		degraded.Stale = true
		degraded.ErrorCode = code
		degraded.ErrorMessage = err.Error()
		return &degraded
	}
	return e.emptyBuckets(code, err.Error(), nil)
}

func (e *Engine) fetchBuckets(ctx context.Context) (*models.BucketSet, error) {
	cfg, client, err := e.session(ctx)
	if err != nil {
		return nil, err
	}

	user, err := e.currentUser(ctx, client)
	if err != nil {
		return nil, err
	}

	raw, err := e.fetchAssignedIssues(ctx, client, user.ID, cfg.FetchLimit())
	if err != nil {
		return nil, err
	}

	projectIDs := collectProjectIDs(raw, cfg)

	// Statuses and project info per project: the two sub-fetches for one
	// project run concurrently, projects themselves go one at a time to
	// bound the request burst. Each resolver call degrades internally.
	statusBundles := make([]models.ProjectStatuses, 0, len(projectIDs))
	infoMap := make(map[int]models.ProjectInfo, len(projectIDs))
	for _, projectID := range projectIDs {
		var (
			statuses []models.ProjectStatus
			info     models.ProjectInfo
			wg       sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			statuses = e.meta.projectStatuses(ctx, client, projectID, false)
		}()
		go func() {
			defer wg.Done()
			info = e.meta.projectInfo(ctx, client, projectID, false)
		}()
		wg.Wait()
		statusBundles = append(statusBundles, models.ProjectStatuses{ProjectID: projectID, Statuses: statuses})
		infoMap[projectID] = info
	}

	b := Bucketize(raw, cfg, client.BaseURL(), infoMap, e.now())
	return &models.BucketSet{
		Past:      b.Past,
		Today:     b.Today,
		ThisWeek:  b.ThisWeek,
		NoDue:     b.NoDue,
		Statuses:  statusBundles,
		FetchedAt: e.now(),
	}, nil
}

// fetchAssignedIssues pages through the issue listing until limit
// issues are collected or a short page signals the end of data.
func (e *Engine) fetchAssignedIssues(ctx context.Context, client Client, userID, limit int) ([]backlog.RawIssue, error) {
	var issues []backlog.RawIssue
	offset := 0
	for len(issues) < limit {
		pageSize := limit - len(issues)
		if pageSize > backlog.MaxPageSize {
			pageSize = backlog.MaxPageSize
		}
		page, err := client.AssignedIssues(ctx, userID, offset, pageSize)
		if err != nil {
			return nil, err
		}
		issues = append(issues, page...)
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}
	return issues, nil
}

// session resolves config, builds a client, and checks host permission.
func (e *Engine) session(ctx context.Context) (*backlog.AuthConfig, Client, error) {
	cfg, ok := e.config.AuthConfig(ctx)
	if !ok {
		return nil, nil, backlog.NewError(models.ErrorMissingConfig,
			"backlog API key is not configured; run 'bld config init' and set space_domain and api_key")
	}
	client := e.newClient(cfg)
	if e.perms != nil {
		if err := e.perms.Check(ctx, cfg.BaseURL()+"/"); err != nil {
			return nil, nil, backlog.NewError(models.ErrorPermissionDenied, err.Error())
		}
	}
	return cfg, client, nil
}

// currentUser resolves the authenticated user once per cache lifetime.
func (e *Engine) currentUser(ctx context.Context, client Client) (models.User, error) {
	e.userMu.Lock()
	defer e.userMu.Unlock()
	if e.user != nil {
		return *e.user, nil
	}
	user, err := client.Myself(ctx)
	if err != nil {
		return models.User{}, err
	}
	e.user = &user
	return user, nil
}

// emptyBuckets builds a degraded, empty result that still carries
// whatever project statuses were cached earlier.
func (e *Engine) emptyBuckets(code models.ErrorCode, message string, projectIDs []int) *models.BucketSet {
	return &models.BucketSet{
		Past:         []models.Issue{},
		Today:        []models.Issue{},
		ThisWeek:     []models.Issue{},
		NoDue:        []models.Issue{},
		Statuses:     e.meta.cachedStatuses(projectIDs),
		FetchedAt:    e.now(),
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// ClearCache drops every cache, including the current-user memo.
// Callers invoke it whenever the auth config changes.
func (e *Engine) ClearCache() {
	e.buckets.Clear()
	e.meta.clear()
	e.userMu.Lock()
	e.user = nil
	e.userMu.Unlock()
}

// Revision returns the persisted revision token (unix milliseconds of
// the last successful mutation), or 0 when none exists.
func (e *Engine) Revision(ctx context.Context) (int64, error) {
	if e.st == nil {
		return 0, nil
	}
	value, ok, err := e.st.Get(ctx, store.RevisionKey)
	if err != nil || !ok {
		return 0, err
	}
	rev, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return rev, nil
}

// collectProjectIDs returns the distinct, non-excluded project ids of
// the raw issues, in first-seen order.
func collectProjectIDs(raw []backlog.RawIssue, cfg *backlog.AuthConfig) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, issue := range raw {
		id := issue.ProjectID
		if id <= 0 {
			id = issue.Project.ID
		}
		if id <= 0 || seen[id] || cfg.Excluded(issue.Project.ProjectKey, id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
