package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backlogdeck/bld/internal/cache"
	"github.com/backlogdeck/bld/internal/models"
)

// metadata holds the five independent per-project caches. Every fetch
// failure degrades to the last cached value for that key, or the kind's
// empty/placeholder default — one broken project never blanks the rest.
type metadata struct {
	statuses   *cache.Store[int, []models.ProjectStatus]
	categories *cache.Store[int, []models.Category]
	issueTypes *cache.Store[int, []models.IssueType]
	users      *cache.Store[int, []models.User]
	info       *cache.Store[int, models.ProjectInfo]
}

func newMetadata(now func() time.Time) *metadata {
	return &metadata{
		statuses:   cache.NewWithClock[int, []models.ProjectStatus](now),
		categories: cache.NewWithClock[int, []models.Category](now),
		issueTypes: cache.NewWithClock[int, []models.IssueType](now),
		users:      cache.NewWithClock[int, []models.User](now),
		info:       cache.NewWithClock[int, models.ProjectInfo](now),
	}
}

func (m *metadata) clear() {
	m.statuses.Clear()
	m.categories.Clear()
	m.issueTypes.Clear()
	m.users.Clear()
	m.info.Clear()
}

// projectStatuses returns a project's statuses sorted by display order.
func (m *metadata) projectStatuses(ctx context.Context, client Client, projectID int, force bool) []models.ProjectStatus {
	v, err := m.statuses.GetOrFetch(ctx, projectID, force, func(ctx context.Context) ([]models.ProjectStatus, error) {
		raw, err := client.ProjectStatuses(ctx, projectID)
		if err != nil {
			return nil, err
		}
		statuses := make([]models.ProjectStatus, len(raw))
		for i, st := range raw {
			statuses[i] = models.ProjectStatus{ID: st.ID, Name: st.Name, DisplayOrder: st.DisplayOrder}
		}
		sort.SliceStable(statuses, func(i, j int) bool {
			return statuses[i].DisplayOrder < statuses[j].DisplayOrder
		})
		return statuses, nil
	})
	if err != nil {
		if last, _, ok := m.statuses.Last(projectID); ok {
			return last
		}
		return []models.ProjectStatus{}
	}
	return v
}

// projectCategories returns a project's categories in remote order.
func (m *metadata) projectCategories(ctx context.Context, client Client, projectID int, force bool) []models.Category {
	v, err := m.categories.GetOrFetch(ctx, projectID, force, func(ctx context.Context) ([]models.Category, error) {
		return client.ProjectCategories(ctx, projectID)
	})
	if err != nil {
		if last, _, ok := m.categories.Last(projectID); ok {
			return last
		}
		return []models.Category{}
	}
	return v
}

// projectIssueTypes returns a project's issue types sorted by display
// order then name; the display order itself is not retained.
func (m *metadata) projectIssueTypes(ctx context.Context, client Client, projectID int, force bool) []models.IssueType {
	v, err := m.issueTypes.GetOrFetch(ctx, projectID, force, func(ctx context.Context) ([]models.IssueType, error) {
		raw, err := client.ProjectIssueTypes(ctx, projectID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(raw, func(i, j int) bool {
			if raw[i].DisplayOrder != raw[j].DisplayOrder {
				return raw[i].DisplayOrder < raw[j].DisplayOrder
			}
			return raw[i].Name < raw[j].Name
		})
		issueTypes := make([]models.IssueType, len(raw))
		for i, it := range raw {
			issueTypes[i] = models.IssueType{ID: it.ID, Name: it.Name, Color: it.Color}
		}
		return issueTypes, nil
	})
	if err != nil {
		if last, _, ok := m.issueTypes.Last(projectID); ok {
			return last
		}
		return []models.IssueType{}
	}
	return v
}

// projectUsers returns a project's members sorted by id.
func (m *metadata) projectUsers(ctx context.Context, client Client, projectID int, force bool) []models.User {
	v, err := m.users.GetOrFetch(ctx, projectID, force, func(ctx context.Context) ([]models.User, error) {
		users, err := client.ProjectUsers(ctx, projectID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(users, func(i, j int) bool { return users[i].ID < users[j].ID })
		return users, nil
	})
	if err != nil {
		if last, _, ok := m.users.Last(projectID); ok {
			return last
		}
		return []models.User{}
	}
	return v
}

// projectInfo returns a project's name/key, synthesizing a placeholder
// when nothing was ever cached and the fetch fails.
func (m *metadata) projectInfo(ctx context.Context, client Client, projectID int, force bool) models.ProjectInfo {
	v, err := m.info.GetOrFetch(ctx, projectID, force, func(ctx context.Context) (models.ProjectInfo, error) {
		return client.ProjectInfo(ctx, projectID)
	})
	if err != nil {
		if last, _, ok := m.info.Last(projectID); ok {
			return last
		}
		return models.ProjectInfo{
			Name:       fmt.Sprintf("Project %d", projectID),
			ProjectKey: fmt.Sprintf("%d", projectID),
		}
	}
	return v
}

// cachedStatuses assembles status bundles from cache only, without any
// network traffic. With no ids given, every cached project is included.
func (m *metadata) cachedStatuses(projectIDs []int) []models.ProjectStatuses {
	ids := projectIDs
	if len(ids) == 0 {
		ids = m.statuses.Keys()
		sort.Ints(ids)
	}
	bundles := make([]models.ProjectStatuses, 0, len(ids))
	for _, id := range ids {
		if statuses, _, ok := m.statuses.Last(id); ok {
			bundles = append(bundles, models.ProjectStatuses{ProjectID: id, Statuses: statuses})
		}
	}
	return bundles
}

// ProjectStatuses returns the (possibly cached) statuses for one project.
func (e *Engine) ProjectStatuses(ctx context.Context, projectID int) (*models.ProjectStatuses, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("invalid project id: %d", projectID)
	}
	_, client, err := e.session(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ProjectStatuses{
		ProjectID: projectID,
		Statuses:  e.meta.projectStatuses(ctx, client, projectID, false),
	}, nil
}

// AllProjectDetails resolves every visible project's metadata bundle.
// The four sub-fetches for one project fan out concurrently; projects
// are walked sequentially to bound the request burst. The current user
// is resolved once and attached to each bundle; its failure degrades
// to a nil CurrentUserID rather than failing the call.
func (e *Engine) AllProjectDetails(ctx context.Context, force bool) ([]models.ProjectDetails, error) {
	_, client, err := e.session(ctx)
	if err != nil {
		return nil, err
	}

	var currentUserID *int
	if user, err := e.currentUser(ctx, client); err == nil {
		id := user.ID
		currentUserID = &id
	}

	projects, err := client.Projects(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]models.ProjectDetails, 0, len(projects))
	for _, project := range projects {
		d := models.ProjectDetails{
			ProjectID:     project.ID,
			Name:          project.Name,
			ProjectKey:    project.ProjectKey,
			CurrentUserID: currentUserID,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { d.Statuses = e.meta.projectStatuses(gctx, client, project.ID, force); return nil })
		g.Go(func() error { d.Categories = e.meta.projectCategories(gctx, client, project.ID, force); return nil })
		g.Go(func() error { d.IssueTypes = e.meta.projectIssueTypes(gctx, client, project.ID, force); return nil })
		g.Go(func() error { d.Users = e.meta.projectUsers(gctx, client, project.ID, force); return nil })
		_ = g.Wait()

		details = append(details, d)
	}
	return details, nil
}
