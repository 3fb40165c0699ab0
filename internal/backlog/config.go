package backlog

import (
	"fmt"
	"strconv"
)

// Fetch limits for the assigned-issue listing.
const (
	DefaultFetchLimit = 1000
	MinFetchLimit     = 50
	MaxFetchLimit     = 1000
)

// AuthConfig identifies a Backlog space and how to authenticate against
// it. It is immutable for the duration of one fetch cycle.
type AuthConfig struct {
	SpaceDomain      string
	APIKey           string
	Host             string // "backlog.com" or "backlog.jp"
	IssueFetchLimit  int
	ExcludedProjects map[string]struct{}
}

// BaseURL returns the space's web origin, e.g. https://acme.backlog.com.
func (c *AuthConfig) BaseURL() string {
	return fmt.Sprintf("https://%s.%s", c.SpaceDomain, c.Host)
}

// FetchLimit returns the configured issue fetch limit clamped to
// [MinFetchLimit, MaxFetchLimit], defaulting when unset.
func (c *AuthConfig) FetchLimit() int {
	limit := c.IssueFetchLimit
	if limit == 0 {
		limit = DefaultFetchLimit
	}
	if limit < MinFetchLimit {
		limit = MinFetchLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}
	return limit
}

// Excluded reports whether a project is excluded from the bucket view.
// Config entries may name the project key or the numeric id.
func (c *AuthConfig) Excluded(projectKey string, projectID int) bool {
	if len(c.ExcludedProjects) == 0 {
		return false
	}
	if projectKey != "" {
		if _, ok := c.ExcludedProjects[projectKey]; ok {
			return true
		}
	}
	_, ok := c.ExcludedProjects[strconv.Itoa(projectID)]
	return ok
}
