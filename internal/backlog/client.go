package backlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/backlogdeck/bld/internal/models"
)

// MaxPageSize is the remote service's hard cap on one issue page.
const MaxPageSize = 100

// dueDateComment is attached to due-date updates as an audit trail.
const dueDateComment = "期限日を更新しました"

// RawIssue is an issue as returned by the issue listing endpoint,
// before normalization and bucketing.
type RawIssue struct {
	ID          int       `json:"id"`
	ProjectID   int       `json:"projectId"`
	IssueKey    string    `json:"issueKey"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	DueDate     string    `json:"dueDate"`
	Created     time.Time `json:"created"`
	Status      *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"status"`
	Project struct {
		ID         int    `json:"id"`
		ProjectKey string `json:"projectKey"`
		Name       string `json:"name"`
	} `json:"project"`
	Category []models.Category `json:"category"`
	Assignee *models.User      `json:"assignee"`
}

// RawProject is a project list entry.
type RawProject struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ProjectKey string `json:"projectKey"`
}

// RawIssueType is an issue type with its display order still attached.
type RawIssueType struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	DisplayOrder int    `json:"displayOrder"`
}

// RawStatus is a project status as returned by the statuses endpoint.
type RawStatus struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
}

// Client performs authenticated calls against a Backlog space.
// The API key travels as a query parameter on every request.
type Client struct {
	cfg        *AuthConfig
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client for the given space.
func NewClient(cfg *AuthConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL(),
	}
}

// BaseURL returns the space's web origin.
func (c *Client) BaseURL() string { return c.baseURL }

// IssueURL returns the browser URL for an issue key.
func (c *Client) IssueURL(issueKey string) string {
	return c.baseURL + "/view/" + issueKey
}

// Myself returns the authenticated user.
func (c *Client) Myself(ctx context.Context) (models.User, error) {
	var user models.User
	if err := c.getJSON(ctx, "/api/v2/users/myself", nil, &user); err != nil {
		return models.User{}, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}

// AssignedIssues fetches one page of issues assigned to the given user,
// sorted by due date descending. Offset is only sent when non-zero.
func (c *Client) AssignedIssues(ctx context.Context, assigneeID, offset, count int) ([]RawIssue, error) {
	if count < 1 {
		count = 1
	}
	if count > MaxPageSize {
		count = MaxPageSize
	}
	params := url.Values{}
	params.Add("assigneeId[]", strconv.Itoa(assigneeID))
	params.Set("sort", "dueDate")
	params.Set("order", "desc")
	params.Set("count", strconv.Itoa(count))
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var issues []RawIssue
	if err := c.getJSON(ctx, "/api/v2/issues", params, &issues); err != nil {
		return nil, fmt.Errorf("list assigned issues: %w", err)
	}
	return issues, nil
}

// Projects lists all projects visible to the user.
func (c *Client) Projects(ctx context.Context) ([]RawProject, error) {
	var projects []RawProject
	if err := c.getJSON(ctx, "/api/v2/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ProjectStatuses lists a project's workflow statuses.
func (c *Client) ProjectStatuses(ctx context.Context, projectID int) ([]RawStatus, error) {
	var statuses []RawStatus
	path := fmt.Sprintf("/api/v2/projects/%d/statuses", projectID)
	if err := c.getJSON(ctx, path, nil, &statuses); err != nil {
		return nil, fmt.Errorf("list statuses for project %d: %w", projectID, err)
	}
	return statuses, nil
}

// ProjectCategories lists a project's categories.
func (c *Client) ProjectCategories(ctx context.Context, projectID int) ([]models.Category, error) {
	var categories []models.Category
	path := fmt.Sprintf("/api/v2/projects/%d/categories", projectID)
	if err := c.getJSON(ctx, path, nil, &categories); err != nil {
		return nil, fmt.Errorf("list categories for project %d: %w", projectID, err)
	}
	return categories, nil
}

// ProjectIssueTypes lists a project's issue types.
func (c *Client) ProjectIssueTypes(ctx context.Context, projectID int) ([]RawIssueType, error) {
	var issueTypes []RawIssueType
	path := fmt.Sprintf("/api/v2/projects/%d/issueTypes", projectID)
	if err := c.getJSON(ctx, path, nil, &issueTypes); err != nil {
		return nil, fmt.Errorf("list issue types for project %d: %w", projectID, err)
	}
	return issueTypes, nil
}

// ProjectUsers lists a project's members.
func (c *Client) ProjectUsers(ctx context.Context, projectID int) ([]models.User, error) {
	var users []models.User
	path := fmt.Sprintf("/api/v2/projects/%d/users", projectID)
	if err := c.getJSON(ctx, path, nil, &users); err != nil {
		return nil, fmt.Errorf("list users for project %d: %w", projectID, err)
	}
	return users, nil
}

// ProjectInfo fetches a project's name and key.
func (c *Client) ProjectInfo(ctx context.Context, projectID int) (models.ProjectInfo, error) {
	var raw RawProject
	path := fmt.Sprintf("/api/v2/projects/%d", projectID)
	if err := c.getJSON(ctx, path, nil, &raw); err != nil {
		return models.ProjectInfo{}, fmt.Errorf("get project %d: %w", projectID, err)
	}
	return models.ProjectInfo{Name: raw.Name, ProjectKey: raw.ProjectKey}, nil
}

// CreateIssue creates an issue via a form-encoded POST. Field validation
// and the priority default are the caller's responsibility.
func (c *Client) CreateIssue(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error) {
	form := url.Values{}
	form.Set("projectId", strconv.Itoa(params.ProjectID))
	form.Set("issueTypeId", strconv.Itoa(params.IssueTypeID))
	form.Set("summary", strings.TrimSpace(params.Summary))
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	if params.StartDate != "" {
		form.Set("startDate", params.StartDate)
	}
	if params.DueDate != "" {
		form.Set("dueDate", params.DueDate)
	}
	form.Set("priorityId", strconv.Itoa(params.PriorityID))
	if params.CategoryID > 0 {
		form.Add("categoryId[]", strconv.Itoa(params.CategoryID))
	}
	if params.AssigneeID > 0 {
		form.Set("assigneeId", strconv.Itoa(params.AssigneeID))
	}

	var created models.CreatedIssue
	if err := c.sendForm(ctx, http.MethodPost, "/api/v2/issues", form, &created); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return &created, nil
}

// UpdateIssueStatus moves an issue to the given status.
func (c *Client) UpdateIssueStatus(ctx context.Context, issueID, statusID int) error {
	form := url.Values{}
	form.Set("statusId", strconv.Itoa(statusID))
	path := fmt.Sprintf("/api/v2/issues/%d", issueID)
	return c.sendForm(ctx, http.MethodPatch, path, form, nil)
}

// UpdateIssueDueDate sets an issue's due date, optionally moving the
// start date with it, with an audit comment.
func (c *Client) UpdateIssueDueDate(ctx context.Context, issueID int, dueDate, startDate string) error {
	form := url.Values{}
	form.Set("dueDate", dueDate)
	if startDate != "" {
		form.Set("startDate", startDate)
	}
	form.Set("comment", dueDateComment)
	path := fmt.Sprintf("/api/v2/issues/%d", issueID)
	return c.sendForm(ctx, http.MethodPatch, path, form, nil)
}

// buildURL assembles an authenticated request URL.
func (c *Client) buildURL(path string, params url.Values) string {
	query := url.Values{}
	query.Set("apiKey", c.cfg.APIKey)
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, params), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(resp)
	}
	return decodeJSON(resp.Body, out)
}

func (c *Client) sendForm(ctx context.Context, method, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(resp)
	}
	if out == nil {
		return nil
	}
	return decodeJSON(resp.Body, out)
}

// responseError converts a non-2xx response into a classified error.
// The body is kept verbatim: mutation callers match on it.
func (c *Client) responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	code := models.ErrorNetworkError
	if resp.StatusCode == http.StatusUnauthorized {
		code = models.ErrorRequestDenied
	}
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = fmt.Sprintf("backlog API error %d", resp.StatusCode)
	} else {
		message = fmt.Sprintf("backlog API error %d: %s", resp.StatusCode, message)
	}
	return &Error{Code: code, Message: message, Status: resp.StatusCode}
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
