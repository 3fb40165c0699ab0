package models

// ProjectStatus is a workflow status within a project.
type ProjectStatus struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
}

// Category is an issue category within a project.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// IssueType is an issue type within a project. Display order is used
// only while sorting and is not retained here.
type IssueType struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// User is a Backlog user.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProjectInfo is the minimal per-project metadata used for display.
type ProjectInfo struct {
	Name       string `json:"name"`
	ProjectKey string `json:"projectKey"`
}

// ProjectDetails bundles everything needed to render a project's
// issue-creation form.
type ProjectDetails struct {
	ProjectID     int             `json:"projectId"`
	Name          string          `json:"name"`
	ProjectKey    string          `json:"projectKey"`
	Statuses      []ProjectStatus `json:"statuses"`
	Categories    []Category      `json:"categories"`
	IssueTypes    []IssueType     `json:"issueTypes"`
	Users         []User          `json:"users"`
	CurrentUserID *int            `json:"currentUserId"`
}

// CreateIssueParams are the fields accepted when creating an issue.
type CreateIssueParams struct {
	ProjectID   int    `json:"projectId"`
	IssueTypeID int    `json:"issueTypeId"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	CategoryID  int    `json:"categoryId,omitempty"`
	AssigneeID  int    `json:"assigneeId,omitempty"`
	PriorityID  int    `json:"priorityId,omitempty"`
}

// CreatedIssue is the remote service's acknowledgement of a created issue.
type CreatedIssue struct {
	ID       int    `json:"id"`
	IssueKey string `json:"issueKey"`
	Summary  string `json:"summary"`
}
