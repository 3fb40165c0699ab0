package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/backlogdeck/bld/internal/engine"
	"github.com/backlogdeck/bld/internal/models"
)

// Server wraps the sync engine and exposes it as MCP tools. Running as
// a long-lived stdio server is where the engine's TTL caches pay off:
// repeated tool calls within ten minutes hit memory, not the network.
type Server struct {
	engine *engine.Engine
}

// NewServer creates the MCP server wrapper around the engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("bld", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.issuesTool())
	srv.AddTool(s.projectDetailsTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateStatusTool())
	srv.AddTool(s.updateDueDateTool())
	srv.AddTool(s.revisionTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// backlog_issues
func (s *Server) issuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_issues",
		mcp.WithDescription("Get the user's assigned Backlog issues partitioned into past/today/thisWeek/noDue buckets. Degraded results carry stale/errorCode fields instead of failing."),
		mcp.WithBoolean("force", mcp.Description("Bypass the cache and refetch from Backlog")),
	)
	return tool, s.handleIssues
}

func (s *Server) handleIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := request.GetBool("force", false)
	set := s.engine.Buckets(ctx, force)

	data, err := json.Marshal(set)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal buckets: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// backlog_project_details
func (s *Server) projectDetailsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_project_details",
		mcp.WithDescription("List every visible Backlog project with its statuses, categories, issue types, and members. Use before creating issues to find valid ids."),
		mcp.WithBoolean("force", mcp.Description("Bypass the cache and refetch from Backlog")),
	)
	return tool, s.handleProjectDetails
}

func (s *Server) handleProjectDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := request.GetBool("force", false)
	details, err := s.engine.AllProjectDetails(ctx, force)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve project details: %v", err)), nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal project details: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// backlog_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_create_issue",
		mcp.WithDescription("Create a new Backlog issue. Returns the created issue's id and key as JSON."),
		mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Numeric project id")),
		mcp.WithNumber("issue_type_id", mcp.Required(), mcp.Description("Numeric issue type id")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("One-line issue summary")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("due_date", mcp.Description("Due date, YYYY-MM-DD")),
		mcp.WithString("start_date", mcp.Description("Start date, YYYY-MM-DD")),
		mcp.WithNumber("category_id", mcp.Description("Category id")),
		mcp.WithNumber("assignee_id", mcp.Description("Assignee user id")),
		mcp.WithNumber("priority_id", mcp.Description("Priority id (defaults to normal)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := request.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: summary"), nil
	}

	params := models.CreateIssueParams{
		ProjectID:   request.GetInt("project_id", 0),
		IssueTypeID: request.GetInt("issue_type_id", 0),
		Summary:     summary,
		Description: request.GetString("description", ""),
		DueDate:     request.GetString("due_date", ""),
		StartDate:   request.GetString("start_date", ""),
		CategoryID:  request.GetInt("category_id", 0),
		AssigneeID:  request.GetInt("assignee_id", 0),
		PriorityID:  request.GetInt("priority_id", 0),
	}

	created, err := s.engine.CreateIssue(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}

	data, err := json.Marshal(created)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal created issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// backlog_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_update_status",
		mcp.WithDescription("Move a Backlog issue to a new status. Valid status ids come from backlog_issues or backlog_project_details."),
		mcp.WithNumber("issue_id", mcp.Required(), mcp.Description("Numeric issue id")),
		mcp.WithNumber("status_id", mcp.Required(), mcp.Description("Numeric status id")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID := request.GetInt("issue_id", 0)
	statusID := request.GetInt("status_id", 0)

	if err := s.engine.UpdateIssueStatus(ctx, issueID, statusID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update status: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"issueId":%d,"statusId":%d,"updated":true}`, issueID, statusID)), nil
}

// backlog_update_due_date
func (s *Server) updateDueDateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_update_due_date",
		mcp.WithDescription("Set a Backlog issue's due date."),
		mcp.WithNumber("issue_id", mcp.Required(), mcp.Description("Numeric issue id")),
		mcp.WithString("due_date", mcp.Required(), mcp.Description("Due date, YYYY-MM-DD")),
	)
	return tool, s.handleUpdateDueDate
}

func (s *Server) handleUpdateDueDate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID := request.GetInt("issue_id", 0)
	dueDate, err := request.RequireString("due_date")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: due_date"), nil
	}

	if err := s.engine.UpdateIssueDueDate(ctx, issueID, dueDate); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update due date: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"issueId":%d,"dueDate":%q,"updated":true}`, issueID, dueDate)), nil
}

// backlog_revision
func (s *Server) revisionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("backlog_revision",
		mcp.WithDescription("Get the revision token bumped by every successful mutation. Poll it to detect that cached issue views may be outdated."),
	)
	return tool, s.handleRevision
}

func (s *Server) handleRevision(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	revision, err := s.engine.Revision(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read revision: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"revision":%d}`, revision)), nil
}
