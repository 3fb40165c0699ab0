package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/backlogdeck/bld/internal/engine"
	"github.com/backlogdeck/bld/internal/models"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create or update Backlog issues",
}

var (
	createProject     string
	createType        string
	createSummary     string
	createDescription string
	createDue         string
	createStart       string
	createCategory    int
	createAssignee    int
	createPriority    int
	createFromFile    string
)

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new issue",
	Long: `Create a new Backlog issue.

Projects and issue types may be given by key/name or numeric id.
With --from-file, issue drafts are extracted from a notes file using an
LLM and created after a preview (requires ANTHROPIC_API_KEY or
anthropic.api_key in config).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if createFromFile != "" {
			return issueCreateFromFileRun(createFromFile)
		}
		return issueCreateRun()
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status-id>",
	Short: "Move an issue to a new status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue id %q", args[0])
		}
		statusID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid status id %q", args[1])
		}
		return issueStatusRun(issueID, statusID)
	},
}

var issueDueCmd = &cobra.Command{
	Use:   "due <issue-id> <date>",
	Short: "Set an issue's due date (YYYY-MM-DD)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue id %q", args[0])
		}
		return issueDueRun(issueID, args[1])
	},
}

func init() {
	issueCreateCmd.Flags().StringVarP(&createProject, "project", "p", "", "Project key or id")
	issueCreateCmd.Flags().StringVarP(&createType, "type", "t", "", "Issue type name or id")
	issueCreateCmd.Flags().StringVarP(&createSummary, "summary", "s", "", "Issue summary")
	issueCreateCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Issue description")
	issueCreateCmd.Flags().StringVar(&createDue, "due", "", "Due date (YYYY-MM-DD)")
	issueCreateCmd.Flags().StringVar(&createStart, "start", "", "Start date (YYYY-MM-DD)")
	issueCreateCmd.Flags().IntVar(&createCategory, "category", 0, "Category id")
	issueCreateCmd.Flags().IntVar(&createAssignee, "assignee", 0, "Assignee user id (defaults to unassigned)")
	issueCreateCmd.Flags().IntVar(&createPriority, "priority", 0, "Priority id (defaults to normal)")
	issueCreateCmd.Flags().StringVar(&createFromFile, "from-file", "", "Draft issues from a notes file using an LLM")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueDueCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueCreateRun() error {
	if createProject == "" {
		return fmt.Errorf("--project is required")
	}
	if createType == "" {
		return fmt.Errorf("--type is required")
	}
	if strings.TrimSpace(createSummary) == "" {
		return fmt.Errorf("--summary is required")
	}

	e, err := getEngine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	project, err := resolveProject(ctx, e, createProject)
	if err != nil {
		return err
	}
	issueTypeID, err := resolveIssueType(project, createType)
	if err != nil {
		return err
	}

	params := models.CreateIssueParams{
		ProjectID:   project.ProjectID,
		IssueTypeID: issueTypeID,
		Summary:     createSummary,
		Description: createDescription,
		DueDate:     createDue,
		StartDate:   createStart,
		CategoryID:  createCategory,
		AssigneeID:  createAssignee,
		PriorityID:  createPriority,
	}

	if dryRun {
		ui.DryRunMsg("Would create issue %q in %s", params.Summary, project.ProjectKey)
		return nil
	}

	created, err := e.CreateIssue(ctx, params)
	if err != nil {
		return err
	}

	ui.Success("Created %s: %s", created.IssueKey, created.Summary)
	return nil
}

func issueStatusRun(issueID, statusID int) error {
	e, err := getEngine()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move issue %d to status %d", issueID, statusID)
		return nil
	}

	if err := e.UpdateIssueStatus(context.Background(), issueID, statusID); err != nil {
		return err
	}
	ui.Success("Issue %d moved to status %d", issueID, statusID)
	return nil
}

func issueDueRun(issueID int, dueDate string) error {
	e, err := getEngine()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set issue %d due date to %s", issueID, dueDate)
		return nil
	}

	if err := e.UpdateIssueDueDate(context.Background(), issueID, dueDate); err != nil {
		return err
	}
	ui.Success("Issue %d due %s", issueID, dueDate)
	return nil
}

// resolveProject matches a project key or numeric id against the
// project details listing.
func resolveProject(ctx context.Context, e *engine.Engine, arg string) (*models.ProjectDetails, error) {
	details, err := e.AllProjectDetails(ctx, false)
	if err != nil {
		return nil, err
	}

	for i := range details {
		d := &details[i]
		if strings.EqualFold(d.ProjectKey, arg) || strconv.Itoa(d.ProjectID) == arg {
			return d, nil
		}
	}
	return nil, fmt.Errorf("project %q not found (see 'bld projects')", arg)
}

// resolveIssueType matches an issue type name or numeric id within a
// project.
func resolveIssueType(project *models.ProjectDetails, arg string) (int, error) {
	for _, it := range project.IssueTypes {
		if strings.EqualFold(it.Name, arg) || strconv.Itoa(it.ID) == arg {
			return it.ID, nil
		}
	}
	return 0, fmt.Errorf("issue type %q not found in project %s", arg, project.ProjectKey)
}
