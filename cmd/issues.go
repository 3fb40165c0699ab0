package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backlogdeck/bld/internal/models"
	"github.com/backlogdeck/bld/internal/output"
)

var (
	issuesRefresh bool
	issuesJSON    bool
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Show your assigned issues bucketed by due date",
	Long: `Show your assigned Backlog issues partitioned into buckets:

  past       overdue issues
  today      due today
  thisWeek   due later this week (through Sunday)
  noDue      no due date set

Results are cached for ten minutes; use --refresh to refetch now.
When Backlog is unreachable the last known view is shown, marked stale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issuesRun(issuesRefresh, issuesJSON)
	},
}

func init() {
	issuesCmd.Flags().BoolVarP(&issuesRefresh, "refresh", "r", false, "Bypass the cache and refetch from Backlog")
	issuesCmd.Flags().BoolVar(&issuesJSON, "json", false, "Output raw JSON")
	rootCmd.AddCommand(issuesCmd)
}

func issuesRun(refresh, asJSON bool) error {
	e, err := getEngine()
	if err != nil {
		return err
	}

	set := e.Buckets(context.Background(), refresh)

	if asJSON {
		data, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal buckets: %w", err)
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	if set.ErrorCode == models.ErrorMissingConfig {
		ui.Error("%s", set.ErrorMessage)
		return nil
	}
	if set.Stale {
		ui.Warning("Showing stale data from %s (%s: %s)",
			set.FetchedAt.Format("15:04"), set.ErrorCode, set.ErrorMessage)
	} else if set.ErrorCode != "" {
		ui.Error("Fetch failed (%s): %s", set.ErrorCode, set.ErrorMessage)
	}

	if set.Total() == 0 && set.ErrorCode == "" {
		ui.Info("No open issues assigned to you this week.")
		return nil
	}

	renderBucket("past", set.Past)
	renderBucket("today", set.Today)
	renderBucket("thisWeek", set.ThisWeek)
	renderBucket("noDue", set.NoDue)
	return nil
}

func renderBucket(name string, issues []models.Issue) {
	if len(issues) == 0 {
		return
	}

	fmt.Fprintf(ui.Out, "\n%s (%d)\n", output.BucketColor(name), len(issues))
	table := ui.Table([]string{"Key", "Summary", "Project", "Status", "Due"})
	for _, issue := range issues {
		due := ""
		if issue.DueDate != nil {
			due = *issue.DueDate
		}
		_ = table.Append([]string{
			output.Cyan(issue.IssueKey),
			truncate(issue.Summary, 60),
			issue.ProjectName,
			issue.Status,
			due,
		})
	}
	_ = table.Render()
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
