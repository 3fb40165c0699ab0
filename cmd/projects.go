package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	projectsRefresh bool
	projectsJSON    bool
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List your Backlog projects with their metadata",
	Long: `List every Backlog project visible to you, with the statuses,
categories, issue types, and members needed to create or move issues.

One broken project degrades to its last known metadata instead of
failing the whole listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectsRun()
	},
}

func init() {
	projectsCmd.Flags().BoolVarP(&projectsRefresh, "refresh", "r", false, "Bypass the cache and refetch from Backlog")
	projectsCmd.Flags().BoolVar(&projectsJSON, "json", false, "Output raw JSON")
	rootCmd.AddCommand(projectsCmd)
}

func projectsRun() error {
	e, err := getEngine()
	if err != nil {
		return err
	}

	details, err := e.AllProjectDetails(context.Background(), projectsRefresh)
	if err != nil {
		return err
	}

	if projectsJSON {
		data, err := json.MarshalIndent(details, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal project details: %w", err)
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	if len(details) == 0 {
		ui.Info("No projects visible to you.")
		return nil
	}

	table := ui.Table([]string{"Key", "Name", "ID", "Issue Types", "Statuses", "Members"})
	for _, d := range details {
		names := make([]string, len(d.IssueTypes))
		for i, it := range d.IssueTypes {
			names[i] = it.Name
		}
		_ = table.Append([]string{
			d.ProjectKey,
			d.Name,
			strconv.Itoa(d.ProjectID),
			truncate(strings.Join(names, ", "), 40),
			strconv.Itoa(len(d.Statuses)),
			strconv.Itoa(len(d.Users)),
		})
	}
	_ = table.Render()
	return nil
}
