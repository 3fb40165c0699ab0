package cmd

import (
	"github.com/spf13/cobra"

	"github.com/backlogdeck/bld/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to query your Backlog issues natively.
Configure in Claude Code with:

  {
    "mcpServers": {
      "bld": { "command": "bld", "args": ["mcp"] }
    }
  }

Available tools: backlog_issues, backlog_project_details,
backlog_create_issue, backlog_update_status, backlog_update_due_date,
backlog_revision`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := getEngine()
		if err != nil {
			return err
		}
		return mcp.NewServer(e).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
