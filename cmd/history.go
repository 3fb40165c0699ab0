package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent issue mutations",
	Long: `Show the local log of issue mutations made through bld:
status moves, due-date edits, and created issues, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyRun()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func historyRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	muts, err := s.ListMutations(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("list mutations: %w", err)
	}

	if len(muts) == 0 {
		ui.Info("No mutations recorded yet.")
		return nil
	}

	table := ui.Table([]string{"When", "Kind", "Issue", "Detail"})
	for _, m := range muts {
		issue := m.IssueKey
		if issue == "" && m.IssueID != 0 {
			issue = strconv.Itoa(m.IssueID)
		}
		_ = table.Append([]string{
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			m.Kind,
			issue,
			truncate(m.Detail, 50),
		})
	}
	_ = table.Render()
	return nil
}
