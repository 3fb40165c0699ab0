package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached Backlog data",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached issues and project metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := getEngine()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would clear cached issues and project metadata")
			return nil
		}

		e.ClearCache()
		ui.Success("Cache cleared. Next fetch will hit Backlog.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
