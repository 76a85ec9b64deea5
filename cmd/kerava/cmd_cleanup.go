package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kerava/handler"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove records not seen by collection in a while",
	Long: `Remove records from the local store whose last collection is older
than the staleness threshold. Only store records are removed; cloud
resources are never touched.`,
	Example: `  kerava cleanup
  kerava cleanup --days 30`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (default: config stale_days)")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.handler.Handle(cmd.Context(), handler.Request{
		Action: handler.ActionCleanup,
		Days:   cleanupDays,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	return nil
}
