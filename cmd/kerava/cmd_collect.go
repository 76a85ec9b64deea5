package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kerava/handler"
)

const timeDisplayPrecision = time.Millisecond

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect inventory across all configured accounts",
	Long: `Collect resource inventory from every enabled account, region and
resource type in the configuration. Accounts are collected in parallel
with per-task retries; a failing account or region never stops the rest.`,
	Example: `  kerava collect
  kerava collect --config prod.yaml
  kerava collect --debug`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.handler.Handle(cmd.Context(), handler.Request{Action: handler.ActionCollect})
	if err != nil {
		return err
	}

	report := resp.Report
	fmt.Printf("Collection Summary:\n")
	fmt.Printf("   Tasks: %d total, %d succeeded, %d failed\n", report.TasksTotal, report.TasksSucceeded, report.TasksFailed)
	fmt.Printf("   Records written: %d\n", report.RecordsWritten)
	fmt.Printf("   Duration: %s\n", report.Duration().Round(timeDisplayPrecision))

	if len(report.Failures) > 0 {
		fmt.Printf("\nFailed tasks:\n")
		for _, failure := range report.Failures {
			fmt.Printf("   %s (%d attempts): %s\n", failure.Task, failure.Attempts, failure.Error)
		}
	}
	return nil
}
