package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kerava/query"
	"github.com/yairfalse/kerava/types"
)

var (
	reportDays   int
	reportTop    int
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report [summary|cost|stale|idle|security]",
	Short: "Run an inventory report",
	Long: `Run one of the inventory reports against the local store:

  summary   resource counts and spend by type, department and region
  cost      monthly spend breakdown with a yearly projection
  stale     resources not seen by collection within --days
  idle      stopped instances, unused functions, empty buckets
  security  publicly accessible and unencrypted resources`,
	Example: `  kerava report summary
  kerava report cost --top 20
  kerava report stale --days 30
  kerava report security --format json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"summary", "cost", "stale", "idle", "security"},
	RunE:      runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntVar(&reportDays, "days", 0, "Staleness threshold in days (default: config stale_days)")
	reportCmd.Flags().IntVar(&reportTop, "top", 10, "Number of top resources in the cost report")
	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "Output format (table, json, csv)")
}

func runReport(cmd *cobra.Command, args []string) error {
	format, err := query.ParseFormat(reportFormat)
	if err != nil {
		return err
	}

	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	exporter := query.Exporter{Format: format}
	filter := types.RecordFilter{}

	switch args[0] {
	case "summary":
		summary, err := app.queries.Summary(filter)
		if err != nil {
			return err
		}
		return exporter.Summary(os.Stdout, summary)

	case "cost":
		report, err := app.queries.CostReport(filter, reportTop)
		if err != nil {
			return err
		}
		return exporter.CostReport(os.Stdout, report)

	case "stale":
		days := reportDays
		if days <= 0 {
			days = app.cfg.CostThresholds.StaleDays
		}
		stale, err := app.queries.Stale(filter, days)
		if err != nil {
			return err
		}
		return exporter.Stale(os.Stdout, stale)

	case "idle":
		idle, err := app.queries.Idle(filter)
		if err != nil {
			return err
		}
		return exporter.Idle(os.Stdout, idle)

	case "security":
		findings, err := app.queries.Security(filter)
		if err != nil {
			return err
		}
		return exporter.Findings(os.Stdout, findings)
	}

	return fmt.Errorf("unknown report %q", args[0])
}
