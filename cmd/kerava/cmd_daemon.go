package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kerava/internal/daemon"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous inventory collection",
	Long: `Run Kerava in daemon mode: collect on an interval, serve Prometheus
metrics on /metrics and health on /health, and shut down gracefully on
SIGTERM/SIGINT.`,
	Example: `  kerava daemon
  kerava daemon --interval 1h
  kerava daemon --metrics-addr :9090`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 6*time.Hour, "Collection interval")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", ":2112", "Metrics HTTP listen address")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("Starting Kerava daemon\n")
	fmt.Printf("   Interval: %s\n", daemonInterval)
	fmt.Printf("   Metrics: http://localhost%s/metrics\n", daemonMetricsAddr)
	fmt.Printf("   Storage: %s\n\n", app.cfg.StoragePath)

	d := daemon.New(daemon.Config{
		Interval:    daemonInterval,
		MetricsAddr: daemonMetricsAddr,
	}, app.handler, app.provider, app.logger)

	return d.Run(cmd.Context())
}
