package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	cfgPath string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "kerava",
		Short: "Multi-account cloud resource inventory",
		Long: `Kerava - Multi-Account Cloud Resource Inventory

Kerava collects resource inventory across all your cloud accounts and
regions in parallel, estimates what each resource costs per month, and
answers the questions that follow: what do we run, what does it cost,
what sits idle, and what looks insecure.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Kerava {{.Version}} - Multi-Account Cloud Resource Inventory
`)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "kerava.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
