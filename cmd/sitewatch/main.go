// Package main provides the entry point for the sitewatch consumption API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitewatch",
		Short: "Sitewatch - multi-tenant consumption statistics",
		Long: `Sitewatch aggregates IoT meter readings stored per tenant.

Commands:
  serve     Start the HTTP API
  migrate   Manage the directory schema
  version   Print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sitewatch.yaml", "path to configuration file (empty for defaults and env only)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "sitewatch %s (commit: %s)\n", version, commit)
		},
	}
}
