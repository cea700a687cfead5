// Package main provides the pubctl admin CLI.
package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// sinceFlag holds the --since value of the reconcile commands.
var sinceFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pubctl",
	Short: "Admin CLI for the publication tracker",
	Long: `pubctl maintains the author roster, submits reconciliation jobs and
prints reports. It reads the same PUBTRACK_* configuration as the server
and worker, talks to PostgreSQL and Temporal directly, and writes JSON to
stdout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
}
