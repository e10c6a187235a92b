// Package commands implements the runsight CLI: offline analysis of local
// stream files, pipeline triggers and the API server.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version and Commit are set at build time via ldflags.
	Version = "dev"
	Commit  = "none"

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "runsight",
	Short: "RunSight turns recorded run telemetry into deterministic interpretations",
	Long: `RunSight analyzes recorded running telemetry: it segments a run into
phases, scores effort intensity, detects notable moments and compares the
run against a prescribed workout. The same input always produces the same
interpretation.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local development convenience; missing files are fine
		_ = godotenv.Load()
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Version = Version + " (" + Commit + ")"
}
