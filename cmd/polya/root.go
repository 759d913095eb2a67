// Command polya is the local CLI for the decomposition engine. It runs
// the same engine the service hosts, without requiring the service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "polya",
	Short: "Objective decomposition from the command line",
	Long: `Polya breaks a free-text objective into a bounded tree of
sub-objectives with typed dependencies, complexity ratings, and
coverage scoring.

The CLI runs the engine in-process; no service connection is needed.
Each run is recorded in a local history database for later inspection.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "human",
		"Output format: human, json, or yaml")

	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
