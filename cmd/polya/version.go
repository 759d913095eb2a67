package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and result schema version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "polya %s (schema %s)\n", cliVersion, decompose.SchemaVersion)
	},
}

// cliVersion is overridden at build time with -ldflags.
var cliVersion = "dev"
