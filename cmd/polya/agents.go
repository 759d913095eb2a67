package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/agent"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the available agent capabilities",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered capabilities",
	RunE:  runAgentsList,
}

var agentsInfoCmd = &cobra.Command{
	Use:   "info <slug>",
	Short: "Show one capability's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsInfo,
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsInfoCmd)
}

// localRegistry mirrors the service's capability registration so the CLI
// reports the same descriptions a running service would.
func localRegistry() *registry.Registry {
	reg := registry.New(zap.NewNop())
	_ = reg.Register(agent.NewDecomposer(zap.NewNop(), decompose.DefaultOptions))
	return reg
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	descriptions := localRegistry().List()
	switch outputFormat {
	case "json", "yaml":
		return renderValue(cmd.OutOrStdout(), descriptions, outputFormat)
	default:
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tVERSION\tCLASSIFICATION")
		for _, d := range descriptions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Slug, d.Name, d.Version, d.Classification)
		}
		return w.Flush()
	}
}

func runAgentsInfo(cmd *cobra.Command, args []string) error {
	c, ok := localRegistry().Get(args[0])
	if !ok {
		return fmt.Errorf("unknown agent %q", args[0])
	}
	d := c.Describe()
	switch outputFormat {
	case "json", "yaml":
		return renderValue(cmd.OutOrStdout(), d, outputFormat)
	default:
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Slug:           %s\n", d.Slug)
		fmt.Fprintf(out, "Name:           %s\n", d.Name)
		fmt.Fprintf(out, "Version:        %s\n", d.Version)
		fmt.Fprintf(out, "Decision type:  %s\n", d.DecisionType)
		fmt.Fprintf(out, "Classification: %s\n", d.Classification)
		fmt.Fprintf(out, "Summary:        %s\n", d.Summary)
		return nil
	}
}
