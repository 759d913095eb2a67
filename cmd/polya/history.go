package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past decompositions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decompositions, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <decomposition-id>",
	Short: "Show one past decomposition (unique id prefixes work)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No decompositions recorded yet. Run 'polya decompose <objective>'.")
		return nil
	}

	switch outputFormat {
	case "json", "yaml":
		return renderValue(cmd.OutOrStdout(), entries, outputFormat)
	default:
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tNODES\tDEPTH\tCONFIDENCE\tOBJECTIVE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%s\n",
				shortID(e.DecompositionID),
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				e.NodeCount, e.Depth, e.Confidence,
				truncate(e.Objective, 60))
		}
		return w.Flush()
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(args[0])
	if err != nil {
		return err
	}
	var env contracts.SuccessEnvelope
	if err := json.Unmarshal(entry.Envelope, &env); err != nil {
		return fmt.Errorf("decode stored envelope: %w", err)
	}
	return renderEnvelope(cmd.OutOrStdout(), env, outputFormat)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
