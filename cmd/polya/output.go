package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

// renderValue writes v as json or yaml. YAML goes through a JSON
// roundtrip so json.RawMessage fields render as structures, not bytes.
func renderValue(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		return yaml.NewEncoder(w).Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q (want human, json, or yaml)", format)
	}
}

// renderEnvelope writes a finished invocation in the selected format.
func renderEnvelope(w io.Writer, env contracts.SuccessEnvelope, format string) error {
	if format == "json" || format == "yaml" {
		return renderValue(w, env, format)
	}
	if format != "human" {
		return fmt.Errorf("unknown output format %q (want human, json, or yaml)", format)
	}

	var res decompose.Result
	if err := json.Unmarshal(env.Event.Outputs, &res); err != nil {
		return fmt.Errorf("decode outputs: %w", err)
	}

	fmt.Fprintf(w, "Objective: %s\n", res.OriginalObjective)
	fmt.Fprintf(w, "Decomposition %s  confidence %.2f  coverage %.2f  nodes %d  depth %d\n",
		shortID(res.DecompositionID), env.Event.Confidence,
		res.Analysis.CoverageScore, res.Analysis.TotalSubObjectives,
		res.Analysis.MaxDepthReached)

	parts := make([]string, 0, len(decompose.Levels()))
	for _, level := range decompose.Levels() {
		if n := res.Analysis.ComplexityDistribution[level]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", level, n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "Complexity: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintln(w)

	nodes := make(map[string]decompose.SubObjective, len(res.SubObjectives))
	for _, so := range res.SubObjectives {
		nodes[so.ID] = so
	}
	printBranch(w, res.TreeStructure, nodes, decompose.TreeKeyRoot, "")

	if len(res.Analysis.Assumptions) > 0 {
		fmt.Fprintln(w, "\nAssumptions:")
		for _, a := range res.Analysis.Assumptions {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
	fmt.Fprintf(w, "\nPersistence: %s\n", env.PersistenceStatus.Status)
	return nil
}

func printBranch(w io.Writer, tree map[string][]string, nodes map[string]decompose.SubObjective, key, indent string) {
	children := tree[key]
	for i, id := range children {
		so, ok := nodes[id]
		if !ok {
			continue
		}
		connector, childIndent := "├─", indent+"│  "
		if i == len(children)-1 {
			connector, childIndent = "└─", indent+"   "
		}
		marker := ""
		if so.IsAtomic {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s [%s] %s%s\n", indent, connector, so.Complexity, so.Title, marker)
		if len(so.Dependencies) > 0 {
			deps := make([]string, 0, len(so.Dependencies))
			for _, d := range so.Dependencies {
				deps = append(deps, fmt.Sprintf("%s→%s", d.Type, shortID(d.DependsOn)))
			}
			fmt.Fprintf(w, "%s   deps: %s\n", indent, strings.Join(deps, ", "))
		}
		printBranch(w, tree, nodes, id, childIndent)
	}
}
