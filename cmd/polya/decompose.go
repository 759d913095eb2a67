package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/agent"
	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/history"
)

var (
	decomposeFile        string
	decomposeMaxDepth    int
	decomposeMaxNodes    int
	decomposeGranularity string
	decomposeConstraints []string
	decomposeComponents  []string
	decomposeStrict      bool
	decomposeNoHistory   bool
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose [objective]",
	Short: "Decompose an objective into sub-objectives",
	Long: `Decompose a free-text objective into a bounded tree of
sub-objectives.

The objective comes from the argument, from --file, or from stdin when
the argument is "-". Constraints and known components sharpen the
result; repeat the flags to pass several.`,
	Example: `  polya decompose "build a CSV import pipeline with validation"
  polya decompose --file objective.txt --max-depth 4
  echo "migrate billing to event sourcing" | polya decompose -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().StringVarP(&decomposeFile, "file", "f", "", "Read the objective from a file")
	decomposeCmd.Flags().IntVar(&decomposeMaxDepth, "max-depth", 0, "Maximum tree depth (0 = engine default)")
	decomposeCmd.Flags().IntVar(&decomposeMaxNodes, "max-nodes", 0, "Maximum sub-objective count (0 = engine default)")
	decomposeCmd.Flags().StringVar(&decomposeGranularity, "granularity", "", "Target granularity: coarse, standard, or fine")
	decomposeCmd.Flags().StringArrayVar(&decomposeConstraints, "constraint", nil, "Constraint on the decomposition (repeatable)")
	decomposeCmd.Flags().StringArrayVar(&decomposeComponents, "component", nil, "Existing component to decompose around (repeatable)")
	decomposeCmd.Flags().BoolVar(&decomposeStrict, "strict", false, "Verify structural invariants before returning")
	decomposeCmd.Flags().BoolVar(&decomposeNoHistory, "no-history", false, "Do not record this run in the local history")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	applyFlags(&input)

	dec := agent.NewDecomposer(zap.NewNop(), decompose.DefaultOptions,
		agent.WithStrictVerify(decomposeStrict))
	vin, err := dec.Validate(input)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	env, err := dec.Invoke(ctx, vin, uuid.New().String())
	if err != nil {
		return err
	}

	if !decomposeNoHistory {
		if err := recordHistory(env); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: history not recorded: %v\n", err)
		}
	}

	return renderEnvelope(cmd.OutOrStdout(), env, outputFormat)
}

// readInput resolves the invocation input from the argument, --file, or
// stdin ("-"). File and stdin content starting with "{" is parsed as a
// full input record; anything else is the raw objective text.
func readInput(cmd *cobra.Command, args []string) (contracts.InvocationInput, error) {
	var raw string
	switch {
	case decomposeFile != "":
		b, err := os.ReadFile(decomposeFile)
		if err != nil {
			return contracts.InvocationInput{}, fmt.Errorf("read objective file: %w", err)
		}
		raw = string(b)
	case len(args) == 1 && args[0] != "-":
		return contracts.InvocationInput{Objective: args[0]}, nil
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return contracts.InvocationInput{}, fmt.Errorf("read objective from stdin: %w", err)
		}
		raw = string(b)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return contracts.InvocationInput{}, fmt.Errorf("no objective given; pass one as an argument, via --file, or on stdin")
	}
	if strings.HasPrefix(raw, "{") {
		var input contracts.InvocationInput
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return contracts.InvocationInput{}, fmt.Errorf("parse input record: %w", err)
		}
		return input, nil
	}
	return contracts.InvocationInput{Objective: raw}, nil
}

// applyFlags merges explicit command-line overrides onto the input.
func applyFlags(input *contracts.InvocationInput) {
	if decomposeMaxDepth > 0 || len(decomposeConstraints) > 0 || len(decomposeComponents) > 0 {
		if input.Context == nil {
			input.Context = &contracts.InvocationContext{}
		}
		if decomposeMaxDepth > 0 {
			d := decomposeMaxDepth
			input.Context.MaxDepth = &d
		}
		if len(decomposeConstraints) > 0 {
			input.Context.Constraints = decomposeConstraints
		}
		if len(decomposeComponents) > 0 {
			input.Context.ExistingComponents = decomposeComponents
		}
	}
	if decomposeMaxNodes > 0 || decomposeGranularity != "" {
		if input.Config == nil {
			input.Config = &contracts.InvocationConfig{}
		}
		if decomposeMaxNodes > 0 {
			n := decomposeMaxNodes
			input.Config.MaxSubObjectives = &n
		}
		if decomposeGranularity != "" {
			input.Config.TargetGranularity = decomposeGranularity
		}
	}
}

func recordHistory(env contracts.SuccessEnvelope) error {
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(env)
}
