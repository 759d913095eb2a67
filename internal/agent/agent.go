package agent

import (
	"context"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/streaming"
)

// ValidatedInput is an opaque, capability-owned token produced by Validate
// and consumed by Invoke on the same capability.
type ValidatedInput interface{}

// Classification describes how a capability reaches its decisions.
type Classification string

const (
	ClassificationDeterministic Classification = "deterministic"
	ClassificationHeuristic     Classification = "heuristic"
	ClassificationLearned       Classification = "learned"
)

// Description is the registry metadata for one capability.
type Description struct {
	Slug           string                 `json:"slug"`
	Name           string                 `json:"name"`
	Version        string                 `json:"version"`
	Summary        string                 `json:"summary"`
	DecisionType   contracts.DecisionType `json:"decision_type"`
	Classification Classification         `json:"classification"`
}

// Capability is one invocable agent variant. Validate runs shape checks
// and normalization; Invoke runs the full decision pipeline over an
// already-validated input. Implementations never return partial results:
// the caller gets a complete envelope or an error.
type Capability interface {
	Slug() string
	Describe() Description
	Validate(in contracts.InvocationInput) (ValidatedInput, error)
	Invoke(ctx context.Context, in ValidatedInput, executionRef string) (contracts.SuccessEnvelope, error)
}

// Store is the best-effort persistence sink for finished invocations.
// Callers absorb failures; a failed write never fails the invocation.
type Store interface {
	SaveDecomposition(ctx context.Context, evt contracts.DecisionEvent, res decompose.Result) error
}

// ResultCache short-circuits repeat invocations keyed by inputs hash.
type ResultCache interface {
	Get(ctx context.Context, inputsHash string) (*contracts.SuccessEnvelope, bool)
	Set(ctx context.Context, inputsHash string, env contracts.SuccessEnvelope)
}

// Gate authorizes an invocation before any decomposition work runs.
type Gate interface {
	Authorize(ctx context.Context, agentSlug string, in contracts.InvocationInput) (allowed bool, reason string, err error)
}

// Publisher emits invocation lifecycle events; implementations must not
// block the invocation path.
type Publisher interface {
	Publish(executionRef string, evt streaming.Event)
}
