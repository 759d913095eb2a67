package policy

import (
	"context"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// Gate adapts the engine to the invocation path: it shapes the policy
// input from the raw invocation record and counts denials.
type Gate struct {
	engine *Engine
}

// NewGate wraps an engine for use by agent capabilities.
func NewGate(engine *Engine) *Gate {
	return &Gate{engine: engine}
}

// Authorize evaluates the invocation gate for one request.
func (g *Gate) Authorize(ctx context.Context, agentSlug string, in contracts.InvocationInput) (bool, string, error) {
	d := g.engine.Evaluate(ctx, Input{
		AgentSlug:       agentSlug,
		ObjectiveLength: len(in.Objective),
		ExecutionRef:    in.ExecutionRef,
	})
	if !d.Allow {
		metrics.PolicyDenials.WithLabelValues(agentSlug).Inc()
	}
	return d.Allow, d.Reason, nil
}
