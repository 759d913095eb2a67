package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
	"github.com/praxis-lab/Polya/go/decomposer/internal/streaming"
	"github.com/praxis-lab/Polya/go/decomposer/internal/tracing"
	"github.com/praxis-lab/Polya/go/decomposer/internal/validation"
)

// DecomposerSlug routes requests to the decomposition capability.
const DecomposerSlug = "decomposer"

// Input validation bounds.
const (
	maxObjectiveLen     = 10_000
	maxDepthBound       = 5
	maxSubObjectiveCeil = 100
)

var allowedGranularities = map[string]bool{
	"":         true,
	"coarse":   true,
	"standard": true,
	"fine":     true,
}

// Decomposer is the objective decomposition capability: a pure engine
// pass wrapped in validation, policy, caching, best-effort persistence,
// and telemetry. The wrapper sequences strictly forward; a failure before
// the result is assembled yields an error envelope and nothing else.
type Decomposer struct {
	logger   *zap.Logger
	defaults func() decompose.Options

	store        Store
	cache        ResultCache
	gate         Gate
	publisher    Publisher
	strictVerify bool

	persistTimeout time.Duration
}

// DecomposerOption configures optional collaborators.
type DecomposerOption func(*Decomposer)

// WithStore attaches the best-effort persistence sink.
func WithStore(s Store) DecomposerOption {
	return func(d *Decomposer) { d.store = s }
}

// WithCache attaches the result cache.
func WithCache(c ResultCache) DecomposerOption {
	return func(d *Decomposer) { d.cache = c }
}

// WithGate attaches the policy gate.
func WithGate(g Gate) DecomposerOption {
	return func(d *Decomposer) { d.gate = g }
}

// WithPublisher attaches the lifecycle event publisher.
func WithPublisher(p Publisher) DecomposerOption {
	return func(d *Decomposer) { d.publisher = p }
}

// WithStrictVerify re-checks every structural invariant on the built
// result before it leaves the capability.
func WithStrictVerify(on bool) DecomposerOption {
	return func(d *Decomposer) { d.strictVerify = on }
}

// WithPersistTimeout bounds the synchronous part of the persistence call.
func WithPersistTimeout(t time.Duration) DecomposerOption {
	return func(d *Decomposer) { d.persistTimeout = t }
}

// NewDecomposer builds the capability. defaults supplies the engine
// bounds per invocation so config hot reload takes effect without
// restarting.
func NewDecomposer(logger *zap.Logger, defaults func() decompose.Options, opts ...DecomposerOption) *Decomposer {
	d := &Decomposer{
		logger:         logger,
		defaults:       defaults,
		persistTimeout: 5 * time.Second,
	}
	if d.defaults == nil {
		d.defaults = decompose.DefaultOptions
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Slug implements Capability.
func (d *Decomposer) Slug() string { return DecomposerSlug }

// Describe implements Capability.
func (d *Decomposer) Describe() Description {
	return Description{
		Slug:           DecomposerSlug,
		Name:           "Objective Decomposer",
		Version:        decompose.SchemaVersion,
		Summary:        "Turns a free-text objective into a bounded, acyclic graph of sub-objectives with complexity and coverage scoring.",
		DecisionType:   contracts.DecisionDecomposition,
		Classification: ClassificationDeterministic,
	}
}

// validatedInput is the capability-owned token produced by Validate.
type validatedInput struct {
	input       contracts.InvocationInput
	opts        decompose.Options
	actx        decompose.AssumptionContext
	constraints []string
	inputsHash  string
}

// Validate implements Capability. It normalizes and bounds the raw
// invocation record; everything past this point can assume shape.
func (d *Decomposer) Validate(in contracts.InvocationInput) (ValidatedInput, error) {
	objective := strings.TrimSpace(in.Objective)
	if objective == "" {
		return nil, contracts.ValidationError("objective is required")
	}
	if len(objective) > maxObjectiveLen {
		return nil, contracts.ValidationError("objective exceeds %d characters", maxObjectiveLen)
	}

	opts := d.defaults()
	actx := decompose.AssumptionContext{}
	var constraints []string

	if in.Context != nil {
		if in.Context.MaxDepth != nil {
			md := *in.Context.MaxDepth
			if md < 0 || md > maxDepthBound {
				return nil, contracts.ValidationError("context.max_depth must be in [0, %d], got %d", maxDepthBound, md)
			}
			opts.MaxDepth = md
		}
		if len(in.Context.Constraints) > 0 {
			actx.HasConstraints = true
			constraints = append(constraints, in.Context.Constraints...)
		}
		actx.HasExistingComponents = len(in.Context.ExistingComponents) > 0
	}
	if in.Config != nil {
		if in.Config.MaxSubObjectives != nil {
			ms := *in.Config.MaxSubObjectives
			if ms < 1 || ms > maxSubObjectiveCeil {
				return nil, contracts.ValidationError("config.max_sub_objectives must be in [1, %d], got %d", maxSubObjectiveCeil, ms)
			}
			opts.MaxSubObjectives = ms
		}
		if !allowedGranularities[in.Config.TargetGranularity] {
			return nil, contracts.ValidationError("config.target_granularity must be one of coarse, standard, fine")
		}
		actx.HasTargetGranularity = in.Config.TargetGranularity != ""
	}

	normalized := in
	normalized.Objective = objective

	hash, err := contracts.ComputeInputsHash(normalized)
	if err != nil {
		return nil, contracts.ProcessingError("hash inputs: %v", err)
	}

	return &validatedInput{
		input:       normalized,
		opts:        opts,
		actx:        actx,
		constraints: constraints,
		inputsHash:  hash,
	}, nil
}

// Invoke implements Capability. The step order is fixed: policy gate,
// cache probe, engine pass, graphs, analysis, confidence, assembly,
// best-effort persistence, telemetry. A persistence failure downgrades
// to a skipped status; it never fails the invocation.
func (d *Decomposer) Invoke(ctx context.Context, in ValidatedInput, executionRef string) (env contracts.SuccessEnvelope, err error) {
	vin, ok := in.(*validatedInput)
	if !ok {
		return env, contracts.ProcessingError("input was not produced by this capability's Validate")
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "decomposer.invoke")
	defer span.End()

	metrics.InvocationsStarted.WithLabelValues(DecomposerSlug).Inc()
	d.publish(streaming.Event{
		ExecutionRef: executionRef,
		Type:         streaming.EventInvocationStarted,
		AgentID:      DecomposerSlug,
	})

	// The engine is pure; a panic in it is a bug, reported as a
	// processing error rather than a crashed invocation.
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Decomposer invocation panicked", zap.Any("panic", r))
			err = contracts.ProcessingError("decomposition panicked: %v", r)
			d.failed(executionRef, err)
		}
	}()

	if d.gate != nil {
		allowed, reason, gateErr := d.gate.Authorize(ctx, DecomposerSlug, vin.input)
		if gateErr != nil {
			err = contracts.ProcessingError("policy gate: %v", gateErr)
			d.failed(executionRef, err)
			return env, err
		}
		if !allowed {
			err = contracts.ValidationError("invocation denied by policy: %s", reason)
			d.publish(streaming.Event{
				ExecutionRef: executionRef,
				Type:         streaming.EventPolicyDenied,
				AgentID:      DecomposerSlug,
				Message:      reason,
			})
			d.failed(executionRef, err)
			return env, err
		}
	}

	if d.cache != nil {
		if cached, hit := d.cache.Get(ctx, vin.inputsHash); hit {
			d.logger.Debug("Result cache hit", zap.String("inputs_hash", vin.inputsHash))
			d.completed(executionRef, start, true)
			return *cached, nil
		}
	}

	subs := decompose.Decompose(vin.input.Objective, vin.opts)
	d.publish(streaming.Event{
		ExecutionRef: executionRef,
		Type:         streaming.EventNodesEmitted,
		AgentID:      DecomposerSlug,
		Message:      fmt.Sprintf("%d sub-objectives", len(subs)),
	})

	analysis := decompose.Analyze(subs, vin.actx)
	confidence := decompose.Confidence(analysis)
	result := decompose.NewResult(vin.input.Objective, subs, analysis)

	if d.strictVerify {
		if verr := validation.VerifyResult(&result, vin.opts); verr != nil {
			err = contracts.ProcessingError("built result failed verification: %v", verr)
			d.failed(executionRef, err)
			return env, err
		}
	}

	d.publish(streaming.Event{
		ExecutionRef:    executionRef,
		Type:            streaming.EventAnalysisComplete,
		AgentID:         DecomposerSlug,
		DecompositionID: result.DecompositionID,
	})

	event, err := contracts.NewDecisionEvent(DecomposerSlug, decompose.SchemaVersion,
		contracts.DecisionDecomposition, result, confidence)
	if err != nil {
		err = contracts.ProcessingError("assemble decision event: %v", err)
		d.failed(executionRef, err)
		return env, err
	}
	event.InputsHash = vin.inputsHash
	event = event.WithConstraints(vin.constraints).WithExecutionRef(executionRef)

	traceID, spanID := tracing.SpanIDs(ctx)
	telemetry := contracts.TelemetryMetadata{}.
		WithTrace(traceID, spanID).
		WithDuration(time.Since(start)).
		WithLabel("node_count", fmt.Sprintf("%d", len(subs)))
	event = event.WithTelemetry(telemetry)

	ps := d.persist(ctx, event, result, executionRef)
	env = contracts.NewSuccessEnvelope(event, ps)

	if d.cache != nil {
		d.cache.Set(ctx, vin.inputsHash, env)
	}

	d.completed(executionRef, start, false)
	metrics.RecordDecomposition(len(subs), analysis.MaxDepthReached, confidence)

	return env, nil
}

// persist runs the best-effort write. Failures land in the persistence
// status and a log line, nothing else.
func (d *Decomposer) persist(ctx context.Context, event contracts.DecisionEvent, result decompose.Result, executionRef string) contracts.PersistenceStatus {
	if d.store == nil {
		return contracts.PersistenceStatus{Status: contracts.PersistenceSkipped, Error: "no store configured"}
	}

	pctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	if err := d.store.SaveDecomposition(pctx, event, result); err != nil {
		d.logger.Warn("Persistence skipped",
			zap.String("decomposition_id", result.DecompositionID),
			zap.Error(err))
		d.publish(streaming.Event{
			ExecutionRef:    executionRef,
			Type:            streaming.EventPersistenceSkipped,
			AgentID:         DecomposerSlug,
			DecompositionID: result.DecompositionID,
			Message:         err.Error(),
		})
		return contracts.PersistenceStatus{Status: contracts.PersistenceSkipped, Error: err.Error()}
	}
	return contracts.PersistenceStatus{Status: contracts.PersistencePersisted}
}

func (d *Decomposer) completed(executionRef string, start time.Time, cacheHit bool) {
	status := "success"
	if cacheHit {
		status = "cache_hit"
	}
	metrics.RecordInvocation(DecomposerSlug, status, time.Since(start).Seconds())
	d.publish(streaming.Event{
		ExecutionRef: executionRef,
		Type:         streaming.EventInvocationCompleted,
		AgentID:      DecomposerSlug,
		Message:      status,
	})
}

func (d *Decomposer) failed(executionRef string, err error) {
	code := contracts.CodeProcessingError
	if ae, ok := err.(*contracts.AgentError); ok {
		code = ae.Code
	}
	metrics.InvocationsCompleted.WithLabelValues(DecomposerSlug, "error").Inc()
	metrics.InvocationErrors.WithLabelValues(DecomposerSlug, code).Inc()
	d.publish(streaming.Event{
		ExecutionRef: executionRef,
		Type:         streaming.EventInvocationFailed,
		AgentID:      DecomposerSlug,
		Message:      err.Error(),
	})
}

func (d *Decomposer) publish(evt streaming.Event) {
	if d.publisher == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()
	d.publisher.Publish(evt.ExecutionRef, evt)
}
