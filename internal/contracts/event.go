package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DecisionType classifies what kind of decision an agent emitted.
type DecisionType string

const (
	DecisionDecomposition DecisionType = "decomposition"
	DecisionPlanning      DecisionType = "planning"
	DecisionReview        DecisionType = "review"
)

// TelemetryMetadata links a decision to its trace and carries timing.
type TelemetryMetadata struct {
	TraceID      string            `json:"trace_id,omitempty"`
	SpanID       string            `json:"span_id,omitempty"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	DurationMs   int64             `json:"duration_ms"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// WithTrace returns a copy carrying the given trace linkage.
func (t TelemetryMetadata) WithTrace(traceID, spanID string) TelemetryMetadata {
	t.TraceID = traceID
	t.SpanID = spanID
	return t
}

// WithParentSpan returns a copy carrying the parent span id.
func (t TelemetryMetadata) WithParentSpan(spanID string) TelemetryMetadata {
	t.ParentSpanID = spanID
	return t
}

// WithDuration returns a copy carrying the elapsed wall time.
func (t TelemetryMetadata) WithDuration(d time.Duration) TelemetryMetadata {
	t.DurationMs = d.Milliseconds()
	return t
}

// WithLabel returns a copy with one label added. The receiver's label map
// is never mutated.
func (t TelemetryMetadata) WithLabel(key, value string) TelemetryMetadata {
	labels := make(map[string]string, len(t.Labels)+1)
	for k, v := range t.Labels {
		labels[k] = v
	}
	labels[key] = value
	t.Labels = labels
	return t
}

// DecisionEvent is the auditable record every agent invocation produces:
// who decided, over which inputs (by hash), what came out, and how sure
// the agent is. Exactly one event is emitted per successful invocation.
type DecisionEvent struct {
	ID                 string            `json:"id"`
	AgentID            string            `json:"agent_id"`
	AgentVersion       string            `json:"agent_version"`
	DecisionType       DecisionType      `json:"decision_type"`
	InputsHash         string            `json:"inputs_hash"`
	Outputs            json.RawMessage   `json:"outputs"`
	Confidence         float64           `json:"confidence"`
	ConstraintsApplied []string          `json:"constraints_applied"`
	ExecutionRef       string            `json:"execution_ref,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
	Telemetry          TelemetryMetadata `json:"telemetry"`
}

// NewDecisionEvent builds an event with a fresh id and UTC timestamp.
// Confidence is clamped to [0,1]; outputs are serialized once here and
// treated as opaque afterwards.
func NewDecisionEvent(agentID, agentVersion string, decisionType DecisionType, outputs interface{}, confidence float64) (DecisionEvent, error) {
	raw, err := json.Marshal(outputs)
	if err != nil {
		return DecisionEvent{}, fmt.Errorf("serialize outputs: %w", err)
	}
	return DecisionEvent{
		ID:                 uuid.New().String(),
		AgentID:            agentID,
		AgentVersion:       agentVersion,
		DecisionType:       decisionType,
		InputsHash:         "",
		Outputs:            raw,
		Confidence:         clampConfidence(confidence),
		ConstraintsApplied: []string{},
		Timestamp:          time.Now().UTC(),
	}, nil
}

// WithInputs hashes the validated input record onto the event.
func (e DecisionEvent) WithInputs(inputs interface{}) (DecisionEvent, error) {
	h, err := ComputeInputsHash(inputs)
	if err != nil {
		return e, err
	}
	e.InputsHash = h
	return e, nil
}

// WithConstraints returns a copy carrying the applied constraint list.
func (e DecisionEvent) WithConstraints(constraints []string) DecisionEvent {
	if constraints == nil {
		constraints = []string{}
	}
	e.ConstraintsApplied = constraints
	return e
}

// WithExecutionRef returns a copy tied to the caller's execution.
func (e DecisionEvent) WithExecutionRef(ref string) DecisionEvent {
	e.ExecutionRef = ref
	return e
}

// WithTelemetry returns a copy carrying the telemetry block.
func (e DecisionEvent) WithTelemetry(t TelemetryMetadata) DecisionEvent {
	e.Telemetry = t
	return e
}

// ComputeInputsHash returns the hex sha256 of the canonical JSON encoding
// of v. encoding/json sorts map keys, so equal records hash equally.
func ComputeInputsHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize inputs for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
