package contracts

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewDecisionEvent(t *testing.T) {
	outputs := map[string]interface{}{"total": 8}

	evt, err := NewDecisionEvent("decomposer", "1.0.0", DecisionDecomposition, outputs, 0.95)
	if err != nil {
		t.Fatalf("NewDecisionEvent: %v", err)
	}

	if evt.ID == "" {
		t.Error("event id must be assigned")
	}
	if evt.AgentID != "decomposer" || evt.AgentVersion != "1.0.0" {
		t.Errorf("agent identity = %s/%s", evt.AgentID, evt.AgentVersion)
	}
	if evt.DecisionType != DecisionDecomposition {
		t.Errorf("decision type = %q", evt.DecisionType)
	}
	if evt.Timestamp.Location() != time.UTC {
		t.Error("timestamp must be UTC")
	}

	var round map[string]interface{}
	if err := json.Unmarshal(evt.Outputs, &round); err != nil {
		t.Fatalf("outputs are not valid JSON: %v", err)
	}
	if round["total"] != float64(8) {
		t.Errorf("outputs roundtrip = %v", round)
	}
}

func TestNewDecisionEventClampsConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.7, 0.7},
		{1.0, 1.0},
		{3.2, 1.0},
	}
	for _, tt := range tests {
		evt, err := NewDecisionEvent("decomposer", "1.0.0", DecisionDecomposition, nil, tt.in)
		if err != nil {
			t.Fatalf("NewDecisionEvent(%v): %v", tt.in, err)
		}
		if evt.Confidence != tt.want {
			t.Errorf("confidence %v clamped to %v, want %v", tt.in, evt.Confidence, tt.want)
		}
	}
}

func TestComputeInputsHash(t *testing.T) {
	a := InvocationInput{Objective: "build a service", ExecutionRef: "exec-1"}
	b := InvocationInput{Objective: "build a service", ExecutionRef: "exec-1"}
	c := InvocationInput{Objective: "build a service", ExecutionRef: "exec-2"}

	ha, err := ComputeInputsHash(a)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hb, _ := ComputeInputsHash(b)
	hc, _ := ComputeInputsHash(c)

	if ha != hb {
		t.Errorf("equal inputs hashed differently: %s vs %s", ha, hb)
	}
	if ha == hc {
		t.Error("different inputs produced the same hash")
	}
	if len(ha) != 64 || strings.ToLower(ha) != ha {
		t.Errorf("hash %q is not lowercase hex sha256", ha)
	}
}

func TestEventBuilders(t *testing.T) {
	evt, err := NewDecisionEvent("decomposer", "1.0.0", DecisionDecomposition, nil, 0.9)
	if err != nil {
		t.Fatal(err)
	}

	evt, err = evt.WithInputs(InvocationInput{Objective: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if evt.InputsHash == "" {
		t.Error("inputs hash not set")
	}

	evt = evt.WithConstraints([]string{"budget: small"}).
		WithExecutionRef("exec-9").
		WithTelemetry(TelemetryMetadata{}.
			WithTrace("trace-1", "span-1").
			WithDuration(1500*time.Millisecond).
			WithLabel("cache_hit", "false"))

	if evt.ExecutionRef != "exec-9" {
		t.Errorf("execution ref = %q", evt.ExecutionRef)
	}
	if evt.Telemetry.TraceID != "trace-1" || evt.Telemetry.SpanID != "span-1" {
		t.Errorf("telemetry trace = %+v", evt.Telemetry)
	}
	if evt.Telemetry.DurationMs != 1500 {
		t.Errorf("duration ms = %d", evt.Telemetry.DurationMs)
	}
	if evt.Telemetry.Labels["cache_hit"] != "false" {
		t.Errorf("labels = %v", evt.Telemetry.Labels)
	}
}

func TestTelemetryWithLabelDoesNotMutate(t *testing.T) {
	base := TelemetryMetadata{}.WithLabel("a", "1")
	derived := base.WithLabel("b", "2")

	if _, ok := base.Labels["b"]; ok {
		t.Error("WithLabel mutated the receiver's map")
	}
	if len(derived.Labels) != 2 {
		t.Errorf("derived labels = %v", derived.Labels)
	}
}

func TestWithConstraintsNeverNil(t *testing.T) {
	evt, _ := NewDecisionEvent("decomposer", "1.0.0", DecisionDecomposition, nil, 0.5)
	evt = evt.WithConstraints(nil)
	if evt.ConstraintsApplied == nil {
		t.Error("constraints must serialize as an empty list, not null")
	}
}
