package db

import (
	"encoding/json"
	"time"
)

// DecompositionRecord is one persisted decomposition result row.
type DecompositionRecord struct {
	DecompositionID string          `db:"decomposition_id"`
	Objective       string          `db:"objective"`
	NodeCount       int             `db:"node_count"`
	MaxDepth        int             `db:"max_depth"`
	AtomicCount     int             `db:"atomic_count"`
	CoverageScore   float64         `db:"coverage_score"`
	Confidence      float64         `db:"confidence"`
	ExecutionRef    string          `db:"execution_ref"`
	Payload         json.RawMessage `db:"payload"`
	CreatedAt       time.Time       `db:"created_at"`
}

// DecisionEventRecord is one persisted decision event row.
type DecisionEventRecord struct {
	ID           string          `db:"id"`
	AgentID      string          `db:"agent_id"`
	DecisionType string          `db:"decision_type"`
	InputsHash   string          `db:"inputs_hash"`
	Confidence   float64         `db:"confidence"`
	ExecutionRef string          `db:"execution_ref"`
	Payload      json.RawMessage `db:"payload"`
	TraceID      string          `db:"trace_id"`
	SpanID       string          `db:"span_id"`
	DurationMs   int64           `db:"duration_ms"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Schema is the reference DDL for the two persistence tables. Migrations
// live with the deployment, not the service; this is applied by tests and
// dev bootstrap only.
const Schema = `
CREATE TABLE IF NOT EXISTS decomposition_results (
    decomposition_id UUID PRIMARY KEY,
    objective        TEXT NOT NULL,
    node_count       INT NOT NULL,
    max_depth        INT NOT NULL,
    atomic_count     INT NOT NULL,
    coverage_score   DOUBLE PRECISION NOT NULL,
    confidence       DOUBLE PRECISION NOT NULL,
    execution_ref    TEXT NOT NULL DEFAULT '',
    payload          JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decision_events (
    id            UUID PRIMARY KEY,
    agent_id      TEXT NOT NULL,
    decision_type TEXT NOT NULL,
    inputs_hash   TEXT NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    execution_ref TEXT NOT NULL DEFAULT '',
    payload       JSONB NOT NULL,
    trace_id      TEXT NOT NULL DEFAULT '',
    span_id       TEXT NOT NULL DEFAULT '',
    duration_ms   BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decision_events_inputs_hash ON decision_events (inputs_hash);
CREATE INDEX IF NOT EXISTS idx_decomposition_results_created ON decomposition_results (created_at DESC);
`
