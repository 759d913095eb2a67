package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

func sampleEnvelope(t *testing.T) contracts.SuccessEnvelope {
	t.Helper()
	parent := "so-1"
	res := decompose.Result{
		DecompositionID:   "dec-12345678-abcd",
		OriginalObjective: "ship the importer",
		SubObjectives: []decompose.SubObjective{
			{ID: "so-1", Title: "Design the schema", Depth: 0, Complexity: decompose.ComplexityModerate,
				Dependencies: []decompose.Dependency{}},
			{ID: "so-2", Title: "Write the parser", ParentID: &parent, Depth: 1,
				Complexity: decompose.ComplexitySimple, IsAtomic: true,
				Dependencies: []decompose.Dependency{{DependsOn: "so-1", Type: decompose.DependencyBlocking}}},
		},
		TreeStructure:   map[string][]string{decompose.TreeKeyRoot: {"so-1"}, "so-1": {"so-2"}},
		DependencyGraph: map[string][]string{"so-1": {}, "so-2": {"so-1"}},
		Analysis: decompose.Analysis{
			TotalSubObjectives: 2,
			MaxDepthReached:    1,
			CoverageScore:      0.7,
			ComplexityDistribution: map[decompose.Complexity]int{
				decompose.ComplexitySimple:   1,
				decompose.ComplexityModerate: 1,
			},
			Assumptions: []string{"no constraints supplied"},
		},
		Version: decompose.SchemaVersion,
	}
	evt, err := contracts.NewDecisionEvent("decomposer", decompose.SchemaVersion,
		contracts.DecisionDecomposition, res, 0.82)
	require.NoError(t, err)
	return contracts.NewSuccessEnvelope(evt, contracts.PersistenceStatus{Status: contracts.PersistenceSkipped})
}

func TestRenderEnvelopeHuman(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, renderEnvelope(&buf, sampleEnvelope(t), "human"))
	out := buf.String()

	assert.Contains(t, out, "Objective: ship the importer")
	assert.Contains(t, out, "Complexity: simple 1, moderate 1")
	assert.Contains(t, out, "[moderate] Design the schema")
	assert.Contains(t, out, "[simple] Write the parser *")
	assert.Contains(t, out, "deps: blocking→so-1")
	assert.Contains(t, out, "no constraints supplied")
	assert.Contains(t, out, "Persistence: skipped")
}

func TestRenderEnvelopeYAMLKeepsOutputsStructured(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, renderEnvelope(&buf, sampleEnvelope(t), "yaml"))
	out := buf.String()

	assert.Contains(t, out, "original_objective: ship the importer")
	assert.NotContains(t, out, "!!binary")
}

func TestRenderEnvelopeRejectsUnknownFormat(t *testing.T) {
	var buf strings.Builder
	err := renderEnvelope(&buf, sampleEnvelope(t), "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long ...", truncate("a long objective text", 10))
}
