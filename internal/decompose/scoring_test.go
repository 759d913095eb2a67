package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkSubs builds a synthetic slice: n nodes, the first atomicN atomic, the
// first criteriaN with a criterion, all at the given depth.
func mkSubs(n, atomicN, criteriaN, depth int) []SubObjective {
	subs := make([]SubObjective, n)
	for i := range subs {
		subs[i] = SubObjective{
			ID:         "sub-" + string(rune('a'+i)),
			Depth:      depth,
			Complexity: ComplexityModerate,
		}
		if i < atomicN {
			subs[i].IsAtomic = true
		}
		if i < criteriaN {
			subs[i].AcceptanceCriteria = []string{"done"}
		}
	}
	return subs
}

func TestCoverageScore(t *testing.T) {
	tests := []struct {
		name string
		subs []SubObjective
		want float64
	}{
		{
			name: "empty pass keeps the base score",
			subs: nil,
			want: 0.5,
		},
		{
			name: "three nodes, two atomic, full criteria, flat",
			subs: mkSubs(3, 2, 3, 0),
			want: 0.90,
		},
		{
			name: "sixteen nodes only get the oversize bonus",
			subs: mkSubs(16, 0, 0, 0),
			want: 0.60,
		},
		{
			name: "atomic ratio at exactly 0.4 earns nothing",
			subs: mkSubs(5, 2, 0, 0),
			want: 0.65,
		},
		{
			name: "hierarchy bonus",
			subs: mkSubs(2, 0, 0, 1),
			want: 0.60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CoverageScore(tt.subs), 1e-9)
		})
	}
}

func TestCoverageScoreFullPass(t *testing.T) {
	// Eight nodes, six atomic, criteria everywhere, one level of depth:
	// every bonus fires and the score saturates.
	subs := Decompose("Build and deploy a microservice API", DefaultOptions())
	require.Len(t, subs, 8)
	assert.InDelta(t, 1.0, CoverageScore(subs), 1e-9)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		analysis Analysis
		want     float64
	}{
		{
			name:     "degenerate analysis keeps the base",
			analysis: Analysis{},
			want:     0.65,
		},
		{
			name: "small flat pass",
			analysis: Analysis{
				TotalSubObjectives: 3,
				CoverageScore:      0.90,
				AtomicCount:        2,
			},
			want: 0.90,
		},
		{
			name: "rich hierarchical pass",
			analysis: Analysis{
				TotalSubObjectives: 8,
				CoverageScore:      1.0,
				MaxDepthReached:    1,
				AtomicCount:        6,
			},
			want: 0.95,
		},
		{
			name: "oversized pass is penalized",
			analysis: Analysis{
				TotalSubObjectives: 26,
				CoverageScore:      0.75,
				MaxDepthReached:    2,
				AtomicCount:        10,
			},
			want: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.analysis)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestDistributionCoversAllLevels(t *testing.T) {
	subs := []SubObjective{
		{Complexity: ComplexitySimple},
		{Complexity: ComplexitySimple},
		{Complexity: ComplexityComplex},
	}
	dist := Distribution(subs)

	require.Len(t, dist, 5)
	assert.Equal(t, 0, dist[ComplexityTrivial])
	assert.Equal(t, 2, dist[ComplexitySimple])
	assert.Equal(t, 0, dist[ComplexityModerate])
	assert.Equal(t, 1, dist[ComplexityComplex])
	assert.Equal(t, 0, dist[ComplexityVeryComplex])
}

func TestAssumptions(t *testing.T) {
	full := Assumptions(AssumptionContext{
		HasConstraints:        true,
		HasExistingComponents: true,
		HasTargetGranularity:  true,
	})
	require.Len(t, full, 2)
	assert.Equal(t, assumptionValidated, full[0])
	assert.Equal(t, assumptionStructural, full[1])

	bare := Assumptions(AssumptionContext{})
	require.Len(t, bare, 5)
	assert.Equal(t, full, bare[:2])
}

func TestAnalyze(t *testing.T) {
	subs := Decompose("Build and deploy a microservice API", DefaultOptions())
	a := Analyze(subs, AssumptionContext{HasConstraints: true})

	assert.Equal(t, 8, a.TotalSubObjectives)
	assert.Equal(t, 1, a.MaxDepthReached)
	assert.Equal(t, 6, a.AtomicCount)
	assert.InDelta(t, 1.0, a.CoverageScore, 1e-9)
	assert.Len(t, a.Assumptions, 4)
	assert.Len(t, a.ComplexityDistribution, 5)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.42, clamp01(0.42))
}
