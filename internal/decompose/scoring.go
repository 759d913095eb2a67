package decompose

// Fixed assumption statements attached to every analysis.
const (
	assumptionValidated  = "Objective is validated for clarity"
	assumptionStructural = "Decomposition is based on structural text analysis"
)

// AssumptionContext records which optional inputs the caller actually
// supplied; missing ones each add an explicit assumption to the analysis.
type AssumptionContext struct {
	HasConstraints        bool
	HasExistingComponents bool
	HasTargetGranularity  bool
}

// Distribution counts sub-objectives per complexity level. Every level is
// present in the returned map, zero when unused.
func Distribution(subs []SubObjective) map[Complexity]int {
	dist := make(map[Complexity]int, 5)
	for _, level := range Levels() {
		dist[level] = 0
	}
	for _, s := range subs {
		dist[s.Complexity]++
	}
	return dist
}

// MaxDepth returns the maximum depth over all sub-objectives, 0 when there
// are none.
func MaxDepth(subs []SubObjective) int {
	max := 0
	for _, s := range subs {
		if s.Depth > max {
			max = s.Depth
		}
	}
	return max
}

// AtomicCount returns how many sub-objectives are directly actionable.
func AtomicCount(subs []SubObjective) int {
	n := 0
	for _, s := range subs {
		if s.IsAtomic {
			n++
		}
	}
	return n
}

// CoverageScore estimates how completely the sub-objectives address the
// original objective. Starts at 0.5 and rewards a useful node count, a
// high atomic ratio, acceptance criteria coverage, and hierarchical
// structure. Clamped to [0,1].
func CoverageScore(subs []SubObjective) float64 {
	score := 0.5
	n := len(subs)

	if n >= 3 && n <= 15 {
		score += 0.15
	} else if n > 15 {
		score += 0.10
	}

	if n > 0 {
		if float64(AtomicCount(subs))/float64(n) > 0.4 {
			score += 0.10
		}

		withCriteria := 0
		for _, s := range subs {
			if len(s.AcceptanceCriteria) > 0 {
				withCriteria++
			}
		}
		score += float64(withCriteria) / float64(n) * 0.15
	}

	if MaxDepth(subs) >= 1 {
		score += 0.10
	}

	return clamp01(score)
}

// Confidence estimates decomposition reliability from the analysis
// aggregates. Clamped to [0,1].
func Confidence(a Analysis) float64 {
	c := 0.65

	if a.TotalSubObjectives >= 3 && a.TotalSubObjectives <= 20 {
		c += 0.10
	}
	if a.CoverageScore >= 0.7 {
		c += 0.10
	}
	if a.MaxDepthReached >= 1 {
		c += 0.05
	}
	if a.AtomicCount > 0 {
		c += 0.05
	}
	if a.TotalSubObjectives > 25 {
		c -= 0.10
	}

	return clamp01(c)
}

// Assumptions lists the analysis assumptions: two fixed statements plus
// one per optional input the caller left out.
func Assumptions(actx AssumptionContext) []string {
	out := []string{assumptionValidated, assumptionStructural}
	if !actx.HasConstraints {
		out = append(out, "No explicit constraints were provided; defaults were assumed")
	}
	if !actx.HasExistingComponents {
		out = append(out, "No existing components were declared; a greenfield implementation was assumed")
	}
	if !actx.HasTargetGranularity {
		out = append(out, "No target granularity was requested; standard granularity was assumed")
	}
	return out
}

// Analyze computes the full analysis record for a pass.
func Analyze(subs []SubObjective, actx AssumptionContext) Analysis {
	return Analysis{
		TotalSubObjectives:     len(subs),
		MaxDepthReached:        MaxDepth(subs),
		AtomicCount:            AtomicCount(subs),
		CoverageScore:          CoverageScore(subs),
		ComplexityDistribution: Distribution(subs),
		Assumptions:            Assumptions(actx),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
