package decompose

// SchemaVersion identifies the result record layout. Bump on any change to
// the serialized shape.
const SchemaVersion = "1.0.0"

// Default bounds applied when the caller supplies none.
const (
	DefaultMaxDepth         = 3
	DefaultMaxSubObjectives = 20
)

// Complexity classifies the effort a sub-objective implies.
type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// Levels returns all complexity levels in ascending order of effort.
func Levels() []Complexity {
	return []Complexity{
		ComplexityTrivial,
		ComplexitySimple,
		ComplexityModerate,
		ComplexityComplex,
		ComplexityVeryComplex,
	}
}

// DependencyType distinguishes edges that pass information from edges that
// gate execution.
type DependencyType string

const (
	// DependencyData means the dependent consumes the output of the
	// dependency but could start speculatively.
	DependencyData DependencyType = "data"
	// DependencyBlocking means the dependent must not start until the
	// dependency completes.
	DependencyBlocking DependencyType = "blocking"
)

// Dependency is a directed edge from the owning sub-objective to an
// earlier one it depends on.
type Dependency struct {
	DependsOn string         `json:"depends_on"`
	Type      DependencyType `json:"type"`
}

// SubObjective is one node of a decomposition. ParentID is nil for
// top-level nodes. Dependencies may only reference ids assigned earlier in
// the same pass.
type SubObjective struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	ParentID           *string      `json:"parent_id"`
	Depth              int          `json:"depth"`
	Dependencies       []Dependency `json:"dependencies"`
	Tags               []string     `json:"tags"`
	Complexity         Complexity   `json:"complexity"`
	IsAtomic           bool         `json:"is_atomic"`
	AcceptanceCriteria []string     `json:"acceptance_criteria"`
}

// Analysis summarizes one decomposition for scoring consumers.
type Analysis struct {
	TotalSubObjectives     int                `json:"total_sub_objectives"`
	MaxDepthReached        int                `json:"max_depth_reached"`
	AtomicCount            int                `json:"atomic_count"`
	CoverageScore          float64            `json:"coverage_score"`
	ComplexityDistribution map[Complexity]int `json:"complexity_distribution"`
	Assumptions            []string           `json:"assumptions"`
}

// Result is the complete, immutable output of one decomposition pass.
// TreeStructure maps a parent key (TreeKeyRoot for top level) to the
// ordered ids of its direct children; DependencyGraph maps every node id
// to the ordered ids it depends on.
type Result struct {
	DecompositionID   string              `json:"decomposition_id"`
	OriginalObjective string              `json:"original_objective"`
	SubObjectives     []SubObjective      `json:"sub_objectives"`
	TreeStructure     map[string][]string `json:"tree_structure"`
	DependencyGraph   map[string][]string `json:"dependency_graph"`
	Analysis          Analysis            `json:"analysis"`
	Version           string              `json:"version"`
}

// Options bound how much structure a single pass may produce.
type Options struct {
	MaxDepth         int
	MaxSubObjectives int
}

// DefaultOptions returns the standard bounds.
func DefaultOptions() Options {
	return Options{
		MaxDepth:         DefaultMaxDepth,
		MaxSubObjectives: DefaultMaxSubObjectives,
	}
}
