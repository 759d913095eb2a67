package decompose

import (
	"fmt"
	"strings"

	"github.com/praxis-lab/Polya/go/decomposer/internal/util"
)

// Keyword sets gating the conditional extraction steps. Matching is plain
// substring containment over the lowercased objective.
var (
	implementationKeywords = []string{"build", "create", "implement", "develop"}
	interfaceKeywords      = []string{"api", "service", "endpoint", "interface"}
	validationKeywords     = []string{"test", "validate", "verify", "quality"}
	deploymentKeywords     = []string{"deploy", "release", "production", "launch"}
	integrationKeywords    = []string{"integrate", "connect", "migrate"}
)

// builder carries the accumulator state for one extraction pass: the
// emitted nodes, the id counter, and the ids later steps hang
// dependencies on. One builder per call, so concurrent passes share
// nothing.
type builder struct {
	opts    Options
	lowered string

	subs    []SubObjective
	nextID  int
	rootIDs []string

	requirementsID string
	designID       string
	implementID    string
}

// Decompose runs the fixed extraction chain over the objective text and
// returns the sub-objectives in creation order. The step order is part of
// the contract: ids and dependency shapes are reproducible for identical
// input and options.
func Decompose(objective string, opts Options) []SubObjective {
	b := &builder{
		opts:    opts,
		lowered: strings.ToLower(objective),
	}

	steps := []func(){
		b.understandRequirements,
		b.designApproach,
		b.implementCore,
		b.interfaceContracts,
		b.validationStrategy,
		b.planDeployment,
		b.planIntegration,
		b.reviewCompleteness,
	}
	for _, step := range steps {
		step()
	}
	return b.subs
}

// emit is the single node-creation primitive. It refuses to create a node
// when the count budget is exhausted or the node would sit below the depth
// bound; both guards run before an id is allocated. The returned id is
// empty when nothing was created, which callers use to drop dependencies
// on suppressed nodes instead of emitting dangling references.
func (b *builder) emit(n SubObjective) string {
	if len(b.subs) >= b.opts.MaxSubObjectives {
		return ""
	}
	if n.Depth > b.opts.MaxDepth {
		return ""
	}

	b.nextID++
	n.ID = fmt.Sprintf("sub-%d", b.nextID)
	if n.Dependencies == nil {
		n.Dependencies = []Dependency{}
	}
	if n.AcceptanceCriteria == nil {
		n.AcceptanceCriteria = []string{}
	}
	b.subs = append(b.subs, n)
	if n.ParentID == nil {
		b.rootIDs = append(b.rootIDs, n.ID)
	}
	return n.ID
}

func (b *builder) matches(keywords []string) bool {
	return util.ContainsAny(b.lowered, keywords)
}

func (b *builder) understandRequirements() {
	b.requirementsID = b.emit(SubObjective{
		Title:       "Understand Requirements",
		Description: "Analyze the objective and capture the functional and non-functional requirements it implies.",
		Depth:       0,
		Tags:        []string{"requirements", "analysis"},
		Complexity:  ComplexitySimple,
		IsAtomic:    true,
		AcceptanceCriteria: []string{
			"Requirements are written down and unambiguous",
			"Success criteria are identified",
		},
	})
}

func (b *builder) designApproach() {
	b.designID = b.emit(SubObjective{
		Title:        "Design Approach",
		Description:  "Outline the solution structure, its major components, and the order in which they should be built.",
		Depth:        0,
		Dependencies: depOn(b.requirementsID, DependencyData),
		Tags:         []string{"design", "architecture"},
		Complexity:   ComplexityModerate,
		IsAtomic:     false,
		AcceptanceCriteria: []string{
			"Approach covers every captured requirement",
			"Major components and their boundaries are named",
		},
	})
}

func (b *builder) implementCore() {
	if !b.matches(implementationKeywords) {
		return
	}
	b.implementID = b.emit(SubObjective{
		Title:        "Implement Core Logic",
		Description:  "Build the primary functionality the objective describes.",
		Depth:        0,
		Dependencies: depOn(b.designID, DependencyBlocking),
		Tags:         []string{"implementation", "core"},
		Complexity:   ComplexityComplex,
		IsAtomic:     false,
		AcceptanceCriteria: []string{
			"Core paths produce the expected results",
			"Implementation is reviewed and merged",
		},
	})
	if b.implementID == "" {
		return
	}
	b.emit(SubObjective{
		Title:       "Set Up Project Structure",
		Description: "Create the project skeleton, build configuration, and dependency manifest.",
		ParentID:    ref(b.implementID),
		Depth:       1,
		Tags:        []string{"implementation", "setup"},
		Complexity:  ComplexitySimple,
		IsAtomic:    true,
		AcceptanceCriteria: []string{
			"Project builds from a clean checkout",
		},
	})
	b.emit(SubObjective{
		Title:       "Implement Business Logic",
		Description: "Implement the domain rules and core behavior on top of the project skeleton.",
		ParentID:    ref(b.implementID),
		Depth:       1,
		Tags:        []string{"implementation", "business-logic"},
		Complexity:  ComplexityComplex,
		IsAtomic:    true,
		AcceptanceCriteria: []string{
			"Business rules behave as specified",
			"Known edge cases are handled",
		},
	})
}

func (b *builder) interfaceContracts() {
	if !b.matches(interfaceKeywords) {
		return
	}
	if b.designID == "" {
		return
	}
	b.emit(SubObjective{
		Title:       "Define Interface Contracts",
		Description: "Specify the exposed interfaces, their request and response shapes, and their error semantics.",
		ParentID:    ref(b.designID),
		Depth:       1,
		Tags:        []string{"interface", "contracts"},
		Complexity:  ComplexityModerate,
		IsAtomic:    true,
		AcceptanceCriteria: []string{
			"Contracts are documented for every exposed operation",
			"Error semantics are stated per operation",
		},
	})
}

func (b *builder) validationStrategy() {
	if !b.matches(validationKeywords) {
		return
	}
	b.emit(SubObjective{
		Title:        "Establish Validation Strategy",
		Description:  "Decide how the work will be tested and which quality gates apply before completion.",
		Depth:        0,
		Dependencies: depOn(b.designID, DependencyData),
		Tags:         []string{"validation", "quality"},
		Complexity:   ComplexityModerate,
		IsAtomic:     true,
		AcceptanceCriteria: []string{
			"Test levels and tooling are agreed",
			"Quality gates are measurable",
		},
	})
}

func (b *builder) planDeployment() {
	if !b.matches(deploymentKeywords) {
		return
	}
	b.emit(SubObjective{
		Title:        "Plan Deployment",
		Description:  "Plan the rollout, target environments, and operational readiness checks.",
		Depth:        0,
		Dependencies: depOn(b.designID, DependencyData),
		Tags:         []string{"deployment", "operations"},
		Complexity:   ComplexityModerate,
		IsAtomic:     true,
		AcceptanceCriteria: []string{
			"Rollout and rollback steps are documented",
			"Operational owners are identified",
		},
	})
}

func (b *builder) planIntegration() {
	if !b.matches(integrationKeywords) {
		return
	}
	b.emit(SubObjective{
		Title:        "Plan Integration",
		Description:  "Identify the systems involved and define the integration sequence and data flows.",
		Depth:        0,
		Dependencies: depOn(b.designID, DependencyData),
		Tags:         []string{"integration"},
		Complexity:   ComplexityComplex,
		IsAtomic:     false,
		AcceptanceCriteria: []string{
			"Integration points are enumerated",
			"Data and auth flows are mapped",
		},
	})
}

// reviewCompleteness appends the barrier node: it depends on every
// top-level node created before it, and is appended even when that set is
// empty.
func (b *builder) reviewCompleteness() {
	deps := make([]Dependency, 0, len(b.rootIDs))
	for _, id := range b.rootIDs {
		deps = append(deps, Dependency{DependsOn: id, Type: DependencyData})
	}
	b.emit(SubObjective{
		Title:        "Review and Validate Completeness",
		Description:  "Walk the decomposition against the original objective and confirm nothing is missing.",
		Depth:        0,
		Dependencies: deps,
		Tags:         []string{"review", "validation"},
		Complexity:   ComplexitySimple,
		IsAtomic:     true,
		AcceptanceCriteria: []string{
			"Every top-level work item is accounted for",
			"Gaps against the objective are recorded",
		},
	})
}

// depOn builds a single-edge dependency list, or none when the target was
// suppressed by a budget guard.
func depOn(id string, typ DependencyType) []Dependency {
	if id == "" {
		return nil
	}
	return []Dependency{{DependsOn: id, Type: typ}}
}

func ref(id string) *string {
	return &id
}
