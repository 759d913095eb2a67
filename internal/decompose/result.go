package decompose

import (
	"github.com/google/uuid"

	"github.com/praxis-lab/Polya/go/decomposer/internal/util"
)

// maxObjectiveEcho bounds how much of the caller's objective text is
// echoed back on the result record.
const maxObjectiveEcho = 200

// Summarize normalizes whitespace in the objective and bounds its length,
// marking truncation with an ellipsis.
func Summarize(objective string) string {
	return util.TruncateString(util.NormalizeWhitespace(objective), maxObjectiveEcho, false)
}

// NewResult assembles the immutable result record for one finished pass.
// The decomposition id is fresh per call; everything else is a pure
// function of the inputs.
func NewResult(objective string, subs []SubObjective, analysis Analysis) Result {
	return Result{
		DecompositionID:   uuid.New().String(),
		OriginalObjective: Summarize(objective),
		SubObjectives:     subs,
		TreeStructure:     BuildTree(subs),
		DependencyGraph:   BuildDependencyGraph(subs),
		Analysis:          analysis,
		Version:           SchemaVersion,
	}
}
