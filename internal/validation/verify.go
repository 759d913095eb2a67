// Package validation verifies structural invariants of built
// decomposition results. The engine maintains these invariants by
// construction, so in production the checks are a strict-mode safety net;
// tests lean on them heavily.
package validation

import (
	"fmt"
	"strings"

	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

// NodeInfo is the minimal shape cycle detection needs.
type NodeInfo struct {
	ID           string
	Dependencies []string
}

// CycleDetectionResult reports Kahn's-algorithm output over a dependency
// graph.
type CycleDetectionResult struct {
	HasCycle     bool
	CyclePath    []string
	SortedOrder  []string
	ErrorMessage string
}

// DetectCycles runs a topological sort over the nodes. Dependencies on
// unknown ids are reported by VerifyResult, not here.
func DetectCycles(nodes []NodeInfo) CycleDetectionResult {
	if len(nodes) == 0 {
		return CycleDetectionResult{SortedOrder: []string{}}
	}

	inDegree := make(map[string]int, len(nodes))
	graph := make(map[string][]string, len(nodes)) // dep -> nodes that depend on it
	known := make(map[string]bool, len(nodes))

	for _, n := range nodes {
		known[n.ID] = true
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			if dep == n.ID || !known[dep] {
				continue
			}
			graph[dep] = append(graph[dep], n.ID)
			inDegree[n.ID]++
		}
	}

	queue := []string{}
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	sorted := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(nodes) {
		return CycleDetectionResult{SortedOrder: sorted}
	}

	var cycleNodes []string
	for id, degree := range inDegree {
		if degree > 0 {
			cycleNodes = append(cycleNodes, id)
		}
	}
	return CycleDetectionResult{
		HasCycle:     true,
		CyclePath:    cycleNodes,
		ErrorMessage: fmt.Sprintf("circular dependency involving: %s", strings.Join(cycleNodes, ", ")),
	}
}

// VerifyResult checks every structural invariant of a built result:
// unique ids, no dangling dependency references, parent/depth
// consistency, bound respect, and an acyclic dependency graph.
func VerifyResult(res *decompose.Result, opts decompose.Options) error {
	byID := make(map[string]*decompose.SubObjective, len(res.SubObjectives))
	for i := range res.SubObjectives {
		s := &res.SubObjectives[i]
		if s.ID == "" {
			return fmt.Errorf("sub-objective %d has empty id", i)
		}
		if _, dup := byID[s.ID]; dup {
			return fmt.Errorf("duplicate sub-objective id %q", s.ID)
		}
		byID[s.ID] = s
	}

	if len(res.SubObjectives) > opts.MaxSubObjectives {
		return fmt.Errorf("%d sub-objectives exceed bound %d", len(res.SubObjectives), opts.MaxSubObjectives)
	}

	seen := make(map[string]bool, len(res.SubObjectives))
	for _, s := range res.SubObjectives {
		if s.Depth < 0 {
			return fmt.Errorf("sub-objective %s has negative depth %d", s.ID, s.Depth)
		}
		if s.Depth > opts.MaxDepth {
			return fmt.Errorf("sub-objective %s depth %d exceeds bound %d", s.ID, s.Depth, opts.MaxDepth)
		}

		if s.ParentID == nil {
			if s.Depth != 0 {
				return fmt.Errorf("root sub-objective %s has depth %d", s.ID, s.Depth)
			}
		} else {
			parent, ok := byID[*s.ParentID]
			if !ok {
				return fmt.Errorf("sub-objective %s references unknown parent %q", s.ID, *s.ParentID)
			}
			if parent.Depth != s.Depth-1 {
				return fmt.Errorf("sub-objective %s depth %d does not follow parent %s depth %d",
					s.ID, s.Depth, parent.ID, parent.Depth)
			}
			if !seen[*s.ParentID] {
				return fmt.Errorf("sub-objective %s references parent %q created later", s.ID, *s.ParentID)
			}
		}

		for _, d := range s.Dependencies {
			if d.DependsOn == s.ID {
				return fmt.Errorf("sub-objective %s depends on itself", s.ID)
			}
			if !seen[d.DependsOn] {
				return fmt.Errorf("sub-objective %s depends on %q which is not an earlier id", s.ID, d.DependsOn)
			}
		}
		seen[s.ID] = true
	}

	// The creation-order checks above already rule cycles out; running
	// Kahn's over the built graph verifies the serialized graph shape
	// independently of construction order.
	nodes := make([]NodeInfo, 0, len(res.SubObjectives))
	for _, s := range res.SubObjectives {
		nodes = append(nodes, NodeInfo{ID: s.ID, Dependencies: res.DependencyGraph[s.ID]})
	}
	if det := DetectCycles(nodes); det.HasCycle {
		return fmt.Errorf("dependency graph: %s", det.ErrorMessage)
	}

	return nil
}
