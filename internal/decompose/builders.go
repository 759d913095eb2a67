package decompose

// TreeKeyRoot is the tree_structure key that collects top-level ids.
const TreeKeyRoot = "root"

// BuildTree groups sub-objectives by parent. Top-level ids land under
// TreeKeyRoot; every other key is a parent id mapping to its direct
// children in creation order.
func BuildTree(subs []SubObjective) map[string][]string {
	tree := map[string][]string{TreeKeyRoot: {}}
	for _, s := range subs {
		key := TreeKeyRoot
		if s.ParentID != nil {
			key = *s.ParentID
		}
		tree[key] = append(tree[key], s.ID)
	}
	return tree
}

// BuildDependencyGraph maps every sub-objective id to the ordered ids it
// depends on. Edge types are dropped here; consumers that need them read
// the sub-objective records.
func BuildDependencyGraph(subs []SubObjective) map[string][]string {
	graph := make(map[string][]string, len(subs))
	for _, s := range subs {
		ids := make([]string, 0, len(s.Dependencies))
		for _, d := range s.Dependencies {
			ids = append(ids, d.DependsOn)
		}
		graph[s.ID] = ids
	}
	return graph
}
