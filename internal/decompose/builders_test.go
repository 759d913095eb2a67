package decompose

import (
	"reflect"
	"testing"
)

func TestBuildTree(t *testing.T) {
	subs := Decompose("Build and deploy a microservice API", DefaultOptions())
	tree := BuildTree(subs)

	design := findByTitle(subs, "Design Approach")
	impl := findByTitle(subs, "Implement Core Logic")

	wantRoots := []string{}
	for _, s := range subs {
		if s.ParentID == nil {
			wantRoots = append(wantRoots, s.ID)
		}
	}
	if !reflect.DeepEqual(tree[TreeKeyRoot], wantRoots) {
		t.Errorf("tree[root] = %v, want %v", tree[TreeKeyRoot], wantRoots)
	}

	setup := findByTitle(subs, "Set Up Project Structure")
	business := findByTitle(subs, "Implement Business Logic")
	if got := tree[impl.ID]; !reflect.DeepEqual(got, []string{setup.ID, business.ID}) {
		t.Errorf("tree[%s] = %v, want creation-ordered children", impl.ID, got)
	}

	contracts := findByTitle(subs, "Define Interface Contracts")
	if got := tree[design.ID]; !reflect.DeepEqual(got, []string{contracts.ID}) {
		t.Errorf("tree[%s] = %v, want [%s]", design.ID, got, contracts.ID)
	}

	// Leaves never appear as keys.
	if _, ok := tree[setup.ID]; ok {
		t.Errorf("leaf %s has a tree entry", setup.ID)
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	tree := BuildTree(nil)
	if got, ok := tree[TreeKeyRoot]; !ok || len(got) != 0 {
		t.Errorf("empty pass tree = %v, want a bare root key", tree)
	}
}

func TestBuildDependencyGraph(t *testing.T) {
	subs := Decompose("Build and deploy a microservice API", DefaultOptions())
	graph := BuildDependencyGraph(subs)

	if len(graph) != len(subs) {
		t.Fatalf("graph has %d entries, want one per node (%d)", len(graph), len(subs))
	}

	for _, s := range subs {
		want := idsOf(s.Dependencies)
		if !reflect.DeepEqual(graph[s.ID], want) {
			t.Errorf("graph[%s] = %v, want %v", s.ID, graph[s.ID], want)
		}
	}

	// Nodes without dependencies still get an (empty) entry.
	understand := findByTitle(subs, "Understand Requirements")
	if got, ok := graph[understand.ID]; !ok || len(got) != 0 {
		t.Errorf("graph[%s] = %v, want present and empty", understand.ID, got)
	}
}
