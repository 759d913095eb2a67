package validation

import (
	"testing"

	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

func builtResult(t *testing.T, objective string, opts decompose.Options) decompose.Result {
	t.Helper()
	subs := decompose.Decompose(objective, opts)
	return decompose.NewResult(objective, subs, decompose.Analyze(subs, decompose.AssumptionContext{}))
}

func TestVerifyResultAcceptsEngineOutput(t *testing.T) {
	objectives := []string{
		"Build and deploy a microservice API",
		"Write documentation",
		"Integrate the billing system and migrate historical data",
		"",
	}
	for _, obj := range objectives {
		opts := decompose.DefaultOptions()
		res := builtResult(t, obj, opts)
		if err := VerifyResult(&res, opts); err != nil {
			t.Errorf("objective %q: %v", obj, err)
		}
	}
}

func TestVerifyResultAcceptsBoundedOutput(t *testing.T) {
	opts := decompose.Options{MaxDepth: 0, MaxSubObjectives: 2}
	res := builtResult(t, "build and test everything", opts)
	if err := VerifyResult(&res, opts); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyResultRejectsDuplicateIDs(t *testing.T) {
	opts := decompose.DefaultOptions()
	res := builtResult(t, "write documentation", opts)
	res.SubObjectives[1].ID = res.SubObjectives[0].ID

	if err := VerifyResult(&res, opts); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestVerifyResultRejectsForwardDependency(t *testing.T) {
	opts := decompose.DefaultOptions()
	res := builtResult(t, "write documentation", opts)
	res.SubObjectives[0].Dependencies = []decompose.Dependency{
		{DependsOn: res.SubObjectives[2].ID, Type: decompose.DependencyData},
	}

	if err := VerifyResult(&res, opts); err == nil {
		t.Fatal("expected forward reference error")
	}
}

func TestVerifyResultRejectsDepthMismatch(t *testing.T) {
	opts := decompose.DefaultOptions()
	res := builtResult(t, "build a thing", opts)

	// Find a depth-1 child and corrupt its depth.
	for i := range res.SubObjectives {
		if res.SubObjectives[i].ParentID != nil {
			res.SubObjectives[i].Depth = 3
			break
		}
	}
	if err := VerifyResult(&res, opts); err == nil {
		t.Fatal("expected depth mismatch error")
	}
}

func TestVerifyResultRejectsExceededBounds(t *testing.T) {
	opts := decompose.DefaultOptions()
	res := builtResult(t, "write documentation", opts)

	tight := decompose.Options{MaxDepth: 3, MaxSubObjectives: 1}
	if err := VerifyResult(&res, tight); err == nil {
		t.Fatal("expected bound error")
	}
}

func TestDetectCycles(t *testing.T) {
	acyclic := []NodeInfo{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"a", "b"}},
	}
	if det := DetectCycles(acyclic); det.HasCycle {
		t.Fatalf("false positive: %s", det.ErrorMessage)
	} else if len(det.SortedOrder) != 3 {
		t.Fatalf("expected 3 sorted nodes, got %d", len(det.SortedOrder))
	}

	cyclic := []NodeInfo{
		{ID: "a", Dependencies: []string{"c"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	}
	if det := DetectCycles(cyclic); !det.HasCycle {
		t.Fatal("missed cycle")
	}

	if det := DetectCycles(nil); det.HasCycle || len(det.SortedOrder) != 0 {
		t.Fatal("empty graph must be trivially acyclic")
	}
}

func TestDetectCyclesIgnoresSelfAndUnknown(t *testing.T) {
	nodes := []NodeInfo{
		{ID: "a", Dependencies: []string{"a", "ghost"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	if det := DetectCycles(nodes); det.HasCycle {
		t.Fatalf("self/unknown deps must not register as cycles: %s", det.ErrorMessage)
	}
}
