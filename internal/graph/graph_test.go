package graph

import (
	"testing"

	"qik/internal/config"
	"qik/internal/expand"
)

func rn(name string, deps ...config.DepSpec) *expand.Runnable {
	return &expand.Runnable{Name: name, Command: name, Exec: "run " + name, Deps: deps}
}

func cmdDep(name string, strict bool) config.DepSpec {
	return config.DepSpec{Type: "command", Name: name, Strict: strict}
}

// cmdDepIsolated builds a command dependency with an explicit isolated
// flag, for tests exercising the isolated=false override (default is
// isolated=true when unset, per graph.go's New).
func cmdDepIsolated(name string, strict, isolated bool) config.DepSpec {
	return config.DepSpec{Type: "command", Name: name, Strict: strict, Isolated: &isolated}
}

func TestGraphConstruction_SingleNode(t *testing.T) {
	g, err := New([]*expand.Runnable{rn("A")})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if g.Hash() == "" {
		t.Fatal("expected non-empty graph hash")
	}
	if got := g.TopologicalOrder(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected topo order: %v", got)
	}
}

func TestGraphConstruction_DependencyChain(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
		rn("C", cmdDep("B", false)),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	order := g.TopologicalOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if !(pos["A"] < pos["B"] && pos["B"] < pos["C"]) {
		t.Fatalf("expected A < B < C, got %v", order)
	}
}

func TestGraphConstruction_DiamondDependency(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
		rn("C", cmdDep("A", false)),
		rn("D", cmdDep("B", false), cmdDep("C", false)),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	order := g.TopologicalOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if !(pos["A"] < pos["B"] && pos["A"] < pos["C"] && pos["B"] < pos["D"] && pos["C"] < pos["D"]) {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestGraphConstruction_CycleRejected(t *testing.T) {
	_, err := New([]*expand.Runnable{
		rn("A", cmdDep("B", false)),
		rn("B", cmdDep("A", false)),
	})
	if err == nil {
		t.Fatal("expected an error for a cyclic graph")
	}
}

func TestGraphConstruction_SelfLoopRejected(t *testing.T) {
	_, err := New([]*expand.Runnable{
		rn("A", cmdDep("A", false)),
	})
	if err == nil {
		t.Fatal("expected an error for a self-loop")
	}
}

func TestGraphConstruction_UnknownDependencyRejected(t *testing.T) {
	_, err := New([]*expand.Runnable{
		rn("A", cmdDep("ghost", false)),
	})
	if err == nil {
		t.Fatal("expected an error for a dependency on an unknown command")
	}
}

func TestGraphHash_StableAcrossInsertionOrder(t *testing.T) {
	g1, err := New([]*expand.Runnable{rn("A"), rn("B", cmdDep("A", false))})
	if err != nil {
		t.Fatal(err)
	}
	g2, err := New([]*expand.Runnable{rn("B", cmdDep("A", false)), rn("A")})
	if err != nil {
		t.Fatal(err)
	}
	if g1.Hash() != g2.Hash() {
		t.Error("graph hash depends on declaration order")
	}
}

func TestStrictDependents_OnlyFollowsStrictEdges(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", true)),
		rn("C", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}
	dependents := g.StrictDependents("A")
	if len(dependents) != 1 || dependents[0] != "B" {
		t.Fatalf("expected only B as a strict dependent of A, got %v", dependents)
	}
}

func TestGetReadyNodes_OnlyRootsInitially(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}
	state := NewExecutionState(g)
	ready := GetReadyNodes(g, state)
	if len(ready) != 1 || ready[0] != "A" {
		t.Fatalf("expected only A ready initially, got %v", ready)
	}
}

func TestFailAndPropagate_MarksDownstreamUpstreamFailed(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
		rn("C", cmdDep("B", false)),
	})
	if err != nil {
		t.Fatal(err)
	}
	state := NewExecutionState(g)
	if err := Transition(state, "A", Pending, Ready); err != nil {
		t.Fatal(err)
	}
	if err := Transition(state, "A", Ready, Running); err != nil {
		t.Fatal(err)
	}
	if err := FailAndPropagate(g, state, "A"); err != nil {
		t.Fatal(err)
	}
	if state["A"] != Failure {
		t.Errorf("expected A to be Failure, got %s", state["A"])
	}
	if state["B"] != UpstreamFailed || state["C"] != UpstreamFailed {
		t.Errorf("expected B and C to be UpstreamFailed, got %s, %s", state["B"], state["C"])
	}
}
