package graph

import (
	"testing"

	"qik/internal/expand"
)

func TestFailAndPropagate_MarksStrictDependentsUpstreamFailed(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	state := NewExecutionState(g)
	state["A"] = Running
	state["B"] = Pending

	if err := FailAndPropagate(g, state, "A"); err != nil {
		t.Fatal(err)
	}
	if state["A"] != Failure {
		t.Errorf("expected A to become FAILURE, got %s", state["A"])
	}
	if state["B"] != UpstreamFailed {
		t.Errorf("expected B to become UPSTREAM_FAILED, got %s", state["B"])
	}
}

func TestFailAndPropagate_IsolatedEdgeDoesNotPropagate(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDepIsolated("A", false, true)),
	})
	if err != nil {
		t.Fatal(err)
	}

	state := NewExecutionState(g)
	state["A"] = Running
	state["B"] = Pending

	if err := FailAndPropagate(g, state, "A"); err != nil {
		t.Fatal(err)
	}
	if state["A"] != Failure {
		t.Errorf("expected A to become FAILURE, got %s", state["A"])
	}
	if state["B"] != Pending {
		t.Errorf("expected B to remain PENDING across an isolated edge, got %s", state["B"])
	}
}

func TestGetReadyNodes_IsolatedEdgeDoesNotRequireUpstreamSuccess(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDepIsolated("A", false, true)),
	})
	if err != nil {
		t.Fatal(err)
	}

	state := NewExecutionState(g)
	state["A"] = Failure
	state["B"] = Pending

	ready := GetReadyNodes(g, state)
	if len(ready) != 1 || ready[0] != "B" {
		t.Fatalf("expected B ready once its isolated upstream finished (even failed), got %v", ready)
	}
}

func TestGetReadyNodes_NonIsolatedEdgeRequiresUpstreamSuccess(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	state := NewExecutionState(g)
	state["A"] = Failure
	state["B"] = Pending

	ready := GetReadyNodes(g, state)
	if len(ready) != 0 {
		t.Fatalf("expected B to stay blocked behind a failed non-isolated upstream, got %v", ready)
	}
}
