package graph

import (
	"container/heap"
	"fmt"
	"sort"
)

// State is the runtime execution state of a node, per spec §3's state
// machine: Pending -> Ready -> Running -> {Success, Failure, Skipped,
// UpstreamFailed}. This generalizes the teacher's six-state
// PENDING/RUNNING/COMPLETED/FAILED/SKIPPED/CACHED (internal/dag/state.go)
// by splitting dependency-satisfaction (Ready) out from dispatch
// (Running), and distinguishing a propagated upstream failure from an
// otherwise-skipped node.
type State string

const (
	Pending        State = "PENDING"
	Ready          State = "READY"
	Running        State = "RUNNING"
	Success        State = "SUCCESS"
	Failure        State = "FAILURE"
	Skipped        State = "SKIPPED"
	UpstreamFailed State = "UPSTREAM_FAILED"
)

// IsTerminal reports whether a state will never transition again.
func IsTerminal(s State) bool {
	switch s {
	case Success, Failure, Skipped, UpstreamFailed:
		return true
	default:
		return false
	}
}

// SatisfiesDependents reports whether s lets a dependent proceed to Ready.
func SatisfiesDependents(s State) bool {
	return s == Success
}

// ExecutionState maps node name to its current State for one run — the
// graph definition stays immutable across runs, only this map changes.
type ExecutionState map[string]State

// NewExecutionState seeds every node in g as Pending.
func NewExecutionState(g *Graph) ExecutionState {
	st := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		st[n.Name] = Pending
	}
	return st
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Pending:
		return to == Ready || to == Skipped || to == UpstreamFailed
	case Ready:
		return to == Running || to == Skipped
	case Running:
		return to == Success || to == Failure
	default:
		return false
	}
}

// Transition performs a validated state change, mutating state only if
// the transition is legal — mirrors the teacher's Transition in
// internal/dag/state_machine.go.
func Transition(state ExecutionState, name string, from, to State) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown node in execution state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

// GetReadyNodes returns nodes eligible to move from Pending to Ready: all
// of their dependencies are in a state that SatisfiesDependents, except a
// dependency reached only via an isolated=true edge, which per spec §4.7
// carries "no transitive requirement" — it only has to finish (any
// terminal state), not succeed. Sorted by (depth asc, name asc) for
// deterministic dispatch order, exactly as the teacher's GetReadyTasks
// does.
func GetReadyNodes(g *Graph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	var ready []string
	for _, node := range g.nodes {
		if state[node.Name] != Pending {
			continue
		}
		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			parentState := state[g.nodes[parentIdx].Name]
			if SatisfiesDependents(parentState) {
				continue
			}
			if g.edgeIsolated(parentIdx, node.canonicalIndex) && IsTerminal(parentState) {
				continue
			}
			depsOK = false
			break
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad, _ := g.Depth(a)
		bd, _ := g.Depth(b)
		if ad != bd {
			return ad < bd
		}
		return a < b
	})
	return ready
}

// FailAndPropagate transitions name from Running to Failure and
// transitively marks every downstream dependent still Pending or Ready
// as UpstreamFailed, in deterministic canonical-index order. A dependent
// reached only through isolated=true edges is left alone — spec §4.7:
// "unless the edge is isolated=true (no transitive requirement — downstream
// still runs)" — so propagation does not cross an isolated edge at all;
// it only continues past a node that a non-isolated edge actually reached.
// Ported from the teacher's FailAndPropagate (internal/dag/state_machine.go).
func FailAndPropagate(g *Graph, state ExecutionState, name string) error {
	node, ok := g.nodesByName[name]
	if !ok {
		return fmt.Errorf("unknown node: %q", name)
	}

	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown node in execution state: %q", name)
	}
	if cur != Running && cur != Failure {
		return fmt.Errorf("cannot fail %q from state %s", name, cur)
	}
	if cur == Running {
		state[name] = Failure
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		if !g.edgeIsolated(start, d) {
			heap.Push(hq, d)
		}
	}

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		downstreamName := g.nodes[u].Name
		st, ok := state[downstreamName]
		if !ok {
			return fmt.Errorf("missing state for %q", downstreamName)
		}

		switch st {
		case Pending, Ready:
			state[downstreamName] = UpstreamFailed
		case Running:
			return fmt.Errorf("invariant violation: downstream node %q is RUNNING during failure propagation", downstreamName)
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] && !g.edgeIsolated(u, v) {
				heap.Push(hq, v)
			}
		}
	}
	return nil
}
