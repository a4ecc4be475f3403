package graph

import (
	"context"
	"testing"

	"qik/internal/expand"
)

func TestSelect_NameSelectionIncludesUpstream(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
		rn("C", cmdDep("B", false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Select(context.Background(), Selector{Names: []string{"C"}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"A": true, "B": true, "C": true}
	if len(got) != len(want) {
		t.Fatalf("expected upstream closure %v, got %v", want, got)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected node %q in selection", n)
		}
	}
}

func TestSelect_IsolatedSkipsUpstreamExpansion(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Select(context.Background(), Selector{Names: []string{"B"}, Isolated: true}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected only B under --isolated, got %v", got)
	}
}

func TestSelect_IsolatedFalseEdgeOverridesIsolatedFlag(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDepIsolated("A", false, false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Select(context.Background(), Selector{Names: []string{"B"}, Isolated: true}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	set := map[string]bool{}
	for _, n := range got {
		set[n] = true
	}
	if !set["A"] {
		t.Fatalf("expected isolated=false edge to pull in A despite --isolated, got %v", got)
	}
}

func TestSelect_DownstreamExpandsAlongStrictEdgesOnly(t *testing.T) {
	g, err := New([]*expand.Runnable{
		rn("A"),
		rn("B", cmdDep("A", true)),
		rn("C", cmdDep("A", false)),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Select(context.Background(), Selector{Names: []string{"A"}, Isolated: true}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	set := map[string]bool{}
	for _, n := range got {
		set[n] = true
	}
	if !set["A"] || !set["B"] {
		t.Errorf("expected A and its strict dependent B in selection, got %v", got)
	}
	if set["C"] {
		t.Errorf("did not expect non-strict dependent C in selection, got %v", got)
	}
}

func TestSelect_CacheTypeFiltersCandidates(t *testing.T) {
	a := rn("A")
	a.Cache = "repo"
	b := rn("B")
	b.Cache = "local"

	g, err := New([]*expand.Runnable{a, b})
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Select(context.Background(), Selector{CacheTypes: []string{"repo"}, Isolated: true}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected only A to match cache type repo, got %v", got)
	}
}
