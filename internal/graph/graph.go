package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"qik/internal/expand"
	"qik/internal/qikerr"
)

type edgeIndex struct {
	from     int
	to       int
	strict   bool
	isolated bool
	// declaredIsolated is true only for an explicit isolated = true. It is
	// what failure propagation and readiness consult; isolated (true when
	// unset) drives upstream expansion under --isolated.
	declaredIsolated bool
}

// Graph is an immutable, validated DAG of Runnables. Safe for concurrent
// read access, mirroring the teacher's internal/dag/taskgraph.go TaskGraph.
type Graph struct {
	nodesByName map[string]*Node
	nodes       []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending: dependents
	incoming [][]int // by canonical index, sorted ascending: dependencies
	indeg    []int
	depth    []int

	hash Hash
}

// New builds and validates a Graph from a set of expanded Runnables.
// Edges are derived from each runnable's "command"-type dependencies
// (spec §3): a dependency of type command on name X adds edge X -> this
// runnable, carrying the dependency's declared strict/isolated flags.
func New(runnables []*expand.Runnable) (*Graph, error) {
	if len(runnables) == 0 {
		return nil, qikerr.New(qikerr.ConfigParse, "", "no runnables to build a graph from")
	}

	byCommand := map[string][]*expand.Runnable{}
	nodesByName := make(map[string]*Node, len(runnables))
	nodes := make([]*Node, 0, len(runnables))

	for _, r := range runnables {
		if _, exists := nodesByName[r.Name]; exists {
			return nil, qikerr.New(qikerr.ConfigParse, r.Name, "duplicate runnable name")
		}
		node := &Node{Name: r.Name, Runnable: r, DefinitionHash: computeDefHash(r)}
		nodesByName[r.Name] = node
		nodes = append(nodes, node)
		byCommand[r.Command] = append(byCommand[r.Command], r)
	}

	sort.Slice(nodes, func(i, j int) bool {
		ai, aj := nodes[i], nodes[j]
		if ai.DefinitionHash != aj.DefinitionHash {
			return ai.DefinitionHash < aj.DefinitionHash
		}
		return ai.Name < aj.Name
	})
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	nameToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nameToIndex[n.Name] = n.canonicalIndex
	}

	var rawEdges []edgeIndex
	seen := map[edgeIndex]bool{}
	for _, r := range runnables {
		toIdx := nameToIndex[r.Name]
		for _, d := range r.Deps {
			if d.Type != "command" {
				continue
			}
			targets := byCommand[d.Name]
			if len(targets) == 0 {
				return nil, qikerr.New(qikerr.UnknownCommand, d.Name, "command dependency references unknown command")
			}
			isolated := true
			if d.Isolated != nil {
				isolated = *d.Isolated
			}
			for _, target := range targets {
				if target.Name == r.Name {
					return nil, qikerr.New(qikerr.CycleDetected, r.Name, "self-loop via command dependency")
				}
				fromIdx := nameToIndex[target.Name]
				e := edgeIndex{from: fromIdx, to: toIdx, strict: d.Strict, isolated: isolated,
					declaredIsolated: d.Isolated != nil && *d.Isolated}
				key := edgeIndex{from: fromIdx, to: toIdx}
				if seen[key] {
					continue
				}
				seen[key] = true
				rawEdges = append(rawEdges, e)
			}
		}
	}

	sort.Slice(rawEdges, func(i, j int) bool {
		a, b := rawEdges[i], rawEdges[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range rawEdges {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &Graph{
		nodesByName: nodesByName,
		nodes:       nodes,
		edges:       rawEdges,
		outgoing:    outgoing,
		incoming:    incoming,
		indeg:       indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

func (g *Graph) Hash() Hash { return g.hash }

func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodesByName[name]
	return n, ok
}

func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{
			From:     g.nodes[e.from].Name,
			To:       g.nodes[e.to].Name,
			Strict:   e.strict,
			Isolated: e.isolated,
		})
	}
	return out
}

// Depth returns the deterministic topological depth of the named node:
// the length of the longest path from any root.
func (g *Graph) Depth(name string) (int, bool) {
	n, ok := g.nodesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of node
// names. The graph is validated at construction, so this cannot fail.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

// Dependents returns the names of nodes that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.outgoing[n.canonicalIndex]))
	for _, idx := range g.outgoing[n.canonicalIndex] {
		out = append(out, g.nodes[idx].Name)
	}
	return out
}

// Dependencies returns the names of nodes that name directly depends on.
func (g *Graph) Dependencies(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, idx := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[idx].Name)
	}
	return out
}

// StrictDependents returns the names of nodes reachable from name via
// strict edges only, used by Select for downstream expansion whether or
// not `--isolated` is set (spec §4.6: "downstream expansion along strict
// edges").
func (g *Graph) StrictDependents(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	visited := map[int]bool{n.canonicalIndex: true}
	queue := []int{n.canonicalIndex}
	var out []string
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, e := range g.edges {
			if e.from != u || !e.strict || visited[e.to] {
				continue
			}
			visited[e.to] = true
			out = append(out, g.nodes[e.to].Name)
			queue = append(queue, e.to)
		}
	}
	sort.Strings(out)
	return out
}

// edgeIsolated reports whether the edge from -> to (by canonical index) is
// declared isolated=true. Returns false (a real requirement) for any pair
// with no direct edge.
func (g *Graph) edgeIsolated(from, to int) bool {
	for _, e := range g.edges {
		if e.from == from && e.to == to {
			return e.declaredIsolated
		}
	}
	return false
}

func (g *Graph) computeGraphHash() Hash {
	h := sha256.New()
	writeUint(h, uint64(len(g.nodes)))
	for _, n := range g.nodes {
		writeField(h, []byte(n.DefinitionHash))
	}
	writeUint(h, uint64(len(g.edges)))
	for _, e := range g.edges {
		writeUint(h, uint64(e.from))
		writeUint(h, uint64(e.to))
	}
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
