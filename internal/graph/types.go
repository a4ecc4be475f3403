// Package graph implements C5 (dependency graph construction) and C6
// (selector filtering). Node identity, canonical ordering, cycle
// detection, and depth computation are ported directly from the
// teacher's internal/dag/{types,taskgraph,validate}.go — that package's
// algorithms are domain-agnostic and needed no behavioral change, only a
// new node payload (an expand.Runnable instead of a core.Task).
package graph

import "qik/internal/expand"

// Hash is the deterministic identity of a Graph.
type Hash string

func (h Hash) String() string { return string(h) }

// DefHash is the deterministic identity of a node's runnable definition.
type DefHash string

func (h DefHash) String() string { return string(h) }

// Edge represents a dependency relation: To depends on From, i.e. From
// must finish before To may run, and must succeed unless the dependency
// was declared `isolated = true`. Strict marks a "command" dependency declared with
// `strict = true` (spec §3): a strict edge additionally participates in
// downstream expansion when its upstream changes.
type Edge struct {
	From     string
	To       string
	Strict   bool
	Isolated bool
}

// Node is an immutable node in the Graph.
type Node struct {
	Name           string
	Runnable       *expand.Runnable
	DefinitionHash DefHash
	canonicalIndex int
}

func (n *Node) CanonicalIndex() int { return n.canonicalIndex }
