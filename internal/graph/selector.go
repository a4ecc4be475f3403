// selector.go implements C6: filtering a Graph down to a named subset,
// then expanding it to include upstream dependencies (always, unless
// --isolated) and downstream dependents along strict edges. Grounded on
// original_source/qik/runner.py's Graph.filter_*/filter family:
// filter_cache_types, filter_cache_status, filter_since/filter_changes,
// filter_modules, and the upstream/downstream closure in filter() itself.
package graph

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"qik/internal/gitutil"
)

// Selector narrows a Graph to the nodes matching one or more named
// criteria, intersected, then closed over upstream/downstream per Isolated.
type Selector struct {
	Names       []string // command names, or exact runnable names
	Modules     []string // module names
	CacheTypes  []string // "local", "repo", "s3", "none"
	Since       string   // git ref; matched nodes are those whose glob deps touch changed files
	Isolated    bool     // if true, skip upstream expansion (spec §4.6)
	CacheStatus string   // "warm" | "cold" | ""
}

// CacheStatusFunc reports whether a node's fingerprint is currently
// cached, letting Select stay independent of any concrete cache backend.
type CacheStatusFunc func(name string) (hit bool, err error)

// Select returns the node names matching sel, closed over upstream
// dependencies (every edge, or under sel.Isolated only edges declared
// isolated=false) and downstream dependents along strict edges
// (always) — matching original_source/qik/runner.py's filter(), which
// unions _upstream and _downstream into the view regardless of which
// filter produced the initial set.
func (g *Graph) Select(ctx context.Context, sel Selector, cacheStatus CacheStatusFunc, git *gitutil.Client) ([]string, error) {
	matched, err := g.matchInitial(ctx, sel, cacheStatus, git)
	if err != nil {
		return nil, err
	}

	view := map[string]bool{}
	for _, name := range matched {
		view[name] = true
	}

	for _, name := range matched {
		for _, up := range g.allUpstream(name, sel.Isolated) {
			view[up] = true
		}
	}
	for _, name := range matched {
		for _, down := range g.StrictDependents(name) {
			view[down] = true
		}
	}

	out := make([]string, 0, len(view))
	for name := range view {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// matchInitial intersects every non-empty selector criterion, mirroring
// the original's practice of chaining filter_* calls: each criterion that
// was provided narrows the candidate set further.
func (g *Graph) matchInitial(ctx context.Context, sel Selector, cacheStatus CacheStatusFunc, git *gitutil.Client) ([]string, error) {
	candidates := map[string]bool{}
	for _, n := range g.nodes {
		candidates[n.Name] = true
	}

	if len(sel.Names) > 0 {
		named := map[string]bool{}
		for _, n := range sel.Names {
			named[n] = true
		}
		matched := map[string]bool{}
		for _, n := range g.nodes {
			if named[n.Name] || named[n.Runnable.Command] {
				matched[n.Name] = true
			}
		}
		intersect(candidates, matched)
	}

	if len(sel.Modules) > 0 {
		modules := map[string]bool{}
		for _, m := range sel.Modules {
			modules[m] = true
		}
		matched := map[string]bool{}
		for _, n := range g.nodes {
			if n.Runnable.Module == nil || modules[n.Runnable.Module.Name] {
				matched[n.Name] = true
			}
		}
		intersect(candidates, matched)
	}

	if len(sel.CacheTypes) > 0 {
		types := map[string]bool{}
		for _, t := range sel.CacheTypes {
			types[strings.ToLower(t)] = true
		}
		matched := map[string]bool{}
		for _, n := range g.nodes {
			cacheType := n.Runnable.Cache
			if cacheType == "" {
				cacheType = "local"
			}
			if types[strings.ToLower(cacheType)] {
				matched[n.Name] = true
			}
		}
		intersect(candidates, matched)
	}

	if sel.CacheStatus != "" && cacheStatus != nil {
		matched := map[string]bool{}
		for _, n := range g.nodes {
			hit, err := cacheStatus(n.Name)
			if err != nil {
				return nil, err
			}
			wantHit := sel.CacheStatus == "warm"
			if hit == wantHit {
				matched[n.Name] = true
			}
		}
		intersect(candidates, matched)
	}

	if sel.Since != "" && git != nil {
		matched, err := g.matchSince(ctx, sel.Since, git)
		if err != nil {
			return nil, err
		}
		intersect(candidates, matched)
	}

	out := make([]string, 0, len(candidates))
	for name := range candidates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// matchSince finds nodes whose glob dependencies overlap files changed
// since ref, matching original_source/qik/runner.py's filter_since (a
// `git diff --name-only <ref>` feeding filter_changes' regex match).
func (g *Graph) matchSince(ctx context.Context, ref string, git *gitutil.Client) (map[string]bool, error) {
	changed, err := git.DiffNamesSince(ctx, ref)
	if err != nil {
		return nil, err
	}
	matched := map[string]bool{}
	for _, n := range g.nodes {
		for _, dep := range n.Runnable.Deps {
			if dep.Type != "glob" && dep.Type != "" {
				continue
			}
			re, err := globToRegexp(dep.Pattern)
			if err != nil {
				continue
			}
			for _, f := range changed {
				if re.MatchString(f) {
					matched[n.Name] = true
					break
				}
			}
		}
	}
	return matched, nil
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// allUpstream returns name's transitive dependencies (spec §4.6: "upstream
// expansion unless --isolated; edges with isolated=false override
// --isolated and are always included"). When isolatedFlag is false (no
// --isolated), every upstream edge is followed regardless of its own
// Isolated flag. When true, only edges explicitly marked isolated=false are
// followed — matching the per-edge override, not the coarser
// all-or-nothing behavior of skipping expansion entirely.
func (g *Graph) allUpstream(name string, isolatedFlag bool) []string {
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
			if e.to != u {
				continue
			}
			if isolatedFlag && e.isolated {
				continue
			}
			if visited[e.from] {
				continue
			}
			visited[e.from] = true
			out = append(out, g.nodes[e.from].Name)
			queue = append(queue, e.from)
		}
	}
	return out
}

func intersect(dst, other map[string]bool) {
	for k := range dst {
		if !other[k] {
			delete(dst, k)
		}
	}
}
