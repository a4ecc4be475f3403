// Package cli wires spec.md §6's command-line surface to config, expand,
// graph, and scheduler. Cobra (+ pflag) replaces the teacher's hand-rolled
// internal/cli/input.go flag parsing — grounded on mraakashshah-oro and
// roach88-nysm/brutalist both using cobra as their CLI framework, the
// corpus's actual majority idiom, and better suited to spec.md's larger
// flag surface (repeatable -m/-s, 15 flags) than flag.FlagSet.
package cli

import "qik/internal/graph"

// Flags is the parsed CLI surface, exactly spec.md §6's flag list.
type Flags struct {
	Names []string // positional args: command names to select

	Modules     []string // -m, repeatable
	Spaces      []string // -s, repeatable
	Concurrency int      // -n
	Force       bool     // -f: bypass cache reads (still writes)
	Isolated    bool     // --isolated
	Watch       bool     // --watch
	Since       string   // --since <ref>
	List        bool     // --ls
	Fail        bool     // --fail: empty selection is an error
	CacheName   string   // --cache <name>
	CacheWhen   string   // --cache-when <policy>
	CacheStatus string   // --cache-status {warm,cold}
	CacheType   string   // --cache-type <name>
	Profile     string   // -p <profile>
	Verbose     int      // -v {0,1,2}

	Config string // path to qik.toml, defaults to ./qik.toml
}

// Selector builds a graph.Selector from the parsed flags.
func (f Flags) Selector() graph.Selector {
	return graph.Selector{
		Names:       f.Names,
		Modules:     f.Modules,
		CacheTypes:  cacheTypesFor(f.CacheType),
		Since:       f.Since,
		Isolated:    f.Isolated,
		CacheStatus: f.CacheStatus,
	}
}

func cacheTypesFor(t string) []string {
	if t == "" {
		return nil
	}
	return []string{t}
}
