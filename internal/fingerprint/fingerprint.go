// Package fingerprint resolves a command's dependency variants into a
// single deterministic digest (C2). The framing discipline — a version
// tag followed by length-prefixed fields — is grounded on the teacher's
// internal/core/hasher.go TaskHasher.ComputeHash; the variant set (glob,
// const, pydist, command) is grounded on original_source/qik/dep.py's
// BaseDep subclasses and Collection aggregation.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"qik/internal/config"
	"qik/internal/hashsource"
	"qik/internal/plugin"
	"qik/internal/qikerr"
)

// versionTag is written as the first field of every fingerprint, so that a
// future incompatible framing change can't silently collide with cached
// entries from an older build (spec §4.2, §9).
const versionTag = "qik/v1"

// Variant is a single resolved dependency contribution: a glob's matched
// files, a const value, a pydist version, another command's own
// fingerprint, a loaded lockfile's hash, or a plugin dep's value (spec §3,
// dependency variants).
type Variant struct {
	Kind  string // "glob" | "const" | "pydist" | "command" | "load", or a plugin dep type
	Key   string // pattern, const key, dist name, command name, or lockfile path
	Value string
}

// Collection is the full resolved dependency set for one runnable,
// mirroring original_source/qik/dep.py's Collection: independently hashed
// sub-groups combined into one digest, plus the two non-dependency axes
// spec.md §3 names as required invalidation triggers: the runnable's own
// resolved shell string and its declared artifact glob list.
type Collection struct {
	Exec      string
	Artifacts []string
	Globs     []hashsource.FileHash
	Consts    []Variant
	Pydists   []Variant
	Cmds      []Variant
	Loads     []Variant
}

// Resolver turns a command's declared DepSpecs into a Collection.
type Resolver struct {
	Hash          *hashsource.Source
	Overrides     map[string]string // pydist version overrides
	IgnoreMissing bool
}

func NewResolver(h *hashsource.Source) *Resolver {
	return &Resolver{Hash: h, Overrides: map[string]string{}}
}

// Resolve walks a command's dependency declarations (plus any config-level
// base deps prepended ahead of them, spec §4.2) and produces a Collection
// carrying exec and artifacts alongside the resolved dependency variants,
// so Collection.Hash() covers every axis spec.md §3 requires: the resolved
// shell string, each dependency's contribution, and the artifact glob
// list. cmdFingerprints supplies the already-computed fingerprint of any
// "command"-type dependency, keyed by command name; the caller is
// responsible for having resolved those in dependency order first.
func (r *Resolver) Resolve(ctx context.Context, exec string, artifacts []string, deps []config.DepSpec, space *config.Space, cmdFingerprints map[string]string) (*Collection, error) {
	col := &Collection{Exec: exec, Artifacts: append([]string(nil), artifacts...)}
	var globPatterns []string

	if space != nil && space.Venv != "" {
		venvDeps, err := venvDeps(r.Hash.Root, space)
		if err != nil {
			return nil, fmt.Errorf("injecting venv deps for space %q: %w", space.Name(), err)
		}
		deps = append(venvDeps, deps...)
	}

	for _, d := range deps {
		switch d.Type {
		case "glob", "":
			globPatterns = append(globPatterns, d.Pattern)
		case "const":
			col.Consts = append(col.Consts, Variant{Kind: "const", Key: d.Key, Value: d.Value})
		case "pydist":
			v, err := r.Hash.HashDist(d.Name, space, r.Overrides, r.IgnoreMissing)
			if err != nil {
				return nil, err
			}
			col.Pydists = append(col.Pydists, Variant{Kind: "pydist", Key: d.Name, Value: v})
		case "command":
			fp, ok := cmdFingerprints[d.Name]
			if !ok {
				return nil, fmt.Errorf("command dependency %q has no resolved fingerprint", d.Name)
			}
			col.Cmds = append(col.Cmds, Variant{Kind: "command", Key: d.Name, Value: fp})
		case "load":
			loaded, err := LoadSerialized(d.File)
			if err != nil {
				return nil, err
			}
			col.Loads = append(col.Loads, loaded.AsVariant(d.File))
		default:
			f, ok := plugin.LookupDep(d.Type)
			if !ok {
				return nil, qikerr.Wrap(qikerr.UnknownPlugin, d.Type, plugin.ErrUnknownPlugin("dependency", d.Type))
			}
			v, err := f(d)
			if err != nil {
				return nil, fmt.Errorf("resolving plugin dependency %q: %w", d.Type, err)
			}
			col.Loads = append(col.Loads, Variant{Kind: v.Kind, Key: v.Key, Value: v.Value})
		}
	}

	if len(globPatterns) > 0 {
		files, err := r.Hash.HashFiles(ctx, globPatterns)
		if err != nil {
			return nil, err
		}
		col.Globs = files
	}

	return col, nil
}

// Hash computes the collection's overall fingerprint: version tag, then
// each sub-group in a fixed order, each entry itself sorted so the digest
// is independent of declaration order (spec §4.2, invariant "identical
// inputs in any order yield the same fingerprint").
func (c *Collection) Hash() string {
	h := sha256.New()
	writeField(h, []byte(versionTag))
	writeField(h, []byte(c.Exec))

	artifacts := append([]string(nil), c.Artifacts...)
	sort.Strings(artifacts)
	writeUint(h, uint64(len(artifacts)))
	for _, a := range artifacts {
		writeField(h, []byte(a))
	}

	globs := append([]hashsource.FileHash(nil), c.Globs...)
	sort.Slice(globs, func(i, j int) bool { return globs[i].Path < globs[j].Path })
	writeUint(h, uint64(len(globs)))
	for _, g := range globs {
		writeField(h, []byte(g.Path))
		writeField(h, []byte(g.Hash))
	}

	writeVariants(h, c.Consts)
	writeVariants(h, c.Pydists)
	writeVariants(h, c.Cmds)
	writeVariants(h, c.Loads)

	return hex.EncodeToString(h.Sum(nil))
}

// venvDeps looks up space's declared venv backend in the plugin registry
// and folds its InjectDeps contribution (spec §4.4's virtualenv plugin
// hook) into the dependency list resolved for every runnable in that
// space, so a base-interpreter upgrade invalidates every affected
// fingerprint without each command declaring the dependency itself.
func venvDeps(root string, space *config.Space) ([]config.DepSpec, error) {
	factory, ok := plugin.LookupVenv(space.Venv)
	if !ok {
		return nil, qikerr.New(qikerr.VenvNotConfigured, space.Venv, "no venv plugin registered")
	}
	backend, err := factory(root, space)
	if err != nil {
		return nil, err
	}
	return backend.InjectDeps(space)
}

func writeVariants(h interface{ Write([]byte) (int, error) }, vs []Variant) {
	sorted := append([]Variant(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	writeUint(h, uint64(len(sorted)))
	for _, v := range sorted {
		writeField(h, []byte(v.Key))
		writeField(h, []byte(v.Value))
	}
}

// writeField writes a length-prefixed byte field, matching the teacher's
// framing (internal/core/hasher.go): an 8-byte big-endian length prefix
// followed by the bytes, so no field boundary is ambiguous.
func writeField(h interface{ Write([]byte) (int, error) }, b []byte) {
	writeUint(h, uint64(len(b)))
	h.Write(b)
}

func writeUint(h interface{ Write([]byte) (int, error) }, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}
