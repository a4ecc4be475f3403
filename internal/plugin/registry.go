// Package plugin implements spec.md §9's static plugin registry: a
// process-init-time, map-backed lookup keyed by a type tag, with no
// runtime loading. Grounded on original_source/qik/cache.py's
// factory/load dispatch and dep.py's factory dispatch, translated from
// Python match statements into Go map lookups guarded by a mutex instead
// of a language-level match exhaustiveness check.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"qik/internal/cache"
	"qik/internal/config"
	"qik/internal/gitutil"
)

// VenvPlugin injects the dependency variants a virtualenv backend
// contributes to a space's fingerprint (spec.md §4.4's virtualenv plugin
// hook).
type VenvPlugin interface {
	InjectDeps(space *config.Space) ([]config.DepSpec, error)
	Ensure(ctx context.Context, space *config.Space) error
}

// VenvFactory builds a VenvPlugin for one space rooted at root (the
// project directory containing ._qik).
type VenvFactory func(root string, space *config.Space) (VenvPlugin, error)

// CacheFactory builds a cache.Cache backend from a named cache config,
// mirroring cache.Factory's own signature so a registered plugin can be
// used interchangeably with the three built-in backends.
type CacheFactory func(cfg *config.Cache, workDir, repoDir string, git *gitutil.Client) (cache.Cache, error)

var (
	mu     sync.Mutex
	venvs  = map[string]VenvFactory{}
	caches = map[string]CacheFactory{}
	deps   = map[string]DepFactory{}
)

func init() {
	// cache.Factory's default case (any type outside its three built-ins)
	// falls through to this registry, so a plugin-supplied cache backend
	// is dispatched identically to local/repo/s3.
	cache.PluginLookup = func(name string) (func(*config.Cache, string, string, *gitutil.Client) (cache.Cache, error), bool) {
		return LookupCache(name)
	}
	// config.Validate consults this to reject a declared `[plugins]` entry
	// whose backend package was never blank-imported into this build —
	// the Go equivalent of the original's dynamic-import failure.
	config.PluginRegistered = func(name string) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := venvs[name]; ok {
			return true
		}
		if _, ok := caches[name]; ok {
			return true
		}
		if _, ok := deps[name]; ok {
			return true
		}
		return false
	}
}

// RegisterVenv adds a venv backend factory under name. Called from
// internal/plugin/venv/*.go init() functions.
func RegisterVenv(name string, f VenvFactory) {
	mu.Lock()
	defer mu.Unlock()
	venvs[name] = f
}

// LookupVenv returns the registered venv factory for name, if any.
func LookupVenv(name string) (VenvFactory, bool) {
	mu.Lock()
	defer mu.Unlock()
	f, ok := venvs[name]
	return f, ok
}

// RegisterCache adds a cache backend factory under type tag name,
// allowing a plugin-supplied backend to extend cache.Factory's built-in
// local/repo/s3 dispatch. Called from internal/plugin/cache/*.go init().
func RegisterCache(name string, f CacheFactory) {
	mu.Lock()
	defer mu.Unlock()
	caches[name] = f
}

// LookupCache returns the registered cache factory for name, if any.
func LookupCache(name string) (CacheFactory, bool) {
	mu.Lock()
	defer mu.Unlock()
	f, ok := caches[name]
	return f, ok
}

// DepFactory resolves one instance of a plugin-defined dependency tag into
// its variant contribution. Called from internal/plugin/dep/*.go init().
type DepFactory func(spec config.DepSpec) (Variant, error)

// Variant mirrors fingerprint.Variant's shape without importing
// internal/fingerprint, avoiding an import cycle (fingerprint could in
// principle consult the dep registry for unrecognized dep types).
type Variant struct {
	Kind  string
	Key   string
	Value string
}

// RegisterDep adds a dependency-type factory under tag.
func RegisterDep(tag string, f DepFactory) {
	mu.Lock()
	defer mu.Unlock()
	deps[tag] = f
}

// LookupDep returns the registered dependency factory for tag, if any.
func LookupDep(tag string) (DepFactory, bool) {
	mu.Lock()
	defer mu.Unlock()
	f, ok := deps[tag]
	return f, ok
}

// ErrUnknownPlugin reports a type tag with no registered factory.
func ErrUnknownPlugin(kind, name string) error {
	return fmt.Errorf("no %s plugin registered for %q", kind, name)
}
