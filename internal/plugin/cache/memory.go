// Package cache holds plugin-supplied cache.Cache backends registered into
// internal/plugin's static registry, extending cache.Factory's built-in
// local/repo/s3 dispatch (spec.md §9's plugin interface) with one example:
// an in-process, non-persistent backend useful for a `qik.toml` cache
// entry scoped to a single process lifetime (e.g. CI steps that never
// share a filesystem across runs).
package cache

import (
	"context"
	"sync"

	"qik/internal/cache"
	"qik/internal/config"
	"qik/internal/gitutil"
	"qik/internal/plugin"
)

func init() {
	plugin.RegisterCache("memory", New)
}

// Backend is a process-lifetime cache.Cache: entries never touch disk and
// vanish when the process exits, grounded on internal/cache/local.go's
// Has/Get/Put shape but backed by a map instead of a directory tree.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]*cache.Entry
}

// New satisfies plugin.CacheFactory. workDir/repoDir/git are unused: a
// memory backend has no on-disk or git-tracked location.
func New(cfg *config.Cache, workDir, repoDir string, git *gitutil.Client) (cache.Cache, error) {
	return &Backend{entries: map[string]*cache.Entry{}}, nil
}

func (b *Backend) key(slug, fingerprint string) string { return slug + "/" + fingerprint }

func (b *Backend) Has(ctx context.Context, slug, fingerprint string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[b.key(slug, fingerprint)]
	return ok, nil
}

func (b *Backend) Get(ctx context.Context, slug, fingerprint string) (*cache.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[b.key(slug, fingerprint)], nil
}

func (b *Backend) Put(ctx context.Context, entry *cache.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.key(entry.Slug, entry.Fingerprint)] = entry
	return nil
}
