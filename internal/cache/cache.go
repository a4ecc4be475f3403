// Package cache implements C3: pluggable storage backends for command
// results keyed by fingerprint. The entry shape and atomic on-disk write
// discipline are grounded on the teacher's internal/core/cache.go
// (CacheEntry, FileCache.Put's temp-dir-then-rename commit); the backend
// taxonomy (Local, Repo, Remote) is grounded on
// original_source/qik/cache.py's Cache/Local/Repo/S3 classes.
package cache

import "context"

// Artifact is a single output file captured alongside a command's result.
type Artifact struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// Entry is a stored command execution result, keyed by (slug, fingerprint)
// per spec §3 and §4.3. Per the teacher's cache-behavior contract, failed
// executions are cacheable: ExitCode may be non-zero and Artifacts may be
// empty when the run never produced its declared outputs.
type Entry struct {
	Slug        string     `json:"slug"`
	Fingerprint string     `json:"fingerprint"`
	Stdout      []byte     `json:"stdout"`
	Stderr      []byte     `json:"stderr"`
	ExitCode    int        `json:"exit_code"`
	Artifacts   []Artifact `json:"artifacts"`
}

// Cache stores and retrieves Entries keyed by (slug, fingerprint) — spec
// §3's `runnable.slug` component of the cache-entry key, added so two
// runnables that happen to resolve identical dependency fingerprints (a
// realistic case for module-parametrized commands with empty glob
// matches) never collide on the same stored entry. Has is documented as a
// pure, non-mutating probe (resolving spec §9's open question on
// cache-status probe purity): it must never populate a local mirror or
// otherwise cause a side effect visible to a later Get.
type Cache interface {
	Has(ctx context.Context, slug, fingerprint string) (bool, error)
	Get(ctx context.Context, slug, fingerprint string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
}
