package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"qik/internal/gitutil"
	"qik/internal/qikerr"
)

// Repo is a cache checked into the git repository itself: manifests (exit
// code, truncated output and declared artifact paths, but no artifact
// bytes) live at fixed, predictable paths so results can be
// shared by committing them, at the cost of requiring `git add -N` and a
// merge driver to keep concurrent branches from fighting over cache
// churn. Grounded on original_source/qik/cache.py's Repo class.
type Repo struct {
	// Dir is the public, version-controlled work directory
	// (.qik/cache under the config directory when built by the scheduler).
	Dir string
	Git *gitutil.Client

	mu sync.Mutex
}

func NewRepo(dir string, git *gitutil.Client) *Repo {
	return &Repo{Dir: dir, Git: git}
}

// manifestTruncateLimit bounds the stdout/stderr bytes committed alongside
// a Repo manifest (spec.md §4.3: "the manifest (hash, exit code, truncated
// stdout) is committed"), keeping a commit's diff small regardless of how
// noisy the underlying command is.
const manifestTruncateLimit = 32 * 1024

// manifestOnly strips artifact content from entry, leaving only the
// declared artifact paths, and truncates stdout/stderr — spec.md §4.3's
// Repo contract ("only the manifest ... is committed. Artifacts are not
// stored"), unlike Local's full artifact blobs.
func manifestOnly(entry *Entry) *Entry {
	manifest := &Entry{
		Slug:        entry.Slug,
		Fingerprint: entry.Fingerprint,
		Stdout:      truncate(entry.Stdout, manifestTruncateLimit),
		Stderr:      truncate(entry.Stderr, manifestTruncateLimit),
		ExitCode:    entry.ExitCode,
	}
	for _, a := range entry.Artifacts {
		manifest.Artifacts = append(manifest.Artifacts, Artifact{Path: a.Path})
	}
	return manifest
}

func truncate(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	return b[:limit]
}

// entryDir mirrors Local's, matching spec.md §4.3's on-disk key format.
func (c *Repo) entryDir(slug, fingerprint string) string {
	return filepath.Join(c.Dir, slug, fingerprint)
}

func (c *Repo) Has(_ context.Context, slug, fingerprint string) (bool, error) {
	_, err := os.Stat(filepath.Join(c.entryDir(slug, fingerprint), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	return true, nil
}

// Get reads the manifest at slug/fingerprint directly, rather than
// delegating to Local.Get: a Repo entry never has artifact blobs on disk
// (spec.md §4.3), so there is nothing for Local's artifact-loading step
// to find.
func (c *Repo) Get(_ context.Context, slug, fingerprint string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(c.entryDir(slug, fingerprint), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	return &entry, nil
}

// Put writes a manifest-only entry — hash, exit code, and truncated
// stdout/stderr, with artifact bytes stripped — then marks it
// intent-to-add and records the ._qik cache tree as generated in
// .gitattributes, matching original_source/qik/cache.py's Repo.post_set +
// _add_cache_dir_to_git_attributes. spec.md §4.3 is explicit that Repo
// commits manifests only, never artifact bytes, unlike Local's full
// artifact blobs. The global lock mirrors the original's module-level
// threading.Lock: concurrent `git add` invocations against the same
// index can race.
func (c *Repo) Put(ctx context.Context, entry *Entry) error {
	if err := c.putManifest(manifestOnly(entry)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.entryDir(entry.Slug, entry.Fingerprint)
	paths := []string{dir}
	if err := c.Git.AddIntentToAdd(ctx, paths...); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}
	if err := c.addCacheDirToGitAttributes(ctx); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}
	return nil
}

// putManifest writes only metadata.json at entry's slug/fingerprint
// directory, via the same temp-dir-then-rename discipline as Local.Put,
// but without an artifacts/ subdirectory — spec.md §4.3's "Artifacts are
// not stored" for the Repo backend.
func (c *Repo) putManifest(entry *Entry) error {
	dir := c.entryDir(entry.Slug, entry.Fingerprint)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}

	tmp, err := os.MkdirTemp(parent, "tmp-entry-"+entry.Fingerprint+"-")
	if err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}
	if err := writeFileAtomic(filepath.Join(tmp, "metadata.json"), data, 0o644); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}

	_ = os.RemoveAll(dir)
	if err := os.Rename(tmp, dir); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}
	committed = true
	return nil
}

func (c *Repo) addCacheDirToGitAttributes(ctx context.Context) error {
	gitDir, err := c.Git.GitDir(ctx)
	if err != nil {
		return err
	}
	repoRoot := filepath.Dir(filepath.Clean(gitDir))
	attrsPath := filepath.Join(repoRoot, ".gitattributes")

	rel, err := filepath.Rel(repoRoot, c.Dir)
	if err != nil {
		rel = c.Dir
	}
	ignoreGlob := filepath.ToSlash(filepath.Join(rel, "**", "*"))
	line := ignoreGlob + " linguist-generated=true\n"

	existing, err := os.ReadFile(attrsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.WriteFile(attrsPath, []byte(line), 0o644); err != nil {
			return err
		}
		return c.Git.AddIntentToAdd(ctx, attrsPath)
	}

	if strings.Contains(string(existing), line) {
		return nil
	}
	return os.WriteFile(attrsPath, append([]byte(line), existing...), 0o644)
}
