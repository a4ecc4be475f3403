// Package hashsource implements C1: mapping file paths/globs to stable
// content hashes, and resolving python-distribution versions. Grounded on
// original_source/qik/hash.py, using xxhash in place of the original's
// xxh128 for the same reason: a fast, non-cryptographic digest is the
// right tool for large-tree content addressing (see SPEC_FULL.md §4.1).
package hashsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"qik/internal/config"
	"qik/internal/gitutil"
	"qik/internal/qikerr"
)

// FileHash pairs a repository-root-relative, forward-slash path with its
// content digest.
type FileHash struct {
	Path string
	Hash string
}

// Source resolves globs against the git-tracked state of a tree, per
// spec §4.1: files outside the version-control index are excluded.
type Source struct {
	Git  *gitutil.Client
	Root string
}

func New(root string) *Source {
	return &Source{Git: gitutil.New(root), Root: root}
}

// HashFiles resolves the given glob patterns to tracked/modified files and
// their content hashes, normalized to repo-root-relative, forward-slash,
// sorted paths (spec §4.1).
func (s *Source) HashFiles(ctx context.Context, globs []string) ([]FileHash, error) {
	tracked, err := s.Git.TrackedAndModified(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tracked files: %w", err)
	}

	matched := map[string]bool{}
	for _, g := range globs {
		for _, path := range tracked {
			ok, err := matchGlob(g, path)
			if err != nil {
				return nil, err
			}
			if ok {
				matched[path] = true
			}
		}
	}

	paths := make([]string, 0, len(matched))
	for p := range matched {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]FileHash, 0, len(paths))
	for _, p := range paths {
		h, err := s.hashPath(p)
		if err != nil {
			return nil, fmt.Errorf("hashing %q: %w", p, err)
		}
		out = append(out, FileHash{Path: p, Hash: h})
	}
	return out, nil
}

// hashPath hashes a file's current working-tree content directly: content
// addressing must reflect what's actually on disk (including uncommitted
// edits), which is why we read bytes ourselves rather than trust git's
// index object hash for modified files.
func (s *Source) hashPath(relPath string) (string, error) {
	full := filepath.Join(s.Root, filepath.FromSlash(relPath))
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return ContentHash(data), nil
}

// ContentHash is the stable digest used for glob/const contributions
// throughout the resolver.
func ContentHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

func matchGlob(pattern, path string) (bool, error) {
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true, nil
	}
	// filepath.Match doesn't treat "**" specially; fall back to a simple
	// prefix+suffix match on "**" so patterns like "services/**/*.py" work
	// the way the corpus's own glob dependencies expect them to.
	if strings.Contains(pattern, "**") {
		return matchDoubleStar(pattern, path), nil
	}
	return false, nil
}

func matchDoubleStar(pattern, path string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], ""
	if len(parts) == 2 {
		suffix = strings.TrimPrefix(parts[1], "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := strings.TrimPrefix(path, prefix)
	if suffix == "" {
		return true
	}
	matched, err := filepath.Match(suffix, filepath.Base(rest))
	if err == nil && matched {
		return true
	}
	return strings.HasSuffix(rest, suffix)
}

// Missing is the sentinel error returned by HashDist when a distribution's
// version cannot be resolved by any of the three sources in spec §4.1.
var Missing = fmt.Errorf("distribution version not found")

// HashDist resolves a distribution's installed version, consulting in
// order: a configured override map, the space's venv site-packages
// metadata, and a parsed lockfile — spec §4.1. When resolution fails, the
// returned error distinguishes (per spec §7's exit-code taxonomy) a space
// with no lockfile configured at all (LockFileRequired) from one whose
// lockfile simply doesn't declare the distribution (MissingDist for a
// bare/global space, MissingModuleDist for a module-scoped one).
func (s *Source) HashDist(name string, space *config.Space, overrides map[string]string, ignoreMissing bool) (string, error) {
	if v, ok := overrides[name]; ok {
		return v, nil
	}

	if space != nil && space.Venv != "" {
		if v, ok := versionFromSitePackages(s.Root, space, name); ok {
			return v, nil
		}
	}

	if space != nil && space.Lockfile != "" {
		if v, ok := versionFromLockFile(filepath.Join(s.Root, space.Lockfile), name); ok {
			return v, nil
		}
	}

	if ignoreMissing {
		return "!missing", nil
	}

	if space == nil || space.Lockfile == "" {
		return "", qikerr.New(qikerr.LockFileRequired, name, "no lockfile configured to resolve distribution version")
	}

	kind := qikerr.MissingDist
	if len(space.Modules) > 0 {
		kind = qikerr.MissingModuleDist
	}
	return "", qikerr.Wrap(kind, name, Missing)
}

func versionFromSitePackages(root string, space *config.Space, name string) (string, bool) {
	sitePackages := filepath.Join(root, "._qik", "venv", space.Name(), "lib")
	matches, err := filepath.Glob(filepath.Join(sitePackages, "*", "site-packages", normalizeDistName(name)+"-*.dist-info", "METADATA"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "Version:"); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func versionFromLockFile(path, name string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	target := normalizeDistName(name)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		nv := strings.SplitN(line, "==", 2)
		if len(nv) != 2 {
			continue
		}
		if normalizeDistName(nv[0]) == target {
			return strings.TrimSpace(nv[1]), true
		}
	}
	return "", false
}

func normalizeDistName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	prevDash := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return b.String()
}
