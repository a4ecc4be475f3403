package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"qik/internal/qikerr"
)

// Local stores entries under a private working directory (._qik/cache
// when built by the scheduler), never checked into version control.
// Grounded directly on the teacher's FileCache: one directory per slug and
// fingerprint, metadata.json plus numbered artifact blobs,
// temp-dir-then-rename commit.
type Local struct {
	Dir string
}

func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// entryDir mirrors spec.md §4.3's on-disk key format exactly:
// `<dir>/<slug>/<fingerprint>/`.
func (c *Local) entryDir(slug, fingerprint string) string {
	return filepath.Join(c.Dir, slug, fingerprint)
}

func (c *Local) Has(_ context.Context, slug, fingerprint string) (bool, error) {
	_, err := os.Stat(filepath.Join(c.entryDir(slug, fingerprint), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	return true, nil
}

func (c *Local) Get(_ context.Context, slug, fingerprint string) (*Entry, error) {
	dir := c.entryDir(slug, fingerprint)
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
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

	artifactsDir := filepath.Join(dir, "artifacts")
	for i := range entry.Artifacts {
		blob := filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i))
		content, err := os.ReadFile(blob)
		if err != nil {
			return nil, qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
		}
		entry.Artifacts[i].Content = content
	}
	return &entry, nil
}

func (c *Local) Put(_ context.Context, entry *Entry) error {
	if entry == nil {
		return qikerr.New(qikerr.CacheIO, "", "nil cache entry")
	}

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

	artifactsDir := filepath.Join(tmp, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
	}

	for i, a := range entry.Artifacts {
		blob := filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i))
		if err := writeFileAtomic(blob, a.Content, 0o644); err != nil {
			return qikerr.Wrap(qikerr.CacheIO, entry.Fingerprint, err)
		}
	}

	meta := Entry{
		Slug:        entry.Slug,
		Fingerprint: entry.Fingerprint,
		Stdout:      entry.Stdout,
		Stderr:      entry.Stderr,
		ExitCode:    entry.ExitCode,
		Artifacts:   make([]Artifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		meta.Artifacts[i] = Artifact{Path: a.Path}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
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

// writeFileAtomic writes via a same-directory temp file plus rename, so a
// crash mid-write can never leave a truncated file at the canonical path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(name)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
