package cache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"qik/internal/gitutil"
)

// initGitRepo initializes a throwaway git repository at dir, grounded on
// mraakashshah-oro's exec_runner_test.go git-init-then-config pattern.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
}

func TestRepo_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	cacheDir := filepath.Join(dir, "._qik", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	c := NewRepo(cacheDir, gitutil.New(dir))
	ctx := context.Background()

	entry := &Entry{
		Slug:        "fmt@mod",
		Fingerprint: "repo-fp",
		Stdout:      []byte("did it"),
		ExitCode:    0,
		Artifacts:   []Artifact{{Path: "out.txt", Content: []byte("artifact bytes")}},
	}

	exists, err := c.Has(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, c.Put(ctx, entry))

	exists, err = c.Has(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.True(t, exists)

	retrieved, err := c.Get(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	require.Equal(t, entry.ExitCode, retrieved.ExitCode)
	require.Equal(t, entry.Stdout, retrieved.Stdout)
}

func TestRepo_PutIsManifestOnly(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	cacheDir := filepath.Join(dir, "._qik", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	c := NewRepo(cacheDir, gitutil.New(dir))
	ctx := context.Background()

	entry := &Entry{
		Slug:        "build",
		Fingerprint: "manifest-fp",
		ExitCode:    0,
		Artifacts:   []Artifact{{Path: "dist/out.bin", Content: []byte("big artifact payload")}},
	}
	require.NoError(t, c.Put(ctx, entry))

	entryDir := c.entryDir(entry.Slug, entry.Fingerprint)

	_, err := os.Stat(filepath.Join(entryDir, "artifacts"))
	require.True(t, os.IsNotExist(err), "Repo.Put must not write an artifacts directory: %v", err)

	retrieved, err := c.Get(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.Len(t, retrieved.Artifacts, 1)
	require.Equal(t, "dist/out.bin", retrieved.Artifacts[0].Path)
	require.Empty(t, retrieved.Artifacts[0].Content, "Repo entries must never carry artifact bytes")
}

func TestRepo_PutTruncatesStdout(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	cacheDir := filepath.Join(dir, "._qik", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	c := NewRepo(cacheDir, gitutil.New(dir))
	ctx := context.Background()

	huge := make([]byte, manifestTruncateLimit*2)
	for i := range huge {
		huge[i] = 'x'
	}

	entry := &Entry{Slug: "noisy", Fingerprint: "trunc-fp", Stdout: huge, ExitCode: 0}
	require.NoError(t, c.Put(ctx, entry))

	retrieved, err := c.Get(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.LessOrEqual(t, len(retrieved.Stdout), manifestTruncateLimit)
}
