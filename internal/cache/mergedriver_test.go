package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"qik/internal/gitutil"
)

func TestInstallMergeDriver_ConfiguresGitAndGitattributes(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	cacheDir := filepath.Join(dir, "._qik", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	git := gitutil.New(dir)
	ctx := context.Background()

	require.NoError(t, InstallMergeDriver(ctx, git, cacheDir, "/usr/local/bin/qik"))

	attrs, err := os.ReadFile(filepath.Join(dir, ".gitattributes"))
	require.NoError(t, err)
	require.Contains(t, string(attrs), "merge="+mergeDriverName)

	require.NoError(t, InstallMergeDriver(ctx, git, cacheDir, "/usr/local/bin/qik"))
	attrsAgain, err := os.ReadFile(filepath.Join(dir, ".gitattributes"))
	require.NoError(t, err)
	require.Equal(t, string(attrs), string(attrsAgain), "installing twice must not duplicate the attribute line")
}

func TestRunMergeDriver_PreservesOursOnPlainMerge(t *testing.T) {
	dir := t.TempDir()

	oursPath := filepath.Join(dir, "ours")
	theirsPath := filepath.Join(dir, "theirs")
	require.NoError(t, os.WriteFile(oursPath, []byte("ours content"), 0o644))
	require.NoError(t, os.WriteFile(theirsPath, []byte("theirs content"), 0o644))

	require.NoError(t, RunMergeDriver(dir, "", oursPath, theirsPath, "cache/slug/fp/metadata.json"))

	got, err := os.ReadFile(oursPath)
	require.NoError(t, err)
	require.Equal(t, "ours content", string(got))
}

func TestRunMergeDriver_TakesTheirsDuringRebase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "rebase-merge"), 0o755))

	oursPath := filepath.Join(dir, "ours")
	theirsPath := filepath.Join(dir, "theirs")
	require.NoError(t, os.WriteFile(oursPath, []byte("ours content"), 0o644))
	require.NoError(t, os.WriteFile(theirsPath, []byte("theirs content"), 0o644))

	require.NoError(t, RunMergeDriver(dir, "", oursPath, theirsPath, "cache/slug/fp/metadata.json"))

	got, err := os.ReadFile(oursPath)
	require.NoError(t, err)
	require.Equal(t, "theirs content", string(got))
}
