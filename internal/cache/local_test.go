package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocal_SameFingerprintPreventsReExecution(t *testing.T) {
	c := NewLocal(t.TempDir())
	ctx := context.Background()

	slug, fp := "fmt", "abc123def456"

	exists, err := c.Has(ctx, slug, fp)
	require.NoError(t, err)
	require.False(t, exists, "fingerprint should not exist initially")

	entry := &Entry{Slug: slug, Fingerprint: fp, Stdout: []byte("output"), Stderr: []byte("error"), ExitCode: 0}
	require.NoError(t, c.Put(ctx, entry))

	exists, err = c.Has(ctx, slug, fp)
	require.NoError(t, err)
	require.True(t, exists, "fingerprint should exist after Put")
}

func TestLocal_DifferentSlugsSameFingerprintDoNotCollide(t *testing.T) {
	c := NewLocal(t.TempDir())
	ctx := context.Background()

	fp := "shared-fp"
	require.NoError(t, c.Put(ctx, &Entry{Slug: "fmt@a", Fingerprint: fp, ExitCode: 0}))

	exists, err := c.Has(ctx, "fmt@b", fp)
	require.NoError(t, err)
	require.False(t, exists, "an entry stored under one slug must not be visible under another")

	entry, err := c.Get(ctx, "fmt@b", fp)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestLocal_ReplayBitForBitIdentical(t *testing.T) {
	c := NewLocal(t.TempDir())
	ctx := context.Background()

	original := &Entry{
		Slug:        "build",
		Fingerprint: "test-fp",
		Stdout:      []byte("exact stdout content\nwith newlines\n"),
		Stderr:      []byte("exact stderr content\n"),
		ExitCode:    42,
		Artifacts: []Artifact{
			{Path: "output/file1.txt", Content: []byte("file1 content")},
			{Path: "output/file2.bin", Content: []byte{0x00, 0x01, 0x02, 0xff}},
		},
	}

	require.NoError(t, c.Put(ctx, original))

	retrieved, err := c.Get(ctx, original.Slug, original.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	require.Equal(t, original.Stdout, retrieved.Stdout)
	require.Equal(t, original.Stderr, retrieved.Stderr)
	require.Equal(t, original.ExitCode, retrieved.ExitCode)
	require.Len(t, retrieved.Artifacts, len(original.Artifacts))
	for i, a := range original.Artifacts {
		require.Equal(t, a.Path, retrieved.Artifacts[i].Path)
		require.Equal(t, a.Content, retrieved.Artifacts[i].Content)
	}
}

func TestLocal_FailedExecutionsAreCacheableWithoutArtifacts(t *testing.T) {
	c := NewLocal(t.TempDir())
	ctx := context.Background()

	entry := &Entry{Slug: "test", Fingerprint: "failed-fp", Stdout: []byte("partial"), ExitCode: 1}
	require.NoError(t, c.Put(ctx, entry))

	retrieved, err := c.Get(ctx, entry.Slug, entry.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, 1, retrieved.ExitCode)
	require.Empty(t, retrieved.Artifacts)
}

func TestLocal_GetMissingFingerprintReturnsNil(t *testing.T) {
	c := NewLocal(t.TempDir())
	ctx := context.Background()

	entry, err := c.Get(ctx, "test", "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, entry)
}
