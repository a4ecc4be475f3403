// Package gitutil wraps the git subprocess invocations that back the hash
// source and the --since selector, grounded on
// original_source/qik/hash.py's use of `git ls-files`/`git hash-object`
// and original_source/qik/runner.py's `git diff --name-only`. Per spec §1
// these git invocations are a narrow leaf collaborator; this package is
// deliberately thin.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client runs git subprocesses rooted at Dir.
type Client struct {
	Dir string
}

func New(dir string) *Client { return &Client{Dir: dir} }

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// TrackedAndModified lists tracked-or-modified file paths, repo-root
// relative, matching original_source/qik/hash.py's `git ls-files -cm`
// call used as the basis for glob resolution.
func (c *Client) TrackedAndModified(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ls-files", "-cm")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// HashObject returns the git blob hash of the file's current working-tree
// content, used as a fallback for files that are modified but not yet
// staged (original_source/qik/hash.py falls back to `git hash-object` for
// this case).
func (c *Client) HashObject(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, "hash-object", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// LsTreeHash returns the blob hash git already has recorded for a tracked,
// unmodified path (read from the index via `git ls-files -s`).
func (c *Client) LsTreeHash(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, "ls-files", "-s", "--", path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", fmt.Errorf("no index entry for %q", path)
	}
	return fields[1], nil
}

// DiffNamesSince returns paths changed since ref, matching
// original_source/qik/runner.py's `git diff --name-only <ref> -- .`.
func (c *Client) DiffNamesSince(ctx context.Context, ref string) ([]string, error) {
	out, err := c.run(ctx, "diff", "--name-only", ref, "--", ".")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// RevParseShowToplevel returns the repository root.
func (c *Client) RevParseShowToplevel(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the resolved .git directory, used when installing the
// repo cache's merge driver and .gitattributes entry (spec §4.3).
func (c *Client) GitDir(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.Dir, dir)
	}
	return dir, nil
}

// AddIntentToAdd stages paths with `git add -N`, matching the Repo cache's
// intent-to-add semantics (spec §4.3, original_source/qik/cache.py's
// `Repo.post_set`).
func (c *Client) AddIntentToAdd(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-N"}, paths...)
	_, err := c.run(ctx, args...)
	return err
}

// ConfigSet runs `git config <key> <value>`, used to install the custom
// merge driver (spec §4.3).
func (c *Client) ConfigSet(ctx context.Context, key, value string) error {
	_, err := c.run(ctx, "config", key, value)
	return err
}

func splitNonEmptyLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
