// Package venv is the built-in "venv" backend registered into
// internal/plugin's static registry. It shells out to `python -m venv`
// and reads the resulting pyvenv.cfg, grounded on
// original_source/qik/venv.py's activation/creation intent (that file
// wasn't part of the retained pack, so the shell-out shape follows the
// standard `python -m venv` contract directly) — treated as a minimal,
// narrow leaf per spec.md §1's statement that venv plugins are external
// collaborators, not a core component.
package venv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"qik/internal/config"
	"qik/internal/plugin"
)

func init() {
	plugin.RegisterVenv("venv", New)
}

// Backend is the built-in venv.VenvPlugin implementation.
type Backend struct {
	Root string // project root, used to derive ._qik/venv/<space>
}

// New satisfies plugin.VenvFactory.
func New(root string, space *config.Space) (plugin.VenvPlugin, error) {
	return &Backend{Root: root}, nil
}

// Dir returns the on-disk location of space's virtualenv.
func (b *Backend) Dir(space *config.Space) string {
	return filepath.Join(b.Root, "._qik", "venv", space.Name())
}

// Ensure creates the virtualenv if it doesn't already exist, matching
// python -m venv's own idempotency (it refuses to recreate an existing,
// intact environment).
func (b *Backend) Ensure(ctx context.Context, space *config.Space) error {
	dir := b.Dir(space)
	if _, err := os.Stat(filepath.Join(dir, "pyvenv.cfg")); err == nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, "python3", "-m", "venv", dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("creating venv at %q: %w: %s", dir, err, out)
	}
	return nil
}

// InjectDeps returns a const dependency variant over the venv's own
// version string (from pyvenv.cfg), so a base-interpreter upgrade
// invalidates every pydist fingerprint computed against it.
func (b *Backend) InjectDeps(space *config.Space) ([]config.DepSpec, error) {
	cfgPath := filepath.Join(b.Dir(space), "pyvenv.cfg")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %q: %w", cfgPath, err)
	}
	version := parsePyvenvVersion(string(data))
	if version == "" {
		return nil, nil
	}
	return []config.DepSpec{{Type: "const", Key: "venv.version", Value: version}}, nil
}

func parsePyvenvVersion(data string) string {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "version") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}
