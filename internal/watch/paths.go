// paths.go derives the set of filesystem paths a watch run observes from a
// selection of runnables: glob dependency roots, pydist lockfile paths,
// and the active space's site-packages directory, exactly as spec.md §4.8
// enumerates.
package watch

import (
	"path/filepath"
	"strings"

	"qik/internal/config"
	"qik/internal/expand"
)

// PathsFor returns the deduplicated set of paths to watch for changes
// relevant to runnables, given root (the config directory, used to resolve
// each space's venv site-packages location).
func PathsFor(root string, runnables []*expand.Runnable, spaces map[string]*config.Space) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, r := range runnables {
		for _, dep := range r.Deps {
			switch dep.Type {
			case "glob", "":
				add(globRoot(root, dep.Pattern))
			case "pydist":
				if space := spaceFor(r, spaces); space != nil {
					add(filepath.Join(root, "._qik", "venv", space.Name(), "lib"))
					if space.Lockfile != "" {
						add(filepath.Join(root, space.Lockfile))
					}
				}
			case "load":
				add(dep.File)
			}
		}
		if r.Space != "" {
			if space := spaces[r.Space]; space != nil {
				add(filepath.Join(root, "._qik", "venv", space.Name(), "lib"))
				for _, f := range space.Dotenv {
					if filepath.IsAbs(f) {
						add(f)
					} else {
						add(filepath.Join(root, f))
					}
				}
			}
		}
	}
	return out
}

func spaceFor(r *expand.Runnable, spaces map[string]*config.Space) *config.Space {
	if r.Space == "" {
		return nil
	}
	return spaces[r.Space]
}

// globRoot returns the directory portion of pattern up to its first
// wildcard, so a directory watch (which fsnotify requires) still covers
// every match. "**/*.py" watches root itself; "src/**/*.go" watches
// "src".
func globRoot(root, pattern string) string {
	pattern = filepath.ToSlash(pattern)
	parts := strings.Split(pattern, "/")
	var dirParts []string
	for _, p := range parts {
		if strings.ContainsAny(p, "*?[") {
			break
		}
		dirParts = append(dirParts, p)
	}
	if len(dirParts) == 0 {
		return root
	}
	return filepath.Join(root, filepath.Join(dirParts...))
}
