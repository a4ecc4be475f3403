package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"qik/internal/qikerr"
)

// Load reads and parses the qik.toml at path, then validates it, populating
// each Command/Space/Cache's name field from its map key. Module globs are
// not expanded here; expand.Expand does that via Space.ResolveModules.
// Mirrors the teacher's strict-decode idiom
// (internal/cli/graph.go's LoadGraphFromFile): unknown top-level keys are
// rejected so config typos fail loudly instead of silently doing nothing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qikerr.New(qikerr.ConfigNotFound, path, "config file not found")
		}
		return nil, qikerr.Wrap(qikerr.ConfigNotFound, path, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, qikerr.Wrap(qikerr.ConfigParse, path, err)
	}

	for name, c := range cfg.Commands {
		c.name = name
	}
	for name, s := range cfg.Spaces {
		s.name = name
	}
	for name, c := range cfg.Caches {
		c.name = name
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PluginRegistered reports whether name resolves to a compiled-in plugin
// factory (venv, cache, or dep). Set by internal/plugin's init to avoid an
// import cycle (internal/plugin already imports internal/config for its
// factory signatures), mirroring internal/cache.PluginLookup's same
// package-variable-hook pattern.
var PluginRegistered = func(name string) bool { return false }

// Validate checks cross-references between sections: every [plugins] name
// must be registered in this build, every command's cache and space must
// exist, cache-when values must be one of the four policies (spec §3), and
// every cache type must be built in or registered by a plugin.
func (c *Config) Validate() error {
	for name := range c.Plugins {
		if !PluginRegistered(name) {
			return qikerr.New(qikerr.PluginImport, name, "plugin not registered in this build")
		}
	}
	for name, cmd := range c.Commands {
		if cmd.Exec == "" {
			return qikerr.New(qikerr.ConfigParse, name, "command has no exec")
		}
		if cmd.Space != "" {
			if _, ok := c.Spaces[cmd.Space]; !ok {
				return qikerr.New(qikerr.UnknownModule, cmd.Space, fmt.Sprintf("command %q references unknown space", name))
			}
		}
		if cmd.Cache != "" && cmd.Cache != "none" {
			if _, ok := c.Caches[cmd.Cache]; !ok {
				return qikerr.New(qikerr.UnknownCache, cmd.Cache, fmt.Sprintf("command %q references unknown cache", name))
			}
		}
		switch cmd.CacheWhen {
		case "", "success", "finished", "always", "never":
		default:
			return qikerr.New(qikerr.ConfigParse, cmd.CacheWhen, fmt.Sprintf("command %q has invalid cache-when", name))
		}
		for _, d := range cmd.Deps {
			if d.Type == "command" && d.Name == "" {
				return qikerr.New(qikerr.ConfigParse, name, "command dep missing name")
			}
		}
	}
	for name, cache := range c.Caches {
		switch cache.Type {
		case "local", "repo", "s3", "none", "":
		default:
			if !PluginRegistered(cache.Type) {
				return qikerr.New(qikerr.UnknownCache, name, "unknown cache type "+cache.Type)
			}
		}
	}
	return nil
}

// CommandNames returns all configured command names, sorted, for use by
// selectors' "run everything" default (spec §4.6).
func (c *Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveModules expands a space's `modules` glob patterns against `root`
// into concrete module directories, sorted for determinism (grounded on
// the teacher's internal/core/resolver.go glob-expansion idiom).
func (s *Space) ResolveModules(configDir string) ([]string, error) {
	root := s.Root
	if root == "" {
		root = "."
	}
	base := filepath.Join(configDir, root)

	var found []string
	seen := map[string]bool{}
	for _, pattern := range s.Modules {
		matches, err := filepath.Glob(filepath.Join(base, pattern))
		if err != nil {
			return nil, qikerr.Wrap(qikerr.ConfigParse, pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(base, m)
			if err != nil {
				return nil, err
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				found = append(found, rel)
			}
		}
	}
	sort.Strings(found)
	return found, nil
}
