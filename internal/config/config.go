// Package config defines the declarative configuration schema for qik and
// loads it from a TOML file. The resolved Config is threaded explicitly
// through every downstream component; there is no process-wide mutable
// singleton (spec §9, "Global configuration state").
package config

import "time"

// Config is the fully-parsed, unvalidated configuration file.
type Config struct {
	Commands map[string]*Command `toml:"commands"`
	Spaces   map[string]*Space   `toml:"spaces"`
	Caches   map[string]*Cache   `toml:"caches"`
	Plugins  map[string]string   `toml:"plugins"`
	Ctx      map[string]map[string]map[string]string `toml:"ctx"`
	Vars     []Var                                    `toml:"vars"`
	Base     Base                                     `toml:"base"`
}

// Base holds configuration-scope dependencies prepended to every runnable's
// dependency list (spec §4.2).
type Base struct {
	Deps []DepSpec `toml:"deps"`
}

// Command is a declarative command definition (spec §3 "Command
// definition").
type Command struct {
	Exec      string    `toml:"exec"`
	Deps      []DepSpec `toml:"deps"`
	Artifacts []string  `toml:"artifacts"`
	Cache     string    `toml:"cache"`
	CacheWhen string    `toml:"cache-when"`
	Space     string    `toml:"space"`
	Isolated  *bool     `toml:"isolated"`
	Timeout   string    `toml:"timeout"`

	// name is populated by Load from the map key; not present in TOML.
	name string
}

// Name returns the command's declared name (the `[commands.NAME]` key).
func (c *Command) Name() string { return c.name }

// SetName sets the command's declared name; exposed for callers building a
// Config programmatically rather than via Load.
func (c *Command) SetName(name string) { c.name = name }

// ParsedTimeout parses Timeout, returning (0, false) when unset — spec §9's
// open question on per-runnable timeouts: absent means "none", not a
// default duration.
func (c *Command) ParsedTimeout() (time.Duration, bool, error) {
	if c.Timeout == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}

// Space is an isolation unit pairing a virtualenv, dotenv files, and a set
// of modules (spec §3 GLOSSARY "Space").
type Space struct {
	Venv     string   `toml:"venv"`
	Dotenv   []string `toml:"dotenv"`
	Lockfile string   `toml:"lockfile"`
	Modules  []string `toml:"modules"`
	Fence    []string `toml:"fence"`
	Root     string   `toml:"root"`

	name string
}

func (s *Space) Name() string { return s.name }

// SetName sets the space's declared name; exposed for callers building a
// Config programmatically rather than via Load.
func (s *Space) SetName(name string) { s.name = name }

// Cache is a named cache backend configuration (spec §4.3).
type Cache struct {
	Type     string `toml:"type"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
	AccessKeyID     string `toml:"access-key-id"`
	SecretAccessKey string `toml:"secret-access-key"`
	SessionToken    string `toml:"session-token"`
	UseSSL          bool   `toml:"use-ssl"`

	name string
}

func (c *Cache) Name() string { return c.name }

// SetName sets the cache's declared name; exposed for callers building a
// Config programmatically rather than via Load.
func (c *Cache) SetName(name string) { c.name = name }

// Var is a context variable declaration (spec §4.4). The one-line-string
// form ("SIMPLE_NAME") decodes into Name only, with Type defaulting to
// "str" and Required defaulting to false.
type Var struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Default  string `toml:"default"`
	Required bool   `toml:"required"`
}

// DepSpec is the TOML shape of a dependency declaration. A bare string
// decodes as a glob pattern (spec §3: "glob(pattern)"); a table decodes
// per its "type" field.
type DepSpec struct {
	Type     string `toml:"type"`
	Pattern  string `toml:"pattern"`
	Name     string `toml:"name"`
	Value    string `toml:"val"`
	Key      string `toml:"key"`
	File     string `toml:"file"`
	Strict   bool   `toml:"strict"`
	Isolated *bool  `toml:"isolated"`

	// raw holds the original bare-string form, if any. A bare string is
	// always a glob pattern taken verbatim; there is no prefix shorthand.
	raw string
}
