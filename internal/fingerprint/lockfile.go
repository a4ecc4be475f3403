package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
)

// Serialized is the on-disk shape a dependency-emitting plugin writes,
// grounded on original_source/qik/dep.py's Serialized msgspec struct: a
// plugin precomputes its own globs/pydists and their combined hash, so a
// consuming command's "load" dependency can skip re-resolving them.
type Serialized struct {
	Globs   []string          `json:"globs"`
	Pydists map[string]string `json:"pydists"`
	Hash    string            `json:"hash"`
}

// LoadSerialized reads a plugin-emitted lockfile from path (spec §3's
// "load" dependency variant).
func LoadSerialized(path string) (*Serialized, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %q: %w", path, err)
	}
	var s Serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing lockfile %q: %w", path, err)
	}
	return &s, nil
}

// StoreSerialized writes a lockfile in the same format, for plugins that
// need to emit one (mirrors original_source/qik/dep.py's store()).
func StoreSerialized(path string, s *Serialized) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AsVariant converts a loaded lockfile's precomputed hash into a Variant
// contribution keyed by its source path, so it can be folded into a
// Collection like any other dependency without re-deriving the digest.
func (s *Serialized) AsVariant(path string) Variant {
	return Variant{Kind: "load", Key: path, Value: s.Hash}
}
