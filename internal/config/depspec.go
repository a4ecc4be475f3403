package config

import "fmt"

// UnmarshalTOML lets a dependency entry be written either as a bare glob
// string ("**/*.go") or as a table ({type = "command", name = "x"}),
// matching spec §3's dependency variants and §6's config surface.
//
// go-toml/v2 calls this with the already-decoded Go value for the TOML
// node: a string for a bare value, or a map[string]any for a table.
func (d *DepSpec) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		d.raw = v
		d.Type = "glob"
		d.Pattern = v
		return nil
	case map[string]any:
		typ, _ := v["type"].(string)
		if typ == "" {
			typ = "glob"
		}
		d.Type = typ
		if s, ok := v["pattern"].(string); ok {
			d.Pattern = s
		}
		if s, ok := v["name"].(string); ok {
			d.Name = s
		}
		if s, ok := v["val"].(string); ok {
			d.Value = s
		}
		if s, ok := v["key"].(string); ok {
			d.Key = s
		}
		if s, ok := v["file"].(string); ok {
			d.File = s
		}
		if b, ok := v["strict"].(bool); ok {
			d.Strict = b
		}
		if b, ok := v["isolated"].(bool); ok {
			d.Isolated = &b
		}
		return nil
	default:
		return fmt.Errorf("dep entry must be a string or table, got %T", value)
	}
}
