package config

import "fmt"

// UnmarshalTOML lets a `vars` entry be a bare name ("WORKERS") or a table
// ({name="WORKERS", type="int", default="4"}), per spec §6.
func (v *Var) UnmarshalTOML(value any) error {
	switch val := value.(type) {
	case string:
		v.Name = val
		v.Type = "str"
		return nil
	case map[string]any:
		if s, ok := val["name"].(string); ok {
			v.Name = s
		}
		v.Type = "str"
		if s, ok := val["type"].(string); ok {
			v.Type = s
		}
		if s, ok := val["default"].(string); ok {
			v.Default = s
		}
		if b, ok := val["required"].(bool); ok {
			v.Required = b
		}
		return nil
	default:
		return fmt.Errorf("vars entry must be a string or table, got %T", value)
	}
}
