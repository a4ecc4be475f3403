// Package dep holds plugin-supplied dependency-type factories registered
// into internal/plugin's static registry, extending
// internal/fingerprint.Resolver's built-in glob/const/pydist/command/load
// dispatch (spec.md §9's plugin interface) with one example: an "env" dep
// type that folds a live process environment variable's value into a
// runnable's fingerprint, grounded on original_source/qik/dep.py's EnvDep.
package dep

import (
	"os"

	"qik/internal/config"
	"qik/internal/plugin"
)

func init() {
	plugin.RegisterDep("env", resolveEnv)
}

// resolveEnv folds the named environment variable's current value into
// the fingerprint, so a runnable declaring it as a dependency re-executes
// whenever that variable's value changes between runs.
func resolveEnv(spec config.DepSpec) (plugin.Variant, error) {
	return plugin.Variant{Kind: "env", Key: spec.Name, Value: os.Getenv(spec.Name)}, nil
}
