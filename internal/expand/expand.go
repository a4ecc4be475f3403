// Package expand implements C4: turning a declarative Command into one or
// more concrete Runnables, expanding {module...} placeholders across a
// space's modules. Grounded on original_source/qik/runnable.py's
// factory()/_make_runnable (the "{module" in exec check that decides
// whether a command fans out per-module) and qik/module.py's pyimport
// derivation.
package expand

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"qik/internal/config"
	"qik/internal/qikctx"
	"qik/internal/qikerr"
)

// Runnable is one concrete, fully-formatted unit of work: a command bound
// to at most one module (spec §3, GLOSSARY "Runnable").
type Runnable struct {
	Name       string // "cmd" or "cmd@module"
	Command    string // owning Command's declared name
	Exec       string // placeholder-expanded shell command
	Module     *qikctx.Module
	Space      string
	Deps       []config.DepSpec
	Artifacts  []string
	Cache      string
	CacheWhen  string
	Isolated   bool
	Timeout    time.Duration
	HasTimeout bool
}

// Expand produces every Runnable declared by cfg, sorted by runnable name
// (the command name, plus "@" and the module's directory base name for a
// parametric command).
func Expand(cfg *config.Config, ctx *qikctx.Handle, configDir string) ([]*Runnable, error) {
	var out []*Runnable

	for _, name := range cfg.CommandNames() {
		cmd := cfg.Commands[name]

		var space *config.Space
		if cmd.Space != "" {
			space = cfg.Spaces[cmd.Space]
		}

		if !qikctx.IsParametric(cmd.Exec) {
			r, err := build(cfg, ctx, cmd, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
			continue
		}

		if space == nil {
			return nil, qikerr.New(qikerr.ConfigParse, name, "command uses {module...} but declares no space")
		}
		modules, err := space.ResolveModules(configDir)
		if err != nil {
			return nil, err
		}
		for _, modDir := range modules {
			mod := &qikctx.Module{
				Dir:      modDir,
				Name:     filepath.Base(modDir),
				PyImport: toPyImport(modDir),
			}
			r, err := build(cfg, ctx, cmd, mod)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func build(cfg *config.Config, ctx *qikctx.Handle, cmd *config.Command, mod *qikctx.Module) (*Runnable, error) {
	name := cmd.Name()
	if mod != nil {
		name = name + "@" + mod.Name
	}

	exec, err := ctx.Format(cmd.Exec, mod, cmd.Space)
	if err != nil {
		return nil, err
	}

	artifacts := make([]string, len(cmd.Artifacts))
	for i, a := range cmd.Artifacts {
		formatted, err := ctx.Format(a, mod, cmd.Space)
		if err != nil {
			return nil, err
		}
		artifacts[i] = formatted
	}

	deps := make([]config.DepSpec, 0, len(cfg.Base.Deps)+len(cmd.Deps))
	deps = append(deps, cfg.Base.Deps...)
	deps = append(deps, cmd.Deps...)

	isolated := true
	if cmd.Isolated != nil {
		isolated = *cmd.Isolated
	}

	timeout, hasTimeout, err := cmd.ParsedTimeout()
	if err != nil {
		return nil, qikerr.Wrap(qikerr.ConfigParse, name, err)
	}

	return &Runnable{
		Name:       name,
		Command:    cmd.Name(),
		Exec:       exec,
		Module:     mod,
		Space:      cmd.Space,
		Deps:       deps,
		Artifacts:  artifacts,
		Cache:      cmd.Cache,
		CacheWhen:  cmd.CacheWhen,
		Isolated:   isolated,
		Timeout:    timeout,
		HasTimeout: hasTimeout,
	}, nil
}

// toPyImport converts a slash-separated module directory into a dotted
// python import path, matching the {module.pyimport} placeholder's
// original meaning (qik's module.py derives this from the package's
// directory structure relative to the project root).
func toPyImport(dir string) string {
	parts := strings.Split(filepath.ToSlash(dir), "/")
	return strings.Join(parts, ".")
}
