// Package qikctx resolves context variables and expands template
// placeholders (spec §4.4). A Handle is an explicit, immutable value
// threaded through the command expander and cache backends — there is no
// global context singleton (spec §9).
package qikctx

import (
	"os"
	"strconv"
	"strings"

	"qik/internal/config"
	"qik/internal/qikerr"
)

// Handle carries the resolved profile and environment used for variable
// and placeholder resolution during one invocation.
type Handle struct {
	Profile string
	Cfg     *config.Config
	Environ map[string]string // process environment, injected for testability
}

// NewHandle builds a Handle from the process environment.
func NewHandle(cfg *config.Config, profile string) *Handle {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return &Handle{Profile: profile, Cfg: cfg, Environ: env}
}

// Var resolves a single NAMESPACE.NAME context variable per spec §4.4's
// resolution order: env var NAMESPACE__NAME, active profile's value,
// variable default, then CtxMissing if `required`.
func (h *Handle) Var(namespace, name string) (string, error) {
	if err := h.checkProfile(); err != nil {
		return "", err
	}

	envKey := strings.ToUpper(namespace) + "__" + strings.ToUpper(name)
	if v, ok := h.Environ[envKey]; ok {
		return v, nil
	}

	if h.Cfg != nil {
		if profile, ok := h.Cfg.Ctx[h.Profile]; ok {
			if ns, ok := profile[namespace]; ok {
				if v, ok := ns[name]; ok {
					return v, nil
				}
			}
		}
	}

	for _, v := range h.Cfg.Vars {
		if v.Name != name {
			continue
		}
		if v.Default != "" {
			return v.Default, nil
		}
		if v.Required {
			return "", qikerr.New(qikerr.CtxMissing, namespace+"."+name, "required context variable not set")
		}
		return "", nil
	}

	return "", qikerr.New(qikerr.CtxNamespace, namespace, "unknown context namespace/variable "+namespace+"."+name)
}

// checkProfile rejects a profile name that isn't declared anywhere in the
// config's [ctx] table, mirroring original_source/qik/ctx.py's
// `proj_ctx = {"default": {}, "ci": {}} | proj.ctx` fallback: "default" and
// "ci" are always valid even undeclared, everything else must be declared.
func (h *Handle) checkProfile() error {
	if h.Profile == "" || h.Profile == "default" || h.Profile == "ci" {
		return nil
	}
	if h.Cfg != nil {
		if _, ok := h.Cfg.Ctx[h.Profile]; ok {
			return nil
		}
	}
	return qikerr.New(qikerr.UnknownProfile, h.Profile, "unknown context profile")
}

// Typed casts a resolved string value to the declared type
// (str|int|bool), per spec §4.4: accepted boolean strings are
// {yes,true,1,no,false,0} case-insensitively.
func Typed(varType, raw string) (any, error) {
	switch varType {
	case "", "str":
		return raw, nil
	case "int":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, qikerr.Wrap(qikerr.CtxTypeCast, raw, err)
		}
		return n, nil
	case "bool":
		switch strings.ToLower(raw) {
		case "yes", "true", "1":
			return true, nil
		case "no", "false", "0":
			return false, nil
		default:
			return nil, qikerr.New(qikerr.CtxTypeCast, raw, "not a recognized boolean")
		}
	default:
		return nil, qikerr.New(qikerr.CtxTypeCast, varType, "unknown var type")
	}
}

// QikOpt resolves a `qik` namespace option honoring the QIK__<OPT>
// environment override (spec §6).
func (h *Handle) QikOpt(name, fallback string) string {
	envKey := "QIK__" + strings.ToUpper(name)
	if v, ok := h.Environ[envKey]; ok {
		return v
	}
	return fallback
}
