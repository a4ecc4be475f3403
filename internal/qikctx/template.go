package qikctx

import (
	"strings"

	"qik/internal/qikerr"
)

// Module is the minimal module-shape the template expander needs; kept
// here (rather than importing internal/expand) to avoid a dependency
// cycle since internal/expand imports qikctx.
type Module struct {
	Dir      string
	PyImport string
	Name     string
}

// Format substitutes the fixed set of placeholders recognized by spec
// §4.4: {module.dir}, {module.pyimport}, {module.name}, {space}, and
// {ctx.NAMESPACE.NAME}. A single-brace grammar this small doesn't warrant
// text/template (whose {{ }} delimiters don't even match); a hand-written
// scanner is the documented stdlib exception (see DESIGN.md).
func (h *Handle) Format(s string, mod *Module, space string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			out.WriteString(s[i:])
			break
		}
		out.WriteString(s[i : i+open])
		start := i + open
		close := strings.IndexByte(s[start:], '}')
		if close < 0 {
			out.WriteString(s[start:])
			break
		}
		placeholder := s[start+1 : start+close]
		val, err := h.resolvePlaceholder(placeholder, mod, space)
		if err != nil {
			return "", err
		}
		out.WriteString(val)
		i = start + close + 1
	}
	return out.String(), nil
}

func (h *Handle) resolvePlaceholder(placeholder string, mod *Module, space string) (string, error) {
	switch {
	case placeholder == "space":
		return space, nil
	case placeholder == "module.dir":
		return requireModule(mod, "dir")
	case placeholder == "module.pyimport":
		return requireModulePyImport(mod)
	case placeholder == "module.name":
		return requireModule(mod, "name")
	case strings.HasPrefix(placeholder, "ctx."):
		parts := strings.SplitN(strings.TrimPrefix(placeholder, "ctx."), ".", 2)
		if len(parts) != 2 {
			return "", qikerr.New(qikerr.CtxNamespace, placeholder, "malformed ctx placeholder")
		}
		return h.Var(parts[0], parts[1])
	default:
		return "", qikerr.New(qikerr.CtxNamespace, placeholder, "unknown placeholder")
	}
}

func requireModule(mod *Module, field string) (string, error) {
	if mod == nil {
		return "", qikerr.New(qikerr.CtxMissing, "module."+field, "placeholder used outside module scope")
	}
	switch field {
	case "dir":
		return mod.Dir, nil
	case "name":
		return mod.Name, nil
	}
	return "", qikerr.New(qikerr.CtxMissing, "module."+field, "unknown module field")
}

func requireModulePyImport(mod *Module) (string, error) {
	if mod == nil {
		return "", qikerr.New(qikerr.CtxMissing, "module.pyimport", "placeholder used outside module scope")
	}
	return mod.PyImport, nil
}

// IsParametric reports whether s contains a {module...} or {space}
// placeholder, per spec §4.4 rule 1.
func IsParametric(s string) bool {
	return strings.Contains(s, "{module.") || strings.Contains(s, "{space}")
}
