// Package qikerr defines the stable error taxonomy shared by every layer of
// qik. Every error kind carries a short identifier suitable for docs lookup
// and a fixed exit code, matching the propagation policy: configuration and
// selection failures are fatal at exit 2, per-runnable failures are reported
// but do not stop the scheduler and drive exit 1, anything unclassified
// falls back to exit 3.
package qikerr

import (
	"errors"
	"fmt"
)

// Kind is a stable identifier for an error category.
type Kind string

const (
	ConfigNotFound        Kind = "ConfigNotFound"
	ConfigParse           Kind = "ConfigParse"
	UnknownModule         Kind = "UnknownModule"
	UnknownPlugin         Kind = "UnknownPlugin"
	UnknownCommand        Kind = "UnknownCommand"
	UnknownCache          Kind = "UnknownCache"
	UnknownProfile        Kind = "UnknownProfile"
	CtxMissing            Kind = "CtxMissing"
	CtxTypeCast           Kind = "CtxTypeCast"
	CtxNamespace          Kind = "CtxNamespace"
	CycleDetected         Kind = "CycleDetected"
	PluginImport          Kind = "PluginImport"
	MissingDist           Kind = "MissingDist"
	MissingModuleDist     Kind = "MissingModuleDist"
	LockFileRequired      Kind = "LockFileRequired"
	VenvNotConfigured     Kind = "VenvNotConfigured"
	SubprocessFailed      Kind = "SubprocessFailed"
	CacheIO               Kind = "CacheIO"
	RemoteCacheUnavailable Kind = "RemoteCacheUnavailable"
	Cancelled             Kind = "Cancelled"
)

// exitCodes maps each kind to its coarse exit-code category per spec §6/§7:
// configuration and selection kinds to 2, per-runnable and execution kinds
// to 1. Every kind above has an entry.
var exitCodes = map[Kind]int{
	ConfigNotFound: 2,
	ConfigParse:    2,
	UnknownModule:  2,
	UnknownPlugin:  2,
	UnknownCommand: 2,
	UnknownCache:   2,
	UnknownProfile: 2,
	CtxMissing:     2,
	CtxTypeCast:    2,
	CtxNamespace:   2,
	CycleDetected:  2,
	PluginImport:   2,
	LockFileRequired:  2,
	VenvNotConfigured: 2,

	MissingDist:       1,
	MissingModuleDist: 1,
	SubprocessFailed:  1,
	CacheIO:           1,
	RemoteCacheUnavailable: 1,

	Cancelled: 1,
}

// Error is the concrete error type carrying a stable Kind, a human message,
// an optional offending name, and an optional wrapped cause.
type Error struct {
	kind    Kind
	Name    string
	Message string
	Cause   error
}

func New(kind Kind, name, message string) *Error {
	return &Error{kind: kind, Name: name, Message: message}
}

func Wrap(kind Kind, name string, cause error) *Error {
	return &Error{kind: kind, Name: name, Message: cause.Error(), Cause: cause}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.kind, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// ExitCode returns the process exit code this error kind maps to. A kind
// with no entry in exitCodes defaults to 3, the internal-error bucket.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.kind]; ok {
		return code
	}
	return 3
}

// ClassifyExitCode walks err's chain looking for a *qikerr.Error and
// returns its exit code, defaulting to 3 (internal error) for anything
// that isn't one of the named kinds — the same default the taxonomy
// itself uses for unclassified failures.
func ClassifyExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 3
}
