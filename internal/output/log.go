package output

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// NewLogger builds the process-wide slog.Logger for operator diagnostics
// (config errors, cache warnings, plugin registration) — distinct from
// Sink, which carries runnable status/output. verbose >= 2 or a non-TTY
// destination selects JSON output; otherwise a human-readable text handler
// is used. TTY detection is grounded on mraakashshah-oro's use of
// github.com/mattn/go-isatty for the identical check.
func NewLogger(w io.Writer, verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = isatty.IsTerminal(f.Fd())
	}

	var handler slog.Handler
	if verbose >= 2 || !isTTY {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
