// Package output implements the live runnable-status sink: one
// mutex-guarded writer styling each runnable's status line and streamed
// output, distinct from internal/qikerr diagnostics which go through
// log/slog. Styling is grounded on mraakashshah-oro's use of
// github.com/charmbracelet/lipgloss for its dashboard theme, scoped down
// from a full bubbletea TUI (out of scope per spec.md §1) to plain styled
// line output; TTY detection is grounded on the same repo's use of
// github.com/mattn/go-isatty.
package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"qik/internal/graph"
)

// Theme is the set of styles applied to status lines, grounded on
// mraakashshah-oro/cmd/oro-dash/theme.go's Theme struct and color choices.
type Theme struct {
	Success lipgloss.Style
	Failure lipgloss.Style
	Skipped lipgloss.Style
	Running lipgloss.Style
	Cached  lipgloss.Style
	Muted   lipgloss.Style
}

// DefaultTheme mirrors mraakashshah-oro's DefaultTheme color palette.
func DefaultTheme() Theme {
	return Theme{
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Failure: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Cached:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// PlainTheme applies no styling at all, used when the sink's writer isn't
// a TTY (spec.md §5: output must stay legible when piped or redirected).
func PlainTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{Success: plain, Failure: plain, Skipped: plain, Running: plain, Cached: plain, Muted: plain}
}

// Sink is the single, mutex-guarded writer every runnable's status and
// streamed output passes through, matching spec.md §5's "no worker
// inspects another worker's state" invariant: workers only ever call
// Sink's methods, never write to os.Stdout directly.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	theme Theme
}

// New returns a Sink writing to w, auto-selecting DefaultTheme when w is a
// terminal (via isatty.IsTerminal on w's fd, when available) and
// PlainTheme otherwise.
func New(w io.Writer) *Sink {
	theme := PlainTheme()
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		theme = DefaultTheme()
	}
	return &Sink{w: w, theme: theme}
}

// NewWithTheme returns a Sink writing to w using an explicit theme,
// bypassing TTY auto-detection.
func NewWithTheme(w io.Writer, theme Theme) *Sink {
	return &Sink{w: w, theme: theme}
}

func (s *Sink) styleFor(state graph.State, fromCache bool) lipgloss.Style {
	if fromCache {
		return s.theme.Cached
	}
	switch state {
	case graph.Success:
		return s.theme.Success
	case graph.Failure:
		return s.theme.Failure
	case graph.Skipped, graph.UpstreamFailed:
		return s.theme.Skipped
	case graph.Running:
		return s.theme.Running
	default:
		return s.theme.Muted
	}
}

// Status writes one styled line reporting name's terminal state.
func (s *Sink) Status(name string, state graph.State, fromCache bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := string(state)
	if fromCache {
		label = "CACHED"
	}
	style := s.styleFor(state, fromCache)
	fmt.Fprintf(s.w, "%s %s\n", style.Render(label), name)
}

// Stream writes a chunk of a runnable's captured stdout/stderr, prefixed
// with its name so interleaved concurrent output stays attributable.
func (s *Sink) Stream(name string, data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := s.theme.Muted.Render(name + " |")
	fmt.Fprintf(s.w, "%s %s", prefix, data)
}

// Summary writes a plain, unstyled closing line — e.g. a run's final
// pass/fail tally.
func (s *Sink) Summary(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}
