// Package watch implements C8: a filesystem watch loop that re-triggers a
// run when a selected runnable's declared inputs change. The single
// observer goroutine and debounce-on-event idiom are grounded on
// mraakashshah-oro's cmd/oro-dash/watch.go (fsnotify.NewWatcher, a
// reset-on-event debounce timer feeding a single triggered message);
// dynamic subtree registration and the "coalesce while a run is in
// flight" policy are qik-specific additions per spec.md §4.8.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is spec.md §4.8's default coalescing window, overridable
// via QIK__WATCH_DEBOUNCE.
const DefaultDebounce = 200 * time.Millisecond

// Watcher observes a set of paths and calls a run function on change,
// debounced and serialized against overlapping runs.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// New creates a Watcher with the given debounce window (DefaultDebounce if
// d <= 0).
func New(d time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Watcher{fsw: fsw, debounce: d}, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Add registers every path in paths. A directory is added recursively; a
// file's parent directory is added instead, since fsnotify only reports
// events on watched directories, matching spec.md §4.8's "new files under
// an existing dir must be detected" requirement.
func (w *Watcher) Add(paths []string) error {
	seen := map[string]bool{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				// Watch the nearest existing ancestor so a not-yet-created
				// file or directory is still detected once it appears.
				dir := nearestExistingDir(p)
				if dir != "" && !seen[dir] {
					seen[dir] = true
					_ = w.fsw.Add(dir)
				}
				continue
			}
			return err
		}
		if info.IsDir() {
			if err := w.addTree(p, seen); err != nil {
				return err
			}
		} else {
			dir := filepath.Dir(p)
			if !seen[dir] {
				seen[dir] = true
				if err := w.fsw.Add(dir); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Watcher) addTree(root string, seen map[string]bool) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if !seen[path] {
				seen[path] = true
				_ = w.fsw.Add(path)
			}
		}
		return nil
	})
}

func nearestExistingDir(p string) string {
	dir := filepath.Dir(p)
	for dir != "." && dir != string(filepath.Separator) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Run blocks, invoking onChange whenever the debounce window elapses after
// one or more filesystem events, until ctx is cancelled. Directory-create
// events dynamically extend the watch set (new subtree re-registration,
// spec.md §4.8). The default re-run policy serializes execution: an event
// arriving while onChange is running sets a single pending flag, consumed
// once the in-flight run completes, rather than overlapping runs.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	runDone := make(chan struct{}, 1)
	running := false
	pending := false

	trigger := func() {
		if running {
			pending = true
			return
		}
		running = true
		go func() {
			onChange(ctx)
			runDone <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name, map[string]bool{})
				}
			}
			resetTimer(timer, w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return err

		case <-timer.C:
			trigger()

		case <-runDone:
			running = false
			if pending {
				pending = false
				trigger()
			}
		}
	}
}
