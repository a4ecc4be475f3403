// run.go adapts the teacher's internal/cli/executor.go shape (a narrow
// Executor interface, a panic-recovering wrapper, exit-code translation)
// into Invocation.Execute over the new config/expand/graph/scheduler
// stack, in place of the teacher's core.Task/dag.TaskGraph pipeline.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"qik/internal/cache"
	"qik/internal/config"
	"qik/internal/expand"
	"qik/internal/gitutil"
	"qik/internal/graph"
	"qik/internal/hashsource"
	"qik/internal/output"
	"qik/internal/qikctx"
	"qik/internal/qikerr"
	"qik/internal/scheduler"
	"qik/internal/watch"
)

const (
	ExitSuccess        = 0
	ExitRunnableFailed = 1
	ExitConfigError    = 2
	ExitInternalError  = 3
)

// Invocation is one canonical CLI call: parsed flags plus the I/O sink to
// report through.
type Invocation struct {
	Flags Flags
	Sink  *output.Sink
	Log   *slog.Logger
}

// Execute runs the invocation end to end: load config, expand runnables,
// build the graph, select, then either list or run. It never panics past
// this frame — a recovered panic becomes ExitInternalError, matching the
// teacher's defer/recover wrapper in ExecuteWithExecutor.
func (inv Invocation) Execute(ctx context.Context) (exitCode int, execErr error) {
	defer func() {
		if r := recover(); r != nil {
			exitCode = ExitInternalError
			execErr = fmt.Errorf("internal error: %v", r)
		}
	}()

	configPath := inv.Flags.Config
	if configPath == "" {
		configPath = "qik.toml"
	}
	configDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return ExitInternalError, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return qikerr.ClassifyExitCode(err), err
	}

	git := &gitutil.Client{Dir: configDir}
	handle := qikctx.NewHandle(cfg, inv.Flags.Profile)

	runnables, err := expand.Expand(cfg, handle, configDir)
	if err != nil {
		return qikerr.ClassifyExitCode(err), err
	}
	if inv.Flags.CacheWhen != "" {
		for _, r := range runnables {
			r.CacheWhen = inv.Flags.CacheWhen
		}
	}

	g, err := graph.New(runnables)
	if err != nil {
		return qikerr.ClassifyExitCode(err), err
	}

	hashSrc := hashsource.New(configDir)

	qikDir := filepath.Join(configDir, "._qik")
	if err := os.MkdirAll(qikDir, 0o755); err != nil {
		inv.Log.Warn("cache-status index unavailable, falling back to per-entry probes", "error", err)
	}
	idx, err := cache.OpenIndex(filepath.Join(qikDir, "index.db"))
	if err != nil {
		inv.Log.Warn("cache-status index unavailable, falling back to per-entry probes", "error", err)
		idx = nil
	} else {
		defer idx.Close()
	}

	sched := scheduler.NewRunner(g, runnables, cfg, hashSrc, configDir, configDir, git, idx, inv.Log)
	sched.Force = inv.Flags.Force

	cacheStatus := func(name string) (bool, error) { return sched.Probe(ctx, name) }
	selected, err := g.Select(ctx, inv.Flags.Selector(), cacheStatus, git)
	if err != nil {
		return qikerr.ClassifyExitCode(err), err
	}

	if len(selected) == 0 {
		if inv.Flags.Fail {
			return ExitConfigError, fmt.Errorf("selection matched no runnables")
		}
		return ExitSuccess, nil
	}

	if inv.Flags.List {
		sort.Strings(selected)
		for _, name := range selected {
			inv.Sink.Summary(name)
		}
		return ExitSuccess, nil
	}

	concurrency := inv.Flags.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	runOnce := func(runCtx context.Context) (int, error) {
		results, err := sched.Run(runCtx, selected, concurrency)
		if err != nil {
			return ExitInternalError, err
		}
		return reportAndClassify(inv.Sink, results), nil
	}

	if !inv.Flags.Watch {
		return runOnce(ctx)
	}

	return inv.watchLoop(ctx, runnables, cfg, configDir, runOnce)
}

// watchLoop implements spec.md §4.8: re-run runOnce whenever a selected
// runnable's declared inputs change, serialized against overlapping runs.
func (inv Invocation) watchLoop(ctx context.Context, runnables []*expand.Runnable, cfg *config.Config, configDir string, runOnce func(context.Context) (int, error)) (int, error) {
	w, err := watch.New(watchDebounce())
	if err != nil {
		return ExitInternalError, err
	}
	defer w.Close()

	paths := watch.PathsFor(configDir, runnables, cfg.Spaces)
	if err := w.Add(paths); err != nil {
		return ExitInternalError, err
	}

	lastCode := ExitSuccess
	if _, err := runOnce(ctx); err != nil {
		return ExitInternalError, err
	}

	runErr := w.Run(ctx, func(runCtx context.Context) {
		code, err := runOnce(runCtx)
		if err != nil {
			inv.Sink.Summary(fmt.Sprintf("watch run error: %v", err))
			return
		}
		lastCode = code
	})
	if runErr != nil && runErr != context.Canceled {
		return ExitInternalError, runErr
	}
	return lastCode, nil
}

// watchDebounce reads QIK__WATCH_DEBOUNCE (spec.md §4.8), falling back to
// watch.DefaultDebounce on an unset or unparseable value.
func watchDebounce() time.Duration {
	raw := os.Getenv("QIK__WATCH_DEBOUNCE")
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// reportAndClassify writes each result's status line and returns the
// overall exit code: 1 if anything failed, 0 otherwise.
func reportAndClassify(sink *output.Sink, results map[string]*scheduler.Result) int {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	code := ExitSuccess
	for _, name := range names {
		res := results[name]
		if sink != nil {
			sink.Status(name, res.State, res.FromCache)
		}
		if res.State == graph.Failure || res.State == graph.UpstreamFailed || res.Err != nil {
			code = ExitRunnableFailed
		}
	}
	return code
}
