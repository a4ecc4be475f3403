// Package scheduler implements C7: dispatching a selected set of Runnables
// across a worker pool in dependency order, driving each one through
// fingerprint resolution, cache probe/replay, execution, and cache write.
// The coordinator-owns-state / workers-signal-via-channel shape is ported
// from the teacher's internal/dag/executor.go RunParallel; the per-runnable
// execution flow (resolve -> hash -> probe -> replay-or-run -> cache) is
// grounded on internal/core/runner.go's Run/executeAndCache.
package scheduler

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"qik/internal/cache"
	"qik/internal/config"
	"qik/internal/expand"
	"qik/internal/fingerprint"
	"qik/internal/gitutil"
	"qik/internal/graph"
	"qik/internal/hashsource"
)

// Result is the outcome of running (or skipping) a single node.
type Result struct {
	Name        string
	State       graph.State
	FromCache   bool
	ExitCode    int
	Stdout      []byte
	Stderr      []byte
	Err         error
	Fingerprint string
}

// Runner coordinates execution of a Graph's runnables.
type Runner struct {
	Graph      *graph.Graph
	Runnables  map[string]*expand.Runnable
	Config     *config.Config
	Hash       *hashsource.Source
	WorkingDir string
	RepoDir    string
	Git        *gitutil.Client
	Index      *cache.Index
	Log        *slog.Logger

	// Force bypasses cache reads (spec.md §6's -f flag): every selected
	// node executes regardless of a warm cache entry, but a successful
	// result is still written back per its cache-when policy.
	Force bool

	mu     sync.Mutex
	caches map[string]cache.Cache
	fps    map[string]string
}

// NewRunner builds a Runner over g, resolving each node's Runnable by name
// from runnables.
func NewRunner(g *graph.Graph, runnables []*expand.Runnable, cfg *config.Config, hash *hashsource.Source, workingDir, repoDir string, git *gitutil.Client, idx *cache.Index, log *slog.Logger) *Runner {
	byName := make(map[string]*expand.Runnable, len(runnables))
	for _, r := range runnables {
		byName[r.Name] = r
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		Graph:      g,
		Runnables:  byName,
		Config:     cfg,
		Hash:       hash,
		WorkingDir: workingDir,
		RepoDir:    repoDir,
		Git:        git,
		Index:      idx,
		Log:        log,
		caches:     map[string]cache.Cache{},
		fps:        map[string]string{},
	}
}

// cacheFor memoizes cache.Factory results by cache name so a Remote
// backend's minio client isn't reconstructed per runnable.
func (r *Runner) cacheFor(name string) (cache.Cache, error) {
	if name == "none" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[name]; ok {
		return c, nil
	}
	cacheCfg := r.Config.Caches[name]
	if cacheCfg == nil {
		// An unnamed cache (spec §4.3: cmd.Cache == "") still caches
		// locally; only "none" disables caching entirely.
		cacheCfg = &config.Cache{Type: "local"}
	}
	c, err := cache.Factory(cacheCfg, filepath.Join(r.WorkingDir, "._qik", "cache"), filepath.Join(r.RepoDir, ".qik", "cache"), r.Git)
	if err != nil {
		return nil, err
	}
	r.caches[name] = c
	return c, nil
}

// seedState marks every node not in selected as already Success, so
// GetReadyNodes treats out-of-selection ancestors (spec §4.6 --isolated) as
// satisfied without executing them, while nodes never mentioned by the
// graph stay absent from the ready walk entirely.
func seedState(g *graph.Graph, selected map[string]bool) graph.ExecutionState {
	st := make(graph.ExecutionState, len(g.Nodes()))
	for _, n := range g.Nodes() {
		if selected[n.Name] {
			st[n.Name] = graph.Pending
		} else {
			st[n.Name] = graph.Success
		}
	}
	return st
}

// workItem is dispatched to a worker goroutine.
type workItem struct {
	name string
}

// workResult is sent back from a worker to the coordinator.
type workResult struct {
	name   string
	result *Result
}

// Run executes every node named in selected, honoring dependency order and
// UpstreamFailed propagation, with at most concurrency runnables in flight
// at once. Nodes outside selected are treated as already satisfied
// (spec §4.6's --isolated semantics). Mirrors the teacher's RunParallel:
// a single coordinator goroutine owns state under r.mu-free access (workers
// never touch it directly), dispatching ready work and draining doneCh.
func (r *Runner) Run(ctx context.Context, selected []string, concurrency int) (map[string]*Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	runID := uuid.NewString()
	r.Log.Debug("run starting", "run_id", runID, "selected", len(selected), "concurrency", concurrency)
	defer func() { r.Log.Debug("run finished", "run_id", runID) }()

	sel := make(map[string]bool, len(selected))
	for _, n := range selected {
		sel[n] = true
	}
	state := seedState(r.Graph, sel)
	results := make(map[string]*Result, len(sel))

	workCh := make(chan workItem)
	doneCh := make(chan workResult, len(sel))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go r.worker(ctx, workCh, doneCh, &wg)
	}
	stopWorkers := func() {
		close(workCh)
		wg.Wait()
	}

	inFlight := 0
	remaining := len(sel)

	dispatch := func() bool {
		ready := graph.GetReadyNodes(r.Graph, state)
		dispatched := false
		for _, name := range ready {
			if !sel[name] {
				continue
			}
			if err := graph.Transition(state, name, graph.Pending, graph.Ready); err != nil {
				continue
			}
			if err := graph.Transition(state, name, graph.Ready, graph.Running); err != nil {
				continue
			}
			select {
			case workCh <- workItem{name: name}:
				inFlight++
				dispatched = true
			case <-ctx.Done():
				return dispatched
			}
		}
		return dispatched
	}

	dispatch()

	for remaining > 0 {
		if inFlight == 0 {
			// Nothing dispatched and nothing in flight: either done or
			// stuck behind an UpstreamFailed/Skipped set, which
			// GetReadyNodes will never surface as ready.
			break
		}
		select {
		case <-ctx.Done():
			stopWorkers()
			return results, ctx.Err()
		case wr := <-doneCh:
			inFlight--
			remaining--
			results[wr.name] = wr.result

			if wr.result.Err != nil || wr.result.ExitCode != 0 {
				if err := graph.FailAndPropagate(r.Graph, state, wr.name); err != nil {
					stopWorkers()
					return results, err
				}
			} else {
				if err := graph.Transition(state, wr.name, graph.Running, graph.Success); err != nil {
					stopWorkers()
					return results, err
				}
			}
			dispatch()
		}
	}

	stopWorkers()

	// Any node left Pending never became reachable (its dependencies
	// failed or were skipped without an explicit UpstreamFailed edge);
	// mark it Skipped so callers see a terminal state for every selected
	// name.
	for name := range sel {
		if state[name] == graph.Pending || state[name] == graph.Ready {
			state[name] = graph.Skipped
			results[name] = &Result{Name: name, State: graph.Skipped}
		}
	}

	return results, nil
}

func (r *Runner) worker(ctx context.Context, workCh <-chan workItem, doneCh chan<- workResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for item := range workCh {
		res := r.runOne(ctx, item.name)
		doneCh <- workResult{name: item.name, result: res}
	}
}

// runOne resolves, probes, executes-or-replays, and caches a single node.
func (r *Runner) runOne(ctx context.Context, name string) *Result {
	res := &Result{Name: name}

	runnable, ok := r.Runnables[name]
	if !ok {
		res.Err = errUnknownRunnable(name)
		res.State = graph.Failure
		return res
	}

	var space *config.Space
	if runnable.Space != "" {
		space = r.Config.Spaces[runnable.Space]
	}

	cmdFingerprints := r.commandFingerprints()
	resolver := fingerprint.NewResolver(r.Hash)
	coll, err := resolver.Resolve(ctx, runnable.Exec, runnable.Artifacts, runnable.Deps, space, cmdFingerprints)
	if err != nil {
		res.Err = err
		res.State = graph.Failure
		return res
	}
	fp := coll.Hash()
	res.Fingerprint = fp
	r.recordFingerprint(name, fp)

	cacheName := runnable.Cache
	c, err := r.cacheFor(cacheName)
	if err != nil {
		res.Err = err
		res.State = graph.Failure
		return res
	}

	// Cache reads degrade rather than fail the runnable (spec §7): a
	// backend I/O error on Has/Get/Restore is logged and treated as a
	// miss, falling through to a real execution instead of aborting.
	if c != nil && !r.Force {
		hit, hasErr := c.Has(ctx, name, fp)
		if hasErr != nil {
			r.Log.Warn("cache probe failed, treating as miss", "runnable", name, "cache", cacheName, "error", hasErr)
			hit = false
		} else if hit && r.Index != nil {
			_ = r.Index.Record(ctx, fp, cacheName, name)
		}
		if hit {
			entry, getErr := c.Get(ctx, name, fp)
			if getErr != nil {
				r.Log.Warn("cache read failed, treating as miss", "runnable", name, "cache", cacheName, "error", getErr)
				entry = nil
			}
			if entry != nil {
				restorer := cache.NewRestorer(r.WorkingDir)
				if _, restoreErr := restorer.Restore(name, entry); restoreErr != nil {
					r.Log.Warn("cache restore failed, treating as miss", "runnable", name, "cache", cacheName, "error", restoreErr)
				} else {
					res.FromCache = true
					res.ExitCode = entry.ExitCode
					res.Stdout = entry.Stdout
					res.Stderr = entry.Stderr
					res.State = graph.Success
					if entry.ExitCode != 0 {
						res.State = graph.Failure
					}
					return res
				}
			}
		}
	}

	execRes, err := r.execute(ctx, runnable, space)
	if err != nil {
		res.Err = err
		res.State = graph.Failure
		return res
	}
	res.ExitCode = execRes.ExitCode
	res.Stdout = execRes.Stdout
	res.Stderr = execRes.Stderr
	if execRes.ExitCode == 0 {
		res.State = graph.Success
	} else {
		res.State = graph.Failure
	}

	if c != nil && shouldCache(runnable.CacheWhen, execRes.ExitCode) {
		entry := &cache.Entry{Slug: name, Fingerprint: fp, Stdout: execRes.Stdout, Stderr: execRes.Stderr, ExitCode: execRes.ExitCode}
		if execRes.ExitCode == 0 {
			artifacts, err := harvest(r.WorkingDir, runnable.Artifacts)
			if err != nil {
				res.Err = err
				res.State = graph.Failure
				return res
			}
			entry.Artifacts = artifacts
		}
		// A cache write failure is logged and swallowed (spec §7): the
		// runnable itself already succeeded or failed on its own merits,
		// and a warm cache is an optimization, not a correctness
		// requirement.
		if err := c.Put(ctx, entry); err != nil {
			r.Log.Warn("cache write failed", "runnable", name, "cache", cacheName, "error", err)
		}
	}

	return res
}

// Probe resolves name's fingerprint and reports whether it is already
// present in its cache backend, without executing or restoring anything.
// Used by --cache-status selection (spec §4.6) to filter warm/cold nodes
// ahead of a run.
func (r *Runner) Probe(ctx context.Context, name string) (bool, error) {
	runnable, ok := r.Runnables[name]
	if !ok {
		return false, errUnknownRunnable(name)
	}
	var space *config.Space
	if runnable.Space != "" {
		space = r.Config.Spaces[runnable.Space]
	}
	resolver := fingerprint.NewResolver(r.Hash)
	coll, err := resolver.Resolve(ctx, runnable.Exec, runnable.Artifacts, runnable.Deps, space, r.commandFingerprints())
	if err != nil {
		return false, err
	}
	c, err := r.cacheFor(runnable.Cache)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	return c.Has(ctx, name, coll.Hash())
}

// commandFingerprints returns a snapshot of every completed node's own
// fingerprint by its owning command name, so a "command"-type dependency
// (spec §3, "another command's own fingerprint") resolves to the upstream
// node's already-computed digest. The state machine guarantees a node only
// becomes ready once its dependencies are Success, so by the time this is
// read for a downstream node every upstream fingerprint it could need is
// already recorded.
func (r *Runner) commandFingerprints() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.fps))
	for k, v := range r.fps {
		out[k] = v
	}
	return out
}

// recordFingerprint stores name's resolved fingerprint for later
// "command"-type dependency lookups by downstream nodes.
func (r *Runner) recordFingerprint(name, fp string) {
	r.mu.Lock()
	r.fps[name] = fp
	if runnable, ok := r.Runnables[name]; ok {
		r.fps[runnable.Command] = fp
	}
	r.mu.Unlock()
}

// shouldCache implements the four-value cache-when policy (spec §4.3),
// superseding original_source/qik/runnable.py's narrower success/failed
// enum: "" defaults to "success".
func shouldCache(when string, exitCode int) bool {
	switch when {
	case "never":
		return false
	case "always":
		return true
	case "finished":
		return true
	case "success", "":
		return exitCode == 0
	default:
		return exitCode == 0
	}
}

type unknownRunnableError struct{ name string }

func (e *unknownRunnableError) Error() string { return "unknown runnable: " + e.name }

func errUnknownRunnable(name string) error { return &unknownRunnableError{name: name} }
