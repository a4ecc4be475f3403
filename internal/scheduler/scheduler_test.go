package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qik/internal/config"
	"qik/internal/expand"
	"qik/internal/graph"
	"qik/internal/hashsource"
)

func newTestRunner(t *testing.T, runnables []*expand.Runnable) (*Runner, *graph.Graph) {
	t.Helper()
	g, err := graph.New(runnables)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	dir := t.TempDir()
	cfg := &config.Config{Caches: map[string]*config.Cache{}, Spaces: map[string]*config.Space{}}
	return NewRunner(g, runnables, cfg, hashsource.New(dir), dir, dir, nil, nil, nil), g
}

func TestRun_ChainExecutesInDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "order.txt")

	runnables := []*expand.Runnable{
		{Name: "A", Command: "A", Exec: "echo A >> " + marker, Cache: "none"},
		{Name: "B", Command: "B", Exec: "echo B >> " + marker, Cache: "none",
			Deps: []config.DepSpec{{Type: "command", Name: "A"}}},
	}
	g, err := graph.New(runnables)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Caches: map[string]*config.Cache{}, Spaces: map[string]*config.Space{}}
	sched := NewRunner(g, runnables, cfg, hashsource.New(dir), dir, dir, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := sched.Run(ctx, []string{"A", "B"}, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results["A"].State != graph.Success || results["B"].State != graph.Success {
		t.Fatalf("expected both nodes to succeed, got %+v", results)
	}

	content, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if string(content) != "A\nB\n" {
		t.Errorf("expected A before B, got %q", content)
	}
}

func TestRun_FailurePropagatesUpstreamFailedToDependents(t *testing.T) {
	runnables := []*expand.Runnable{
		{Name: "A", Command: "A", Exec: "exit 1", Cache: "none"},
		{Name: "B", Command: "B", Exec: "echo hi", Cache: "none",
			Deps: []config.DepSpec{{Type: "command", Name: "A"}}},
	}
	sched, _ := newTestRunner(t, runnables)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := sched.Run(ctx, []string{"A", "B"}, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results["A"].State != graph.Failure {
		t.Errorf("expected A to be Failure, got %s", results["A"].State)
	}
	if _, ran := results["B"]; ran && results["B"].State == graph.Success {
		t.Errorf("B should not have succeeded after A failed")
	}
}

func TestRun_SecondRunReplaysFromCache(t *testing.T) {
	dir := t.TempDir()
	countFile := filepath.Join(dir, "count.txt")
	runnables := []*expand.Runnable{
		{Name: "A", Command: "A", Exec: "printf x >> " + countFile},
	}
	g, err := graph.New(runnables)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Caches: map[string]*config.Cache{}, Spaces: map[string]*config.Space{}}
	sched := NewRunner(g, runnables, cfg, hashsource.New(dir), dir, dir, nil, nil, nil)

	ctx := context.Background()
	if _, err := sched.Run(ctx, []string{"A"}, 1); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := sched.Run(ctx, []string{"A"}, 1); err != nil {
		t.Fatalf("second run: %v", err)
	}

	content, err := os.ReadFile(countFile)
	if err != nil {
		t.Fatalf("reading count file: %v", err)
	}
	if string(content) != "x" {
		t.Errorf("expected the command to run exactly once (cached the second time), got %q", content)
	}
}

func TestRun_ForceBypassesCacheRead(t *testing.T) {
	dir := t.TempDir()
	countFile := filepath.Join(dir, "count.txt")
	runnables := []*expand.Runnable{
		{Name: "A", Command: "A", Exec: "printf x >> " + countFile},
	}
	g, err := graph.New(runnables)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Caches: map[string]*config.Cache{}, Spaces: map[string]*config.Space{}}
	sched := NewRunner(g, runnables, cfg, hashsource.New(dir), dir, dir, nil, nil, nil)
	sched.Force = true

	ctx := context.Background()
	if _, err := sched.Run(ctx, []string{"A"}, 1); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := sched.Run(ctx, []string{"A"}, 1); err != nil {
		t.Fatalf("second run: %v", err)
	}

	content, err := os.ReadFile(countFile)
	if err != nil {
		t.Fatalf("reading count file: %v", err)
	}
	if string(content) != "xx" {
		t.Errorf("expected -f to bypass the cache and re-run both times, got %q", content)
	}
}
