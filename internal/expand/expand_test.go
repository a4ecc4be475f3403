package expand

import (
	"os"
	"path/filepath"
	"testing"

	"qik/internal/config"
	"qik/internal/qikctx"
)

func TestExpand_NonParametricCommandProducesSingleRunnable(t *testing.T) {
	cfg := &config.Config{
		Commands: map[string]*config.Command{
			"lint": {Exec: "ruff check ."},
		},
	}
	cfg.Commands["lint"].SetName("lint")

	ctx := qikctx.NewHandle(cfg, "default")
	runnables, err := Expand(cfg, ctx, t.TempDir())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(runnables) != 1 {
		t.Fatalf("expected 1 runnable, got %d", len(runnables))
	}
	if runnables[0].Name != "lint" {
		t.Errorf("expected name %q, got %q", "lint", runnables[0].Name)
	}
	if runnables[0].Exec != "ruff check ." {
		t.Errorf("expected unmodified exec, got %q", runnables[0].Exec)
	}
}

func TestExpand_ParametricCommandFansOutPerModule(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"services/api", "services/worker"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		Spaces: map[string]*config.Space{
			"py": {Root: "services", Modules: []string{"*"}},
		},
		Commands: map[string]*config.Command{
			"test": {Exec: "pytest {module.dir}", Space: "py"},
		},
	}
	cfg.Spaces["py"].SetName("py")
	cfg.Commands["test"].SetName("test")

	ctx := qikctx.NewHandle(cfg, "default")
	runnables, err := Expand(cfg, ctx, root)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(runnables) != 2 {
		t.Fatalf("expected 2 runnables, got %d", len(runnables))
	}
	for _, r := range runnables {
		if r.Module == nil {
			t.Errorf("expected module to be set for parametric runnable %q", r.Name)
		}
	}
}

func TestExpand_ParametricCommandWithoutSpaceErrors(t *testing.T) {
	cfg := &config.Config{
		Commands: map[string]*config.Command{
			"test": {Exec: "pytest {module.dir}"},
		},
	}
	cfg.Commands["test"].SetName("test")

	ctx := qikctx.NewHandle(cfg, "default")
	if _, err := Expand(cfg, ctx, t.TempDir()); err == nil {
		t.Fatal("expected an error for a parametric command with no space")
	}
}
