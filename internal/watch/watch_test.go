package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_FileChangeTriggersOnChange(t *testing.T) {
	dir := t.TempDir()

	w, err := New(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.Add([]string{dir}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	triggered := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx, func(context.Context) {
		select {
		case triggered <- struct{}{}:
		default:
		}
	})

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "changed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onChange after file write")
	}
}

func TestGlobRoot_StopsAtFirstWildcard(t *testing.T) {
	got := globRoot("/repo", "src/**/*.go")
	want := filepath.Join("/repo", "src")
	if got != want {
		t.Errorf("globRoot(src/**/*.go) = %q, want %q", got, want)
	}
}

func TestGlobRoot_NoWildcardReturnsFullPath(t *testing.T) {
	got := globRoot("/repo", "package.json")
	want := filepath.Join("/repo", "package.json")
	if got != want {
		t.Errorf("globRoot(package.json) = %q, want %q", got, want)
	}
}
