package scheduler

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"qik/internal/expand"
)

// TestExecute_ProcessEnvIsVisible verifies spec.md §4.7.3.b's composition
// policy: unlike the teacher's allowlist Executor, host process env vars
// ARE visible to the subprocess; a declared space only adds to them.
func TestExecute_ProcessEnvIsVisible(t *testing.T) {
	os.Setenv("QIK_TEST_HOST_VAR", "visible")
	defer os.Unsetenv("QIK_TEST_HOST_VAR")

	sched := &Runner{WorkingDir: t.TempDir()}
	r := &expand.Runnable{Name: "echo", Exec: "echo \"VAR=$QIK_TEST_HOST_VAR\""}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := sched.execute(ctx, r, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "VAR=visible") {
		t.Errorf("expected host env var visible, got %q", res.Stdout)
	}
}

func TestExecute_ExitCodeIsCaptured(t *testing.T) {
	sched := &Runner{WorkingDir: t.TempDir()}
	r := &expand.Runnable{Name: "fail", Exec: "exit 7"}

	res, err := sched.execute(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", res.ExitCode)
	}
}

func TestExecute_TimeoutKillsProcess(t *testing.T) {
	sched := &Runner{WorkingDir: t.TempDir()}
	r := &expand.Runnable{Name: "sleepy", Exec: "sleep 5", HasTimeout: true, Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := sched.execute(context.Background(), r, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed > 2*time.Second {
		t.Errorf("execute did not return promptly after timeout, took %s", elapsed)
	}
}
