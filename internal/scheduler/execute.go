// execute.go implements spec.md §4.7 step 3: running a single Runnable's
// exec string as a subprocess with a composed environment, a process-group
// kill on cancellation, and an optional per-runnable timeout. Grounded on
// the teacher's internal/core/executor.go Execute (exec.CommandContext,
// syscall.SysProcAttr{Setpgid:true}, process-group SIGKILL), with the
// environment-composition policy inverted: spec.md §4.7.3.b composes from
// process env + venv env additions + dotenv files rather than the
// teacher's empty-environment allowlist.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"qik/internal/config"
	"qik/internal/expand"
	"qik/internal/plugin"
	"qik/internal/qikerr"
)

// ExecResult is the outcome of running a Runnable's command once.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// execute runs r's Exec string under sh -c, in WorkingDir joined with the
// runnable's module directory if any, with the composed environment
// described in spec.md §4.7.3.b.
func (sched *Runner) execute(ctx context.Context, r *expand.Runnable, space *config.Space) (*ExecResult, error) {
	runCtx := ctx
	if r.HasTimeout {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	dir := sched.WorkingDir
	if r.Module != nil {
		dir = filepath.Join(sched.WorkingDir, r.Module.Dir)
	}

	if space != nil && space.Venv != "" {
		if err := ensureVenv(runCtx, sched.WorkingDir, space); err != nil {
			var qe *qikerr.Error
			if errors.As(err, &qe) {
				return nil, err
			}
			return nil, qikerr.Wrap(qikerr.SubprocessFailed, r.Name, err)
		}
	}

	env, err := composeEnv(sched.WorkingDir, dir, space)
	if err != nil {
		return nil, qikerr.Wrap(qikerr.SubprocessFailed, r.Name, err)
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", r.Exec)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, qikerr.Wrap(qikerr.SubprocessFailed, r.Name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, qikerr.New(qikerr.SubprocessFailed, r.Name, fmt.Sprintf("timed out after %s", r.Timeout))
		}
		return nil, qikerr.Wrap(qikerr.Cancelled, r.Name, runCtx.Err())
	case werr := <-done:
		exitCode := 0
		if werr != nil {
			if exitErr, ok := werr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, qikerr.Wrap(qikerr.SubprocessFailed, r.Name, werr)
			}
		}
		return &ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: exitCode}, nil
	}
}

// composeEnv builds the subprocess environment per spec.md §4.7.3.b:
// process env, then the space's venv env additions, then dotenv files
// (later entries win on conflict, matching godotenv's own Overload order).
func composeEnv(root, workDir string, space *config.Space) ([]string, error) {
	env := os.Environ()

	if space == nil {
		return env, nil
	}

	if space.Venv != "" {
		env = append(env, venvEnv(root, space)...)
	}

	for _, rel := range space.Dotenv {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading dotenv %q: %w", path, err)
		}
		for k, v := range vars {
			env = append(env, k+"="+v)
		}
	}

	return env, nil
}

// ensureVenv creates space's virtualenv through its registered plugin
// backend before the first command in that space runs, so venvEnv's PATH
// prepend below actually resolves to an interpreter.
func ensureVenv(ctx context.Context, root string, space *config.Space) error {
	factory, ok := plugin.LookupVenv(space.Venv)
	if !ok {
		return qikerr.New(qikerr.VenvNotConfigured, space.Venv, "no venv plugin registered")
	}
	backend, err := factory(root, space)
	if err != nil {
		return err
	}
	return backend.Ensure(ctx, space)
}

// venvEnv derives the PATH prepend and VIRTUAL_ENV variable a `python -m
// venv` activation script would set, without sourcing a shell script.
// Grounded on original_source/qik/venv.py's activation intent; the
// concrete backend that creates the venv lives in internal/plugin/venv.
func venvEnv(root string, space *config.Space) []string {
	venvDir := filepath.Join(root, "._qik", "venv", space.Name())
	bin := "bin"
	if runtime.GOOS == "windows" {
		bin = "Scripts"
	}
	binDir := filepath.Join(venvDir, bin)

	path := os.Getenv("PATH")
	return []string{
		"VIRTUAL_ENV=" + venvDir,
		"PATH=" + binDir + string(os.PathListSeparator) + path,
	}
}

