// root.go wires Flags' fields onto a cobra.Command, following
// roach88-nysm/brutalist's internal/cli command-construction shape
// (an Options struct populated by cmd.Flags().*Var calls, a RunE closing
// over it) and its signal-driven graceful cancellation in run.go.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qik/internal/output"
)

// NewRootCommand builds the qik root command: positional command names to
// select plus every flag in spec.md §6.
func NewRootCommand() *cobra.Command {
	var f Flags

	cmd := &cobra.Command{
		Use:           "qik [command names...]",
		Short:         "Run a directed graph of cached commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Names = args
			return runInvocation(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.Modules, "module", "m", nil, "select all commands in module (repeatable)")
	flags.StringArrayVarP(&f.Spaces, "space", "s", nil, "space name (repeatable); parsed but not used in selection")
	flags.IntVarP(&f.Concurrency, "concurrency", "n", 1, "maximum commands running at once")
	flags.BoolVarP(&f.Force, "force", "f", false, "bypass cache reads, still write results")
	flags.BoolVar(&f.Isolated, "isolated", false, "treat unselected upstream commands as already satisfied")
	flags.BoolVar(&f.Watch, "watch", false, "re-run selected commands when their inputs change")
	flags.StringVar(&f.Since, "since", "", "select commands whose inputs changed since ref")
	flags.BoolVar(&f.List, "ls", false, "print the selection and exit without running")
	flags.BoolVar(&f.Fail, "fail", false, "exit nonzero if the selection is empty")
	flags.StringVar(&f.CacheName, "cache", "", "cache name; parsed but not used in selection")
	flags.StringVar(&f.CacheWhen, "cache-when", "", "override cache-when policy (never, success, finished, always)")
	flags.StringVar(&f.CacheStatus, "cache-status", "", "restrict selection to warm or cold commands")
	flags.StringVar(&f.CacheType, "cache-type", "", "restrict selection to commands using the named cache backend")
	flags.StringVarP(&f.Profile, "profile", "p", "", "active variable profile")
	flags.IntVarP(&f.Verbose, "verbose", "v", 0, "diagnostic log verbosity (0, 1, or 2)")
	flags.StringVar(&f.Config, "config", "", "path to qik.toml (defaults to ./qik.toml)")

	cmd.AddCommand(newCacheCommand())

	return cmd
}

// runInvocation runs one Invocation to completion, returning a nonzero
// result as an exitError that main.go turns into the process exit code —
// the teacher's WrapExitError shape,
// collapsed here since Invocation.Execute already returns a spec.md §7
// exit code rather than a typed exit-error wrapper.
func runInvocation(cmd *cobra.Command, f Flags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := output.NewLogger(cmd.ErrOrStderr(), f.Verbose)
	inv := Invocation{
		Flags: f,
		Sink:  output.New(cmd.OutOrStdout()),
		Log:   logger,
	}

	code, err := inv.Execute(ctx)
	if err != nil {
		logger.Error(err.Error())
	}
	if code != 0 {
		return exitError{code: code, err: err}
	}
	return nil
}

// exitError carries a spec.md §7 exit code through cobra's error return so
// main.go can translate it via os.Exit without cobra printing its own
// generic failure message (SilenceErrors is set on the root command).
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

// ExitCode extracts the process exit code from an error returned by
// cmd.Execute(), defaulting to ExitInternalError for any other error and
// ExitSuccess for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee exitError
	if e, ok := err.(exitError); ok {
		ee = e
		return ee.code
	}
	return ExitInternalError
}
