// cache.go adds the cache backend's plumbing subcommands: installing the
// repo cache's git merge driver (spec.md §4.3) and the driver's own
// invocation entry point, both grouped under `qik cache`.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"qik/internal/cache"
	"qik/internal/config"
	"qik/internal/gitutil"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Repo cache backend plumbing",
	}
	cmd.AddCommand(newInstallMergeDriverCommand())
	cmd.AddCommand(newMergeDriverCommand())
	return cmd
}

func newInstallMergeDriverCommand() *cobra.Command {
	var configPath, cacheName string

	cmd := &cobra.Command{
		Use:   "install-merge-driver",
		Short: "Register the git merge driver for a repo cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return installMergeDriver(cmd.Context(), configPath, cacheName)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to qik.toml (defaults to ./qik.toml)")
	cmd.Flags().StringVar(&cacheName, "cache", "", "name of the repo cache to install a merge driver for")
	_ = cmd.MarkFlagRequired("cache")
	return cmd
}

// newMergeDriverCommand is the plumbing entry point git itself invokes
// (never a human), per the driver command InstallMergeDriver configures:
// `qik cache merge-driver %O %A %B %P`.
func newMergeDriverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "merge-driver <ancestor> <ours> <theirs> <path>",
		Short:  "Git merge driver entry point for the repo cache (invoked by git, not directly)",
		Hidden: true,
		Args:   cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			git := gitutil.New(".")
			gitDir, err := git.GitDir(cmd.Context())
			if err != nil {
				return err
			}
			return cache.RunMergeDriver(gitDir, args[0], args[1], args[2], args[3])
		},
	}
	return cmd
}

func installMergeDriver(ctx context.Context, configPath, cacheName string) error {
	if configPath == "" {
		configPath = "qik.toml"
	}
	configDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cacheCfg, ok := cfg.Caches[cacheName]
	if !ok {
		return fmt.Errorf("no cache named %q configured", cacheName)
	}
	if cacheCfg.Type != "repo" {
		return fmt.Errorf("cache %q is type %q, not repo — only a repo cache uses a merge driver", cacheName, cacheCfg.Type)
	}

	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	git := gitutil.New(configDir)
	return cache.InstallMergeDriver(ctx, git, configDir, exePath)
}
