package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"qik/internal/gitutil"
)

// mergeDriverName is the git attribute value under which the repo cache's
// merge driver is registered (spec §4.3).
const mergeDriverName = "qik-cache"

// InstallMergeDriver registers the repo cache's custom git merge driver
// for cacheDir: a `git config merge.<name>.*` entry naming the driver
// command, plus a `.gitattributes` rule assigning cacheDir's tree to it.
// exePath is the qik binary git re-invokes for every conflicted path, as
// `<exePath> cache merge-driver %O %A %B %P`. Grounded on repo.go's own
// addCacheDirToGitAttributes, which installs the linguist-generated
// attribute the same way.
func InstallMergeDriver(ctx context.Context, git *gitutil.Client, cacheDir, exePath string) error {
	if err := git.ConfigSet(ctx, "merge."+mergeDriverName+".name", "qik cache manifest resolution"); err != nil {
		return fmt.Errorf("installing merge driver name: %w", err)
	}
	driverCmd := fmt.Sprintf("%s cache merge-driver %%O %%A %%B %%P", exePath)
	if err := git.ConfigSet(ctx, "merge."+mergeDriverName+".driver", driverCmd); err != nil {
		return fmt.Errorf("installing merge driver command: %w", err)
	}
	return addMergeAttribute(ctx, git, cacheDir)
}

func addMergeAttribute(ctx context.Context, git *gitutil.Client, cacheDir string) error {
	gitDir, err := git.GitDir(ctx)
	if err != nil {
		return err
	}
	repoRoot := filepath.Dir(filepath.Clean(gitDir))
	attrsPath := filepath.Join(repoRoot, ".gitattributes")

	rel, err := filepath.Rel(repoRoot, cacheDir)
	if err != nil {
		rel = cacheDir
	}
	glob := filepath.ToSlash(filepath.Join(rel, "**", "*"))
	line := glob + " merge=" + mergeDriverName + "\n"

	existing, err := os.ReadFile(attrsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return os.WriteFile(attrsPath, []byte(line), 0o644)
	}
	if strings.Contains(string(existing), line) {
		return nil
	}
	return os.WriteFile(attrsPath, append([]byte(line), existing...), 0o644)
}

// RunMergeDriver implements git's merge driver protocol for paths matched
// by the qik-cache attribute: git invokes it with the common ancestor,
// "ours", "theirs", and the original path, and expects the resolved
// content written back to oursPath. The repo cache backend never
// three-way merges manifest churn — spec §4.3 states the acting party's
// own cache entry always wins outright, on both merge and rebase.
//
// On a plain merge that is oursPath as git presents it. During a rebase,
// git swaps the roles: the commit being replayed onto the new base — the
// actual local side doing the rebasing — arrives as "theirs", so
// preserving the local side there means taking theirsPath instead.
// Detecting which mode is in effect requires inspecting gitDir's rebase
// state, since the merge driver's arguments alone don't distinguish them.
func RunMergeDriver(gitDir, _, oursPath, theirsPath, _ string) error {
	if !rebaseInProgress(gitDir) {
		return nil
	}
	data, err := os.ReadFile(theirsPath)
	if err != nil {
		return err
	}
	return os.WriteFile(oursPath, data, 0o644)
}

func rebaseInProgress(gitDir string) bool {
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, name)); err == nil {
			return true
		}
	}
	return false
}
