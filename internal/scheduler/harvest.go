// harvest.go collects declared output artifacts after a successful run.
// Grounded on the teacher's internal/core/harvester.go Harvest: declared
// outputs only (no "scan everything modified" shortcut), directories
// expanded recursively, paths sorted and deduplicated for determinism,
// stored relative to the working directory so cache.Restorer can rejoin
// them against any checkout.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"qik/internal/cache"
	"qik/internal/qikerr"
)

// harvest reads every file under the declared output paths (files or
// directories, resolved relative to workDir) into cache.Artifacts. A
// declared output that doesn't exist is an error: the runnable claimed it
// would produce it and didn't.
func harvest(workDir string, declared []string) ([]cache.Artifact, error) {
	if len(declared) == 0 {
		return []cache.Artifact{}, nil
	}

	var allPaths []string
	for _, out := range declared {
		full := out
		if !filepath.IsAbs(full) {
			full = filepath.Join(workDir, out)
		}
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, qikerr.New(qikerr.SubprocessFailed, out, "declared artifact was not produced")
			}
			return nil, fmt.Errorf("stat artifact %q: %w", out, err)
		}
		if info.IsDir() {
			files, err := collectFiles(full)
			if err != nil {
				return nil, err
			}
			allPaths = append(allPaths, files...)
		} else {
			allPaths = append(allPaths, full)
		}
	}

	sort.Strings(allPaths)
	allPaths = dedupeSorted(allPaths)

	artifacts := make([]cache.Artifact, 0, len(allPaths))
	for _, path := range allPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", path, err)
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			rel = path
		}
		artifacts = append(artifacts, cache.Artifact{Path: filepath.ToSlash(rel), Content: content})
	}
	return artifacts, nil
}

func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", dir, err)
	}
	return files, nil
}

func dedupeSorted(paths []string) []string {
	if len(paths) == 0 {
		return paths
	}
	out := paths[:1]
	for _, p := range paths[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
