package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"qik/internal/qikerr"
)

// Restorer applies a cached Entry's artifacts to a working directory,
// grounded on the teacher's internal/core/replay.go Replayer: skip
// artifacts whose on-disk content already matches (sha256 compare-before-
// write), otherwise atomically write the cached bytes.
type Restorer struct {
	WorkingDir string
}

func NewRestorer(workingDir string) *Restorer {
	return &Restorer{WorkingDir: workingDir}
}

// Restore writes entry's artifacts into the working directory, returning
// the count actually written (as opposed to already-matching).
func (r *Restorer) Restore(cmdName string, entry *Entry) (int, error) {
	if entry == nil {
		return 0, qikerr.New(qikerr.CacheIO, cmdName, "nil cache entry")
	}

	restored := 0
	for _, artifact := range entry.Artifacts {
		if artifact.Path == "" {
			return restored, qikerr.New(qikerr.CacheIO, cmdName, "artifact path is empty")
		}

		target := artifact.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(r.WorkingDir, target)
		}
		target = filepath.FromSlash(target)

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return restored, qikerr.Wrap(qikerr.CacheIO, artifact.Path, err)
		}

		want := sha256Hex(artifact.Content)
		have, ok, err := fileSHA256HexIfExists(target)
		if err != nil {
			return restored, qikerr.Wrap(qikerr.CacheIO, artifact.Path, err)
		}
		if ok && have == want {
			continue
		}

		if err := writeFileAtomic(target, artifact.Content, 0o644); err != nil {
			return restored, qikerr.Wrap(qikerr.CacheIO, artifact.Path, err)
		}
		restored++
	}
	return restored, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256HexIfExists(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
