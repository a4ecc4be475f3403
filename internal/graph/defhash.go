package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"qik/internal/expand"
)

// computeDefHash hashes only a runnable's declarative definition fields —
// exec string, sorted artifacts, module name — ported from the teacher's
// internal/dag/taskdef_hash.go, whose length-prefixed-field framing needs
// no change for the new payload shape.
func computeDefHash(r *expand.Runnable) DefHash {
	h := sha256.New()
	writeField(h, []byte(r.Exec))

	artifacts := append([]string(nil), r.Artifacts...)
	sort.Strings(artifacts)
	writeUint(h, uint64(len(artifacts)))
	for _, a := range artifacts {
		writeField(h, []byte(a))
	}

	module := ""
	if r.Module != nil {
		module = r.Module.Name
	}
	writeField(h, []byte(module))

	return DefHash(hex.EncodeToString(h.Sum(nil)))
}

func writeField(h interface{ Write([]byte) (int, error) }, b []byte) {
	writeUint(h, uint64(len(b)))
	h.Write(b)
}

func writeUint(h interface{ Write([]byte) (int, error) }, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}
