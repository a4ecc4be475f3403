package fingerprint

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"qik/internal/hashsource"
)

// TestHash_IdenticalInputsProduceSameHash mirrors the corpus's baseline
// determinism check (internal/core/hasher_test.go).
func TestHash_IdenticalInputsProduceSameHash(t *testing.T) {
	col := &Collection{
		Globs: []hashsource.FileHash{
			{Path: "a.py", Hash: "1"},
			{Path: "b.py", Hash: "2"},
		},
		Consts: []Variant{{Kind: "const", Key: "FOO", Value: "bar"}},
	}

	if col.Hash() != col.Hash() {
		t.Error("identical collection produced different hashes across calls")
	}
}

func TestHash_GlobOrderDoesNotAffectHash(t *testing.T) {
	col1 := &Collection{Globs: []hashsource.FileHash{
		{Path: "z.py", Hash: "1"},
		{Path: "a.py", Hash: "2"},
	}}
	col2 := &Collection{Globs: []hashsource.FileHash{
		{Path: "a.py", Hash: "2"},
		{Path: "z.py", Hash: "1"},
	}}

	if col1.Hash() != col2.Hash() {
		t.Error("glob declaration order affected hash")
	}
}

func TestHash_ContentChangeInvalidatesHash(t *testing.T) {
	col1 := &Collection{Globs: []hashsource.FileHash{{Path: "a.py", Hash: "1"}}}
	col2 := &Collection{Globs: []hashsource.FileHash{{Path: "a.py", Hash: "2"}}}

	if col1.Hash() == col2.Hash() {
		t.Error("content hash change did not invalidate fingerprint")
	}
}

func TestHash_ConstKeyOrderDoesNotAffectHash(t *testing.T) {
	col1 := &Collection{Consts: []Variant{
		{Kind: "const", Key: "B", Value: "2"},
		{Kind: "const", Key: "A", Value: "1"},
	}}
	col2 := &Collection{Consts: []Variant{
		{Kind: "const", Key: "A", Value: "1"},
		{Kind: "const", Key: "B", Value: "2"},
	}}

	if col1.Hash() != col2.Hash() {
		t.Error("const declaration order affected hash")
	}
}

func TestHash_PydistVersionChangeInvalidatesHash(t *testing.T) {
	col1 := &Collection{Pydists: []Variant{{Kind: "pydist", Key: "requests", Value: "2.31.0"}}}
	col2 := &Collection{Pydists: []Variant{{Kind: "pydist", Key: "requests", Value: "2.32.0"}}}

	if col1.Hash() == col2.Hash() {
		t.Error("pydist version change did not invalidate fingerprint")
	}
}

func TestHash_CommandDependencyChangeInvalidatesHash(t *testing.T) {
	col1 := &Collection{Cmds: []Variant{{Kind: "command", Key: "build", Value: "aaa"}}}
	col2 := &Collection{Cmds: []Variant{{Kind: "command", Key: "build", Value: "bbb"}}}

	if col1.Hash() == col2.Hash() {
		t.Error("upstream command fingerprint change did not invalidate this fingerprint")
	}
}

func TestHash_ExecChangeInvalidatesHash(t *testing.T) {
	col1 := &Collection{Exec: "python -m build"}
	col2 := &Collection{Exec: "python -m build --wheel"}

	if col1.Hash() == col2.Hash() {
		t.Error("resolved shell string change did not invalidate fingerprint")
	}
}

func TestHash_ArtifactsChangeInvalidatesHash(t *testing.T) {
	col1 := &Collection{Artifacts: []string{"dist/*.whl"}}
	col2 := &Collection{Artifacts: []string{"dist/*.whl", "dist/*.tar.gz"}}

	if col1.Hash() == col2.Hash() {
		t.Error("artifact glob list change did not invalidate fingerprint")
	}
}

func TestHash_ArtifactsOrderDoesNotAffectHash(t *testing.T) {
	col1 := &Collection{Artifacts: []string{"b.txt", "a.txt"}}
	col2 := &Collection{Artifacts: []string{"a.txt", "b.txt"}}

	if col1.Hash() != col2.Hash() {
		t.Error("artifact declaration order affected hash")
	}
}

func TestHash_EmptyCollectionIsStable(t *testing.T) {
	col := &Collection{}
	h1 := col.Hash()
	h2 := (&Collection{}).Hash()
	if h1 != h2 || h1 == "" {
		t.Error("empty collection did not produce a stable, non-empty hash")
	}
}

// TestHash_CanonicalDigestIsStable pins a fully-populated Collection's
// digest against a golden fixture, catching any accidental change to the
// length-prefixed framing or field ordering that TestHash_* above can't
// see (they only compare two live-computed hashes against each other).
func TestHash_CanonicalDigestIsStable(t *testing.T) {
	col := &Collection{
		Exec:      "python -m build",
		Artifacts: []string{"dist/*.whl", "dist/*.tar.gz"},
		Globs: []hashsource.FileHash{
			{Path: "a.py", Hash: "1"},
			{Path: "b.py", Hash: "2"},
		},
		Consts:  []Variant{{Kind: "const", Key: "FOO", Value: "bar"}},
		Pydists: []Variant{{Kind: "pydist", Key: "requests", Value: "2.31.0"}},
		Cmds:    []Variant{{Kind: "command", Key: "build", Value: "aaa"}},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "canonical_digest", []byte(col.Hash()))
}

func TestHash_Format(t *testing.T) {
	col := &Collection{Consts: []Variant{{Kind: "const", Key: "K", Value: "V"}}}
	h := col.Hash()
	if len(h) != 64 {
		t.Errorf("expected 64 character hash, got %d", len(h))
	}
	for _, c := range h {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("invalid hex character in hash: %c", c)
		}
	}
}
