package output

import (
	"bytes"
	"strings"
	"testing"

	"qik/internal/graph"
)

func TestSink_StatusIncludesRunnableName(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithTheme(&buf, PlainTheme())

	s.Status("build@moduleA", graph.Success, false)

	if !strings.Contains(buf.String(), "build@moduleA") {
		t.Errorf("expected output to mention the runnable name, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "SUCCESS") {
		t.Errorf("expected output to mention SUCCESS, got %q", buf.String())
	}
}

func TestSink_CachedOverridesStateLabel(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithTheme(&buf, PlainTheme())

	s.Status("build", graph.Success, true)

	if !strings.Contains(buf.String(), "CACHED") {
		t.Errorf("expected CACHED label for a from-cache result, got %q", buf.String())
	}
}

func TestSink_StreamPrefixesWithRunnableName(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithTheme(&buf, PlainTheme())

	s.Stream("test", []byte("all green\n"))

	if !strings.Contains(buf.String(), "test |") {
		t.Errorf("expected stream output prefixed with runnable name, got %q", buf.String())
	}
}
