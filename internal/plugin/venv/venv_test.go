package venv

import "testing"

func TestParsePyvenvVersion(t *testing.T) {
	data := "home = /usr/bin\nversion = 3.11.4\nexecutable = /usr/bin/python3\n"
	if got := parsePyvenvVersion(data); got != "3.11.4" {
		t.Errorf("parsePyvenvVersion() = %q, want %q", got, "3.11.4")
	}
}

func TestParsePyvenvVersion_MissingKeyReturnsEmpty(t *testing.T) {
	if got := parsePyvenvVersion("home = /usr/bin\n"); got != "" {
		t.Errorf("expected empty string for missing version key, got %q", got)
	}
}
