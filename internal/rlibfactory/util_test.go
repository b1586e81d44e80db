package rlibfactory

import (
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestDebugfHonorsVerbose(t *testing.T) {
	oldDebug, oldVerbose := Debug, Verbose
	defer func() { Debug, Verbose = oldDebug, oldVerbose }()

	Debug, Verbose = false, false
	if out := captureStdout(t, func() { debugf("quiet %d\n", 1) }); out != "" {
		t.Errorf("debugf printed while silent: %q", out)
	}

	Verbose = true
	if out := captureStdout(t, func() { debugf("verbose %d\n", 2) }); !strings.Contains(out, "verbose 2") {
		t.Errorf("verbose mode must print, got %q", out)
	}

	Verbose = false
	Debug = true
	if out := captureStdout(t, func() { debugf("debug %d\n", 3) }); !strings.Contains(out, "debug 3") {
		t.Errorf("debug mode must print, got %q", out)
	}
}

func TestUnderscored(t *testing.T) {
	if got := underscored("solana-program"); got != "solana_program" {
		t.Errorf("underscored = %q", got)
	}
	if got := underscored("anchor"); got != "anchor" {
		t.Errorf("underscored = %q", got)
	}
}
