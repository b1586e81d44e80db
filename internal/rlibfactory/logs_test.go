package rlibfactory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompressLogAndReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solana-program.log")
	const content = "attempt 1 failed\nDone: 1/1 versions produced rlibs\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := compressLog(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("plain log must be removed after compression")
	}

	got, err := readLogFile(path + ".zst")
	if err != nil {
		t.Fatal(err)
	}
	if got != content {
		t.Errorf("roundtrip mismatch: %q", got)
	}
}

func TestReadLogFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readLogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello\n" {
		t.Errorf("readLogFile = %q", got)
	}
}

func TestListLogsAndLogPathFor(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"beta.log", "alpha.log.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	crates, err := listLogs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, crates); diff != "" {
		t.Errorf("listLogs mismatch (-want +got):\n%s", diff)
	}

	path, err := logPathFor(dir, "beta")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "beta.log" {
		t.Errorf("plain log must win: %q", path)
	}

	path, err = logPathFor(dir, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "alpha.log.zst" {
		t.Errorf("archived log expected: %q", path)
	}

	if _, err := logPathFor(dir, "missing"); err == nil {
		t.Error("missing crate must error")
	}
}

func TestArchiveOldLogsSkipsUnrecordedCrates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"recorded.log", "inflight.log", "fresh.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("log text\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	state := &RunState{Crates: map[string]RunRecord{
		"recorded": {Status: StatusOK},
		"fresh":    {Status: StatusOK},
	}}
	keep := map[string]struct{}{"fresh": {}}

	if err := archiveOldLogs(dir, state, keep); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "recorded.log.zst")); err != nil {
		t.Error("recorded crate's log must be archived")
	}
	if _, err := os.Stat(filepath.Join(dir, "inflight.log")); err != nil {
		t.Error("unrecorded crate's log must be left alone")
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.log")); err != nil {
		t.Error("current run's log must stay uncompressed")
	}
}
