package rlibfactory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadRunStateMissingFile(t *testing.T) {
	state := loadRunState(filepath.Join(t.TempDir(), "nope.json"))
	if state.Meta.CreatedAt == "" {
		t.Error("fresh state must carry a creation timestamp")
	}
	if state.Crates == nil || len(state.Crates) != 0 {
		t.Errorf("fresh state must have an empty crates map, got %v", state.Crates)
	}
}

func TestLoadRunStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"meta": {"created_at": "2026-01-01T`), 0o644); err != nil {
		t.Fatal(err)
	}
	state := loadRunState(path)
	if len(state.Crates) != 0 {
		t.Error("corrupt state must recover to fresh, never propagate")
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	state := loadRunState(path)
	state.Meta.Config = RunConfig{
		SolanaVersion: "1.18.16",
		Scope:         "solana",
		LatestOnly:    true,
	}
	state.Crates["solana-program"] = RunRecord{
		Status:            StatusPartial,
		Built:             3,
		Total:             5,
		LastRun:           "2026-08-26T00:00:00Z",
		Log:               "/tmp/solana-program.log",
		VersionsRequested: []string{"1.18.2", "1.18.16"},
	}
	if err := saveRunState(path, state); err != nil {
		t.Fatal(err)
	}
	if state.Meta.UpdatedAt == "" {
		t.Error("save must stamp updated_at")
	}

	loaded := loadRunState(path)
	if diff := cmp.Diff(state.Crates, loaded.Crates); diff != "" {
		t.Errorf("crates mismatch after reload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(state.Meta, loaded.Meta); diff != "" {
		t.Errorf("meta mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestSaveRunStateLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := saveRunState(path, loadRunState(path)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must be renamed away")
	}
}

func TestVersionsForRecordCompression(t *testing.T) {
	short := []string{"1.0.0", "1.0.1", "1.0.2"}
	if diff := cmp.Diff(short, versionsForRecord(short)); diff != "" {
		t.Errorf("short lists must pass through (-want +got):\n%s", diff)
	}

	long := []string{"0.1.0", "0.2.0", "0.3.0", "0.4.0", "0.5.0", "0.6.0", "0.7.0", "0.8.0", "0.9.0"}
	want := []string{"0.1.0", "...", "0.9.0"}
	if diff := cmp.Diff(want, versionsForRecord(long)); diff != "" {
		t.Errorf("long lists must compress (-want +got):\n%s", diff)
	}
}

func TestLockStateDirExclusive(t *testing.T) {
	dir := t.TempDir()
	release, err := lockStateDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if release2, err := lockStateDir(dir); err == nil {
		release2()
		t.Error("second lock on the same state dir must fail")
	}
}
