package rlibfactory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// RunConfig echoes the effective batch configuration into the state file.
type RunConfig struct {
	SolanaVersion           string `json:"solana_version"`
	CompilerSolanaVersion   string `json:"compiler_solana_version"`
	FallbackCompilerVersion string `json:"fallback_compiler_solana_version"`
	PlatformToolsVersion    string `json:"platform_tools_version"`
	Scope                   string `json:"scope"`
	LatestOnly              bool   `json:"latest_only"`
}

// RunMeta carries the state file's bookkeeping timestamps.
type RunMeta struct {
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at,omitempty"`
	Config    RunConfig `json:"config"`
}

// RunRecord is the persisted outcome of the most recent run for one crate.
type RunRecord struct {
	Status            string   `json:"status"`
	Built             int      `json:"built,omitempty"`
	Total             int      `json:"total,omitempty"`
	Error             string   `json:"error,omitempty"`
	LastRun           string   `json:"last_run"`
	Log               string   `json:"log,omitempty"`
	VersionsRequested []string `json:"versions_requested,omitempty"`
}

// RunState is the whole resumable batch state: one record per crate.
type RunState struct {
	Meta   RunMeta              `json:"meta"`
	Crates map[string]RunRecord `json:"crates"`
}

// loadRunState reads the persisted state. A missing or corrupt file recovers
// to a fresh state with a new creation timestamp; corruption is never fatal.
func loadRunState(path string) *RunState {
	fresh := func() *RunState {
		return &RunState{
			Meta:   RunMeta{CreatedAt: nowISO()},
			Crates: make(map[string]RunRecord),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fresh()
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		colWarn.Printf("run state %s unreadable (%v), starting fresh\n", path, err)
		return fresh()
	}
	if state.Crates == nil {
		state.Crates = make(map[string]RunRecord)
	}
	if state.Meta.CreatedAt == "" {
		state.Meta.CreatedAt = nowISO()
	}
	return &state
}

// saveRunState persists the state, stamping updated_at. The write goes to a
// temp file and renames into place so a reader never sees a half-written
// document. Called after every single crate, never batched.
func saveRunState(path string, state *RunState) error {
	state.Meta.UpdatedAt = nowISO()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace run state: %w", err)
	}
	return nil
}

// versionsForRecord compresses long version lists to [first, "...", last]
// before persisting.
func versionsForRecord(versions []string) []string {
	if len(versions) <= 8 {
		return versions
	}
	return []string{versions[0], "...", versions[len(versions)-1]}
}

// lockStateDir takes an exclusive advisory lock on the state directory so two
// batch invocations can't interleave state writes. The returned release
// function must be called on shutdown; a nil error with nil release means
// locking is unsupported here.
func lockStateDir(stateDir string) (func(), error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(stateDir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another batch run holds %s: %w", lockPath, err)
	}
	release := func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}
	return release, nil
}
