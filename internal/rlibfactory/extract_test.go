package rlibfactory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToolsTagFor(t *testing.T) {
	if got := toolsTagFor("v1.48"); got != "v1_48" {
		t.Errorf("toolsTagFor(v1.48) = %q, want v1_48", got)
	}
	if got := toolsTagFor("v2.0.3"); got != "v2_0_3" {
		t.Errorf("toolsTagFor(v2.0.3) = %q, want v2_0_3", got)
	}
}

func TestParseCargoLockVersions(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "Cargo.lock")
	content := `version = 3

[[package]]
name = "arrayref"
version = "0.3.9"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "solana-program"
version = "1.18.16"

[[package]]
name = "solana-program"
version = "1.17.0"
`
	if err := os.WriteFile(lock, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := parseCargoLockVersions(lock)
	want := map[string][]string{
		"arrayref":       {"0.3.9"},
		"solana_program": {"1.18.16", "1.17.0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseCargoLockVersions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCargoLockVersionsMissingFile(t *testing.T) {
	got := parseCargoLockVersions(filepath.Join(t.TempDir(), "Cargo.lock"))
	if len(got) != 0 {
		t.Errorf("missing lockfile must yield an empty map, got %v", got)
	}
}

func TestResolveDepRlibName(t *testing.T) {
	lockVersions := map[string][]string{
		"arrayref": {"0.3.9"},
		"cfg_if":   {"1.0.0", "0.1.10"},
	}
	cases := []struct {
		stem string
		want string
	}{
		// Single lockfile version: hash replaced with the version.
		{"libarrayref-0cbcb299f4d7550d", "libarrayref-0.3.9-v1_48"},
		// Multiple versions: hash kept to avoid silent collision.
		{"libcfg_if-ab12cd34ef56ab78", "libcfg_if-ab12cd34ef56ab78-v1_48"},
		// No lockfile entry: hash kept.
		{"libunknown-0123456789abcdef", "libunknown-0123456789abcdef-v1_48"},
		// Stem not matching the dep pattern: tag appended as-is.
		{"libweird", "libweird-v1_48"},
	}
	for _, tc := range cases {
		if got := resolveDepRlibName(tc.stem, lockVersions, "v1_48"); got != tc.want {
			t.Errorf("resolveDepRlibName(%q) = %q, want %q", tc.stem, got, tc.want)
		}
	}
}

func TestRlibDestNameCollisionFree(t *testing.T) {
	a := rlibDestName("solana-program", "1.18.2", "sbfv1", "v1_48")
	b := rlibDestName("solana-program", "1.18.16", "sbfv1", "v1_48")
	if a == b {
		t.Fatalf("two versions collide: %q", a)
	}
	c := rlibDestName("solana-program", "1.18.2", "sbfv2", "v1_48")
	if a == c {
		t.Fatalf("two architectures collide: %q", a)
	}
	if a != "libsolana_program-1.18.2-sbfv1-v1_48.rlib" {
		t.Errorf("unexpected pool name %q", a)
	}
}

func TestCopyFileIfAbsent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.rlib")
	dst := filepath.Join(dir, "pool", "dst.rlib")
	if err := os.WriteFile(src, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	copied, err := copyFileIfAbsent(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !copied {
		t.Fatal("first copy must happen")
	}

	// The pool is append-only: a second copy must not overwrite.
	if err := os.WriteFile(src, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	copied, err = copyFileIfAbsent(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if copied {
		t.Fatal("existing destination must be skipped")
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "first" {
		t.Errorf("destination overwritten: %q", data)
	}
}

func TestPoolIndexRoundTrip(t *testing.T) {
	oldRlibs := RlibsDir
	RlibsDir = t.TempDir()
	defer func() { RlibsDir = oldRlibs }()

	entries := []RlibEntry{
		{Name: "b-crate", Version: "1.0.0", Arch: "sbfv1", ToolsTag: "v1_48", Filename: "libb_crate-1.0.0-sbfv1-v1_48.rlib", Size: 10, B3Sum: "aa"},
		{Name: "a-crate", Version: "2.0.0", Arch: "sbfv2", ToolsTag: "v1_48", Filename: "liba_crate-2.0.0-sbfv2-v1_48.rlib", Size: 20, B3Sum: "bb"},
	}
	if err := savePoolIndex(poolIndexPath(), entries); err != nil {
		t.Fatal(err)
	}

	loaded := loadPoolIndex(poolIndexPath())
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	// savePoolIndex sorts by filename.
	if loaded[0].Name != "a-crate" || loaded[1].Name != "b-crate" {
		t.Errorf("index not sorted by filename: %v", loaded)
	}
}

func TestRecordPoolEntryResolvesArtifactPath(t *testing.T) {
	oldRlibs := RlibsDir
	RlibsDir = t.TempDir()
	defer func() { RlibsDir = oldRlibs }()

	src := filepath.Join(t.TempDir(), "libdemo_crate.rlib")
	if err := os.WriteFile(src, []byte("rlib bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	destPath, copied, err := extractRlib("demo-crate", "1.0.0", "sbfv1", "v1_48", src)
	if err != nil {
		t.Fatal(err)
	}
	if !copied {
		t.Fatal("fresh pool must copy the artifact")
	}
	if err := recordPoolEntry("demo-crate", "1.0.0", "sbfv1", "v1_48", destPath); err != nil {
		t.Fatal(err)
	}

	index := loadPoolIndex(poolIndexPath())
	if len(index) != 1 {
		t.Fatalf("expected 1 index entry, got %d", len(index))
	}
	entry := index[0]
	if want := "demo-crate/libdemo_crate-1.0.0-sbfv1-v1_48.rlib"; entry.Path != want {
		t.Errorf("entry path = %q, want %q", entry.Path, want)
	}
	// The recorded path must resolve to the artifact the extractor wrote.
	if entry.localPath() != destPath {
		t.Errorf("localPath() = %q, want %q", entry.localPath(), destPath)
	}
	if _, err := os.Stat(entry.localPath()); err != nil {
		t.Errorf("indexed artifact not found on disk: %v", err)
	}

	// Entries from older indexes carry no path and reconstruct it.
	legacy := RlibEntry{Name: "demo-crate", Filename: "libdemo_crate-1.0.0-sbfv1-v1_48.rlib"}
	if legacy.localPath() != destPath {
		t.Errorf("legacy localPath() = %q, want %q", legacy.localPath(), destPath)
	}
}
