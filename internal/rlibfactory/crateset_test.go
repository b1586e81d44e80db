package rlibfactory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseWorkspaceDependencyNames(t *testing.T) {
	manifest := `[workspace]
members = ["sdk", "programs/*"]

[workspace.dependencies]
solana-program = { path = "sdk/program" }
solana-sdk = "2.1.0"
# solana-commented = "1.0.0"
anchor-lang = "0.30.1"
solana-program = { workspace = true }
not-a-dep-line

[workspace.lints]
rust.unused = "deny"
solana-after-section = "1.0.0"
`
	got := parseWorkspaceDependencyNames(manifest, "solana-")
	want := []string{"solana-program", "solana-sdk"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("solana prefix mismatch (-want +got):\n%s", diff)
	}

	got = parseWorkspaceDependencyNames(manifest, "anchor-")
	want = []string{"anchor-lang"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("anchor prefix mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWorkspaceDependencyNamesNoSection(t *testing.T) {
	if got := parseWorkspaceDependencyNames("[package]\nname = \"x\"\n", "solana-"); len(got) != 0 {
		t.Errorf("expected no names without a [workspace.dependencies] section, got %v", got)
	}
}

func TestSBFProgramCratesHaveNoDuplicates(t *testing.T) {
	seen := make(map[string]bool, len(sbfProgramCrates))
	for _, crate := range sbfProgramCrates {
		if seen[crate] {
			t.Errorf("duplicate whitelist entry %q", crate)
		}
		seen[crate] = true
	}
	if !seen["solana-program"] {
		t.Error("whitelist must include solana-program")
	}
}
