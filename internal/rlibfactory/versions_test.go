package rlibfactory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		// Numeric component comparison, not string comparison.
		{"1.18.2", "1.18.16", true},
		{"1.18.16", "1.18.2", false},
		{"1.9.0", "1.10.0", true},
		// Release sorts after any prerelease on the same core.
		{"1.0.0-beta.1", "1.0.0", true},
		{"1.0.0", "1.0.0-rc.2", false},
		// Numeric prerelease tokens order numerically and before lexical ones.
		{"1.0.0-beta.2", "1.0.0-beta.10", true},
		{"1.0.0-1", "1.0.0-alpha", true},
		// Shorter prerelease list orders first when prefixes match.
		{"1.0.0-beta", "1.0.0-beta.1", true},
		// Missing trailing components count as zero.
		{"1.18", "1.18.0", false},
		{"1.18.0", "1.18", false},
		// Leading v is tolerated.
		{"v1.2.3", "1.2.4", true},
	}
	for _, tc := range cases {
		if got := versionLess(tc.a, tc.b); got != tc.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMaxVersionPrefersReleaseOverPrerelease(t *testing.T) {
	got := maxVersion([]string{"0.9.0", "1.0.0", "1.0.0-beta.1"})
	if got != "1.0.0" {
		t.Fatalf("maxVersion = %q, want %q", got, "1.0.0")
	}
}

func TestSortVersions(t *testing.T) {
	versions := []string{"1.18.16", "1.0.0", "1.0.0-beta.1", "1.18.2", "0.9.0"}
	sortVersions(versions)
	want := []string{"0.9.0", "1.0.0-beta.1", "1.0.0", "1.18.2", "1.18.16"}
	if diff := cmp.Diff(want, versions); diff != "" {
		t.Errorf("sortVersions mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupeVersions(t *testing.T) {
	got := dedupeVersions([]string{"1.0.0", "1.0.1", "1.0.0", "1.0.1"})
	want := []string{"1.0.0", "1.0.1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dedupeVersions mismatch (-want +got):\n%s", diff)
	}
}
