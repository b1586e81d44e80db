package rlibfactory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFilterCrates(t *testing.T) {
	crates := []string{"solana-program", "solana-sdk", "anchor-lang", "spl-token"}

	got, err := filterCrates(crates, "^solana-", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"solana-program", "solana-sdk"}, got); diff != "" {
		t.Errorf("include mismatch (-want +got):\n%s", diff)
	}

	got, err = filterCrates(crates, "", "token", 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"solana-program", "solana-sdk", "anchor-lang"}, got); diff != "" {
		t.Errorf("exclude mismatch (-want +got):\n%s", diff)
	}

	got, err = filterCrates(crates, "", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"solana-program", "solana-sdk"}, got); diff != "" {
		t.Errorf("cap mismatch (-want +got):\n%s", diff)
	}

	if _, err := filterCrates(crates, "([", "", 0); err == nil {
		t.Error("bad include pattern must error")
	}
	if _, err := filterCrates(crates, "", "([", 0); err == nil {
		t.Error("bad exclude pattern must error")
	}
}

func TestShouldSkipCrate(t *testing.T) {
	state := &RunState{Crates: map[string]RunRecord{
		"done-crate":    {Status: StatusOK},
		"partial-crate": {Status: StatusPartial},
		"failed-crate":  {Status: StatusFailed},
	}}

	if _, skip := shouldSkipCrate(state, "fresh-crate", false); skip {
		t.Error("unrecorded crate must not be skipped")
	}
	prev, skip := shouldSkipCrate(state, "done-crate", false)
	if !skip || prev != StatusOK {
		t.Errorf("recorded crate: got (%q, %v)", prev, skip)
	}
	if _, skip := shouldSkipCrate(state, "failed-crate", false); !skip {
		t.Error("failed crates stay skipped until -force")
	}
	if _, skip := shouldSkipCrate(state, "done-crate", true); skip {
		t.Error("force must override recorded outcomes")
	}
}

func TestSBFArchsForOption(t *testing.T) {
	cases := []struct {
		opt  string
		want []string
	}{
		{"sbfv1", []string{"sbfv1"}},
		{"sbfv2", []string{"sbfv2"}},
		{"both", []string{"sbfv1", "sbfv2"}},
		{"auto", nil},
		{"", nil},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, sbfArchsForOption(tc.opt)); diff != "" {
			t.Errorf("sbfArchsForOption(%q) mismatch (-want +got):\n%s", tc.opt, diff)
		}
	}
}
