package rlibfactory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassifyResult(t *testing.T) {
	type result struct {
		Status string
		Built  int
		Total  int
	}
	cases := []struct {
		name     string
		logText  string
		exitCode int
		want     result
	}{
		{
			name:     "partial with summary",
			logText:  "building...\nDone: 3/5 versions produced rlibs\n",
			exitCode: 1,
			want:     result{StatusPartial, 3, 5},
		},
		{
			name:     "clean exit without summary",
			logText:  "nothing to do\n",
			exitCode: 0,
			want:     result{StatusOK, 0, 0},
		},
		{
			name:     "artifact missing",
			logText:  "Rlib for foo 1.0.0 not found under target\n",
			exitCode: 1,
			want:     result{StatusNoRlib, 0, 0},
		},
		{
			name:     "plain failure",
			logText:  "error[E0308]: mismatched types\n",
			exitCode: 101,
			want:     result{StatusFailed, 0, 0},
		},
		{
			name:     "clean exit with summary",
			logText:  "Done: 5/5 versions produced rlibs\n",
			exitCode: 0,
			want:     result{StatusOK, 5, 5},
		},
		{
			name: "last summary wins on reprinted logs",
			logText: "Done: 1/5 versions produced rlibs\n" +
				"retrying...\nDone: 4/5 versions produced rlibs\n",
			exitCode: 1,
			want:     result{StatusPartial, 4, 5},
		},
		{
			name:     "clean exit but nothing produced and artifact missing",
			logText:  "Rlib for foo 1.0.0 not found\nDone: 0/1 versions produced rlibs\n",
			exitCode: 0,
			want:     result{StatusNoRlib, 0, 1},
		},
		{
			name:     "nonzero exit with zero-built summary",
			logText:  "Done: 0/2 versions produced rlibs\n",
			exitCode: 1,
			want:     result{StatusFailed, 0, 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, built, total := classifyResult(tc.logText, tc.exitCode)
			got := result{status, built, total}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("classifyResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArtifactMissing(t *testing.T) {
	if artifactMissing("Rlib for foo 1.0.0 not found") != true {
		t.Error("expected artifact-missing signature to match")
	}
	if artifactMissing("Rlib for foo saved") {
		t.Error("partial signature must not match")
	}
	if artifactMissing("file not found") {
		t.Error("generic not-found text must not match")
	}
}
