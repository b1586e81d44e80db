package rlibfactory

import (
	"regexp"
	"strconv"
	"strings"
)

// Outcome categories for one processed crate.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusNoRlib  = "no_rlib"
	StatusFailed  = "failed"
)

var doneLineRe = regexp.MustCompile(`Done:\s+(\d+)/(\d+)\s+versions produced rlibs`)

// artifactMissing reports whether the log carries the artifact-missing
// signature ("Rlib for ... not found ...").
func artifactMissing(logText string) bool {
	return strings.Contains(logText, "Rlib for") && strings.Contains(logText, "not found")
}

// classifyResult reduces one crate's captured build text plus exit code to a
// status and the built/total counts. When the summary line appears more than
// once (logs that re-run and reprint), the last occurrence wins.
func classifyResult(logText string, exitCode int) (string, int, int) {
	var built, total int
	haveSummary := false
	if matches := doneLineRe.FindAllStringSubmatch(logText, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		built, _ = strconv.Atoi(last[1])
		total, _ = strconv.Atoi(last[2])
		haveSummary = true
	}

	if exitCode == 0 {
		if haveSummary {
			if built == 0 && artifactMissing(logText) {
				return StatusNoRlib, built, total
			}
			return StatusOK, built, total
		}
		return StatusOK, 0, 0
	}

	if haveSummary && built > 0 {
		return StatusPartial, built, total
	}
	if artifactMissing(logText) {
		return StatusNoRlib, 0, 0
	}
	return StatusFailed, 0, 0
}
