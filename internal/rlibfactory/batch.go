package rlibfactory

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BatchOptions are the resolved inputs of one batch invocation.
type BatchOptions struct {
	SolanaVersion           string
	CompilerSolanaVersion   string
	FallbackCompilerVersion string
	PlatformToolsVersion    string
	SBFArch                 string // sbfv1, sbfv2, both or auto
	Scope                   string // solana, solana-all, anchor or all
	LatestOnly              bool
	Include                 string
	Exclude                 string
	MaxCrates               int
	Force                   bool
	CleanupTarget           bool
	CleanupSolana           bool
	DryRun                  bool
	Stream                  bool
}

// sbfArchsForOption maps the --sbf-arch flag to an explicit architecture set;
// nil means derive per crate version.
func sbfArchsForOption(opt string) []string {
	switch opt {
	case "sbfv1":
		return []string{"sbfv1"}
	case "sbfv2":
		return []string{"sbfv2"}
	case "both":
		return []string{"sbfv1", "sbfv2"}
	}
	return nil
}

// shouldSkipCrate reports whether a crate already carries a terminal outcome
// from a previous run and the batch isn't forced.
func shouldSkipCrate(state *RunState, crate string, force bool) (string, bool) {
	if force {
		return "", false
	}
	rec, ok := state.Crates[crate]
	if !ok {
		return "", false
	}
	switch rec.Status {
	case StatusOK, StatusPartial, StatusNoRlib, StatusFailed:
		return rec.Status, true
	}
	return "", false
}

// runOneCrate executes the crate engine for one crate while capturing all of
// its output into a per-crate log file and a classification buffer.
func runOneCrate(exec *Executor, crate string, versions []string, opts BatchOptions, logPath string) (int, string) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return -1, fmt.Sprintf("failed to create log dir: %v", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return -1, fmt.Sprintf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	var buf bytes.Buffer
	engine := &crateEngine{
		exec:   exec,
		out:    io.MultiWriter(&buf, logFile),
		stream: opts.Stream,
	}

	built := engine.runCrate(crateRunOptions{
		Crate:                   crate,
		Versions:                versions,
		CompilerSolanaVersion:   opts.CompilerSolanaVersion,
		FallbackCompilerVersion: opts.FallbackCompilerVersion,
		PlatformToolsVersion:    opts.PlatformToolsVersion,
		SBFArchs:                sbfArchsForOption(opts.SBFArch),
		ExtractDeps:             true,
		CleanupTarget:           opts.CleanupTarget,
		CleanupSolana:           opts.CleanupSolana,
	})

	code := 1
	if built == len(versions) {
		code = 0
	}
	return code, buf.String()
}

// persistState saves the run state, shielding the write from the first
// interrupt so a Ctrl+C never truncates the file.
func persistState(path string, state *RunState) {
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)
	if err := saveRunState(path, state); err != nil {
		colWarn.Printf("failed to persist state: %v\n", err)
	}
}

// RunBatch is the batch driver: resolve the crate set, skip crates with
// recorded outcomes, build the rest strictly sequentially, persist state
// after every crate and write a run summary. The returned code is the
// process exit code.
func RunBatch(exec *Executor, opts BatchOptions) int {
	ctx := exec.Context

	if err := preflightHostToolchain(); err != nil {
		colError.Println(err)
		return 2
	}

	for _, dir := range []string{VersionsDir, StateDir, LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			colError.Printf("failed to create %s: %v\n", dir, err)
			return 1
		}
	}

	release, err := lockStateDir(StateDir)
	if err != nil {
		colError.Println(err)
		return 1
	}
	defer release()

	crates, err := resolveCrates(ctx, opts.Scope)
	if err != nil {
		colError.Printf("Error: %v\n", err)
		return 1
	}
	crates, err = filterCrates(crates, opts.Include, opts.Exclude, opts.MaxCrates)
	if err != nil {
		colError.Printf("Error: %v\n", err)
		return 1
	}
	if len(crates) == 0 {
		colError.Println("no crates selected after filters")
		return 1
	}

	stateFile := filepath.Join(StateDir, "latest-build-state.json")
	summaryFile := filepath.Join(StateDir,
		fmt.Sprintf("run-latest-%s.summary", time.Now().UTC().Format("20060102-150405")))

	state := loadRunState(stateFile)
	state.Meta.Config = RunConfig{
		SolanaVersion:           opts.SolanaVersion,
		CompilerSolanaVersion:   opts.CompilerSolanaVersion,
		FallbackCompilerVersion: opts.FallbackCompilerVersion,
		PlatformToolsVersion:    opts.PlatformToolsVersion,
		Scope:                   opts.Scope,
		LatestOnly:              opts.LatestOnly,
	}

	var ok, partial, noRlib, fail, skip int
	summaryLines := []string{
		fmt.Sprintf("selected_crates=%d", len(crates)),
		fmt.Sprintf("scope=%s", opts.Scope),
		fmt.Sprintf("latest_only=%t", opts.LatestOnly),
		fmt.Sprintf("solana_version=%s", opts.SolanaVersion),
		fmt.Sprintf("compiler_solana_version=%s", opts.CompilerSolanaVersion),
		fmt.Sprintf("fallback_compiler_solana_version=%s", opts.FallbackCompilerVersion),
		fmt.Sprintf("platform_tools_version=%s", opts.PlatformToolsVersion),
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Selected %d crates (scope=%s, latest_only=%t)\n", len(crates), opts.Scope, opts.LatestOnly)

	// When child output isn't mirrored, a progress bar carries the feedback.
	var bar *progressbar.ProgressBar
	if !opts.Stream && !opts.DryRun {
		bar = progressbar.NewOptions(len(crates),
			progressbar.OptionSetDescription("building"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	advance := func(crate string) {
		if bar != nil {
			bar.Describe(crate)
			bar.Add(1)
		}
	}

	builtThisRun := make(map[string]struct{})
	for i, crate := range crates {
		if ctx.Err() != nil {
			colWarn.Println("Interrupted, stopping before next crate")
			break
		}

		if prev, skipped := shouldSkipCrate(state, crate, opts.Force); skipped {
			colArrow.Print("-> ")
			colSuccess.Printf("[%d/%d] skip %s: already %s\n", i+1, len(crates), crate, prev)
			skip++
			advance(crate)
			continue
		}

		versions := resolveVersionsForCrate(ctx, crate, opts.LatestOnly)
		if len(versions) == 0 {
			colWarn.Printf("[%d/%d] fail %s: no versions found\n", i+1, len(crates), crate)
			fail++
			state.Crates[crate] = RunRecord{
				Status:  StatusFailed,
				Error:   "no versions found",
				LastRun: nowISO(),
			}
			summaryLines = append(summaryLines, fmt.Sprintf("fail=%s reason=no_versions", crate))
			persistState(stateFile, state)
			advance(crate)
			continue
		}

		versionsLabel := fmt.Sprintf("%d versions", len(versions))
		if opts.LatestOnly {
			versionsLabel = "latest"
		}
		colArrow.Print("-> ")
		colSuccess.Printf("[%d/%d] build %s (%s)\n", i+1, len(crates), crate, versionsLabel)

		logPath := filepath.Join(LogsDir, crate+".log")
		if opts.DryRun {
			colNote.Printf("DRY-RUN: would build %s versions=%v\n", crate, versions)
			advance(crate)
			continue
		}

		rc, logText := runOneCrate(exec, crate, versions, opts, logPath)
		builtThisRun[crate] = struct{}{}
		status, built, total := classifyResult(logText, rc)

		switch status {
		case StatusOK:
			ok++
			summaryLines = append(summaryLines, fmt.Sprintf("ok=%s", crate))
		case StatusPartial:
			partial++
			summaryLines = append(summaryLines, fmt.Sprintf("partial=%s built=%d total=%d", crate, built, total))
		case StatusNoRlib:
			noRlib++
			summaryLines = append(summaryLines, fmt.Sprintf("no_rlib=%s", crate))
		default:
			fail++
			summaryLines = append(summaryLines, fmt.Sprintf("fail=%s", crate))
		}

		state.Crates[crate] = RunRecord{
			Status:            status,
			Built:             built,
			Total:             total,
			LastRun:           nowISO(),
			Log:               logPath,
			VersionsRequested: versionsForRecord(versions),
		}
		persistState(stateFile, state)

		switch status {
		case StatusFailed:
			colWarn.Printf("[%d/%d] failed %s (log: %s)\n", i+1, len(crates), crate, logPath)
		case StatusPartial:
			colWarn.Printf("[%d/%d] partial %s: %d/%d (log: %s)\n", i+1, len(crates), crate, built, total, logPath)
		case StatusNoRlib:
			colWarn.Printf("[%d/%d] no_rlib %s (log: %s)\n", i+1, len(crates), crate, logPath)
		}
		advance(crate)
	}

	summaryLines = append(summaryLines,
		fmt.Sprintf("ok=%d", ok),
		fmt.Sprintf("partial=%d", partial),
		fmt.Sprintf("no_rlib=%d", noRlib),
		fmt.Sprintf("fail=%d", fail),
		fmt.Sprintf("skip=%d", skip),
	)
	if err := writeLines(summaryFile, summaryLines); err != nil {
		colWarn.Printf("failed to write summary: %v\n", err)
	}

	if err := archiveOldLogs(LogsDir, state, builtThisRun); err != nil {
		debugf("log archiving failed: %v\n", err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Done: ok=%d partial=%d no_rlib=%d fail=%d skip=%d\n", ok, partial, noRlib, fail, skip)
	colArrow.Print("-> ")
	colSuccess.Printf("State: %s\n", stateFile)
	colArrow.Print("-> ")
	colSuccess.Printf("Summary: %s\n", summaryFile)

	if fail > 0 {
		return 1
	}
	return 0
}

// filterCrates applies the include/exclude regex filters and the max cap.
func filterCrates(crates []string, include, exclude string, maxCrates int) ([]string, error) {
	out := crates
	if include != "" {
		pat, err := regexp.Compile(include)
		if err != nil {
			return nil, fmt.Errorf("bad include pattern: %w", err)
		}
		var kept []string
		for _, c := range out {
			if pat.MatchString(c) {
				kept = append(kept, c)
			}
		}
		out = kept
	}
	if exclude != "" {
		pat, err := regexp.Compile(exclude)
		if err != nil {
			return nil, fmt.Errorf("bad exclude pattern: %w", err)
		}
		var kept []string
		for _, c := range out {
			if !pat.MatchString(c) {
				kept = append(kept, c)
			}
		}
		out = kept
	}
	if maxCrates > 0 && len(out) > maxCrates {
		out = out[:maxCrates]
	}
	return out, nil
}
