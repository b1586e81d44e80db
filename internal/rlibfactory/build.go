package rlibfactory

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Build attempts per architecture before giving up. Each retry must be
// preceded by an actual file mutation from the patch engine.
const maxBuildAttempts = 5

// crateEngine drives every build/extract operation for crates. Engine
// messages go to the console when streaming and always to the capture sink,
// so the batch classifier sees the same text a human would.
type crateEngine struct {
	exec   *Executor
	out    io.Writer // capture sink: per-crate log file plus classification buffer
	stream bool
}

// printf writes one engine message: colored on the console, plain in the sink.
func (e *crateEngine) printf(style colorPrinter, format string, a ...any) {
	if e.stream {
		cPrintf(style, format, a...)
	}
	if e.out != nil {
		fmt.Fprintf(e.out, format, a...)
	}
}

// mirror is the writer handed to subprocesses so their output reaches the
// sink and, when streaming, the console.
func (e *crateEngine) mirror() io.Writer {
	var ws []io.Writer
	if e.out != nil {
		ws = append(ws, e.out)
	}
	if e.stream {
		ws = append(ws, os.Stdout)
	}
	switch len(ws) {
	case 0:
		return nil
	case 1:
		return ws[0]
	}
	return io.MultiWriter(ws...)
}

// builtRlib is one produced artifact: which architecture and where.
type builtRlib struct {
	Arch string
	Path string
}

// archsForVersion derives the target architecture set from the crate version
// major number: 2.x+ crates build for sbfv2 only, 1.x for sbfv1 only.
// Unparseable versions default to sbfv1.
func archsForVersion(crateVersion string) []string {
	majorStr := crateVersion
	if i := strings.IndexAny(crateVersion, ".-"); i >= 0 {
		majorStr = crateVersion[:i]
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return []string{"sbfv1"}
	}
	if major >= 2 {
		return []string{"sbfv2"}
	}
	return []string{"sbfv1"}
}

// targetTripleForArch maps an sbf architecture to its target triple
// directory name under target/.
func targetTripleForArch(sbfArch string) string {
	if sbfArch == "sbfv2" {
		return "sbpfv3-solana-solana"
	}
	return "sbf-solana-solana"
}

// cleanTargetDir removes a crate's target directory so the next build for a
// different architecture starts fresh; outputs are not disambiguated by
// architecture on disk.
func cleanTargetDir(crateDir string) error {
	targetDir := filepath.Join(crateDir, "target")
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(targetDir)
}

// runBuildAttempt spawns one cargo-build-sbf invocation in the crate tree and
// returns its exit code plus combined output.
func (e *crateEngine) runBuildAttempt(crateDir, cargoBuildSBF, toolsVersion, sbfArch string) (int, string, error) {
	args := []string{}
	if toolsVersion != "" {
		args = append(args, "--tools-version", toolsVersion)
	}
	if sbfArch != "" {
		args = append(args, "--arch", sbfArch)
	}
	cmd := exec.Command(cargoBuildSBF, args...)
	cmd.Dir = crateDir
	env := withCargoBinPath(os.Environ())
	env = append(env, "RUSTFLAGS=-C overflow-checks=on")
	cmd.Env = env
	return e.exec.RunCapture(cmd, e.mirror())
}

// attemptBuild runs the full attempt sequence for one crate+version with one
// compiler release: for each applicable architecture, up to maxBuildAttempts
// build attempts with at most one new compatibility patch per retry. A zero
// exit code without the expected rlib on disk counts as a failure for that
// architecture.
func (e *crateEngine) attemptBuild(crate, crateVersion, solanaVersion, toolsVersion string, sbfArchs []string) (bool, string, []builtRlib) {
	if err := ensureToolchainRelease(e, solanaVersion); err != nil {
		e.printf(colError, "Failed to install solana version %s: %v\n", solanaVersion, err)
		return false, "", nil
	}
	if err := ensureCrateSource(e, crate, crateVersion); err != nil {
		e.printf(colError, "Failed to fetch crate %s version %s: %v\n", crate, crateVersion, err)
		return false, "", nil
	}

	crateDir := crateSourceDir(crate, crateVersion)
	cargoBuildSBF := cargoBuildSBFPath(solanaVersion)
	if _, err := os.Stat(cargoBuildSBF); err != nil {
		e.printf(colError, "cargo-build-sbf not found at %s\n", cargoBuildSBF)
		return false, "", nil
	}

	if len(sbfArchs) == 0 {
		sbfArchs = archsForVersion(crateVersion)
	}

	rlibName := "lib" + underscored(crate) + ".rlib"
	var built []builtRlib
	lastStatus := ""

	for _, sbfArch := range sbfArchs {
		e.printf(colSuccess, "Building crate %s version %s with toolchain %s [arch=%s]...\n",
			crate, crateVersion, solanaVersion, sbfArch)

		// Clean target to rebuild with the new arch
		if err := cleanTargetDir(crateDir); err != nil {
			e.printf(colError, "Failed to clean target dir for %s-%s: %v\n", crate, crateVersion, err)
			continue
		}

		var patches patchState
		archBuilt := false

		for attempt := 1; attempt <= maxBuildAttempts; attempt++ {
			code, status, err := e.runBuildAttempt(crateDir, cargoBuildSBF, toolsVersion, sbfArch)
			lastStatus = status
			if err != nil {
				e.printf(colError, "Build attempt failed to run: %v\n", err)
				break
			}
			if code == 0 {
				e.printf(colSuccess, "Crate %s version %s [%s] built successfully!\n", crate, crateVersion, sbfArch)
				archBuilt = true
				break
			}

			mutated, label := patches.tryPatch(crateDir, status)
			if !mutated {
				break
			}
			e.printf(colWarn, "[compat] applying %s...\n", label)
		}

		if !archBuilt {
			e.printf(colError, "Crate %s version %s [%s] build failed!\n", crate, crateVersion, sbfArch)
			continue
		}

		// Find the rlib. A successful exit without the artifact is a failure.
		triple := targetTripleForArch(sbfArch)
		rlibPath := filepath.Join(crateDir, "target", triple, "release", rlibName)
		if _, err := os.Stat(rlibPath); err != nil {
			e.printf(colError, "Rlib for %s:%s [%s] not found at %s\n", crate, crateVersion, sbfArch, rlibPath)
			continue
		}
		built = append(built, builtRlib{Arch: sbfArch, Path: rlibPath})
	}

	return len(built) > 0, lastStatus, built
}

// buildWithCompilerFallback tries the compiler version candidates in order.
// The fallback is only attempted when the primary failure matches a
// fallback-eligible signature; anything else fails immediately.
func (e *crateEngine) buildWithCompilerFallback(crate, crateVersion string, compilerVersions []string, toolsVersion string, sbfArchs []string) (bool, string, []builtRlib, string) {
	lastStatus := ""
	usedCompiler := ""
	for i, compilerVersion := range compilerVersions {
		usedCompiler = compilerVersion
		e.printf(colSuccess, "Building %s:%s with compiler Solana %s (attempt %d/%d)\n",
			crate, crateVersion, compilerVersion, i+1, len(compilerVersions))

		ok, status, rlibs := e.attemptBuild(crate, crateVersion, compilerVersion, toolsVersion, sbfArchs)
		lastStatus = status
		if ok {
			return true, lastStatus, rlibs, usedCompiler
		}
		if i+1 < len(compilerVersions) && !needsCompilerFallback(status) {
			break
		}
	}
	return false, lastStatus, nil, usedCompiler
}
