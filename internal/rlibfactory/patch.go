package rlibfactory

import (
	"os"
	"path/filepath"
	"strings"
)

// Known failure signatures emitted by incompatible toolchain/crate pairs.
// These are empirically discovered string matches, not a version solver.
const (
	lockfileV4Hint = "lock file version 4 requires `-Znext-lockfile-bump`"
	ahashHint      = "use of unstable library feature 'build_hasher_simple_hash_one'"
)

// The edition failure comes in two phrasings depending on the cargo release.
var edition2024Hints = []string{
	"feature `edition2024` is required",
	"older than the `2024` edition",
}

// Failure signatures that justify retrying the whole build with the
// fallback compiler release. Anything else fails fast.
var compilerFallbackHints = []string{
	"requires rustc",
	"feature `edition2024` is required",
	"older than the `2024` edition",
	"lock file version 4 requires `-Znext-lockfile-bump`",
	"unknown feature `proc_macro_span_shrink`",
}

// needsCompilerFallback reports whether a failed build's output matches a
// fallback-eligible signature.
func needsCompilerFallback(status string) bool {
	for _, h := range compilerFallbackHints {
		if strings.Contains(status, h) {
			return true
		}
	}
	return false
}

// Exact Cargo.lock entry blocks for the blake3 1.8.3 -> 1.8.2 rewrite.
const blake3LockV183 = `name = "blake3"
version = "1.8.3"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "2468ef7d57b3fb7e16b576e8377cdbde2320c60e1491e961d11da40fc4f02a2d"
dependencies = [
 "arrayref",
 "arrayvec",
 "cc",
 "cfg-if",
 "constant_time_eq",
 "cpufeatures",
 "digest 0.10.7",
]
`

const blake3LockV182 = `name = "blake3"
version = "1.8.2"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "3888aaa89e4b2a40fca9848e400f6a658a5a3978de7be858e209cafa8be9a4a0"
dependencies = [
 "arrayref",
 "arrayvec",
 "cc",
 "cfg-if",
 "constant_time_eq",
 "digest 0.10.7",
]
`

// applyAhashPatch appends a pinned ahash constraint to Cargo.toml.
// Idempotent: the exact pin string is checked before writing.
func applyAhashPatch(crateDir string) (bool, error) {
	cargoToml := filepath.Join(crateDir, "Cargo.toml")
	data, err := os.ReadFile(cargoToml)
	if err != nil {
		return false, err
	}
	const marker = `ahash = "=0.8.6"`
	txt := string(data)
	if strings.Contains(txt, marker) {
		return false, nil
	}
	txt += "\n[dependencies]\nahash = \"=0.8.6\"\n"
	if err := os.WriteFile(cargoToml, []byte(txt), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// applyBlake3PinPatch pins blake3 to 1.8.2 in Cargo.toml under
// [patch.crates-io], reusing the section when it already exists.
func applyBlake3PinPatch(crateDir string) (bool, error) {
	cargoToml := filepath.Join(crateDir, "Cargo.toml")
	data, err := os.ReadFile(cargoToml)
	if err != nil {
		return false, err
	}
	const marker = `blake3 = "=1.8.2"`
	txt := string(data)
	if strings.Contains(txt, marker) {
		return false, nil
	}
	if strings.Contains(txt, "[patch.crates-io]") {
		txt += "\nblake3 = \"=1.8.2\"\n"
	} else {
		txt += "\n[patch.crates-io]\nblake3 = \"=1.8.2\"\n"
	}
	if err := os.WriteFile(cargoToml, []byte(txt), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// dropLockfile removes Cargo.lock so the toolchain regenerates one it can read.
func dropLockfile(crateDir string) bool {
	lockFile := filepath.Join(crateDir, "Cargo.lock")
	if _, err := os.Stat(lockFile); err != nil {
		return false
	}
	return os.Remove(lockFile) == nil
}

// downgradeLockfileV4 rewrites the declared lockfile format version from 4 to
// 3, first occurrence only. Returns false when the token isn't present.
func downgradeLockfileV4(crateDir string) bool {
	lockFile := filepath.Join(crateDir, "Cargo.lock")
	data, err := os.ReadFile(lockFile)
	if err != nil {
		return false
	}
	txt := string(data)
	if !strings.Contains(txt, "version = 4") {
		return false
	}
	txt = strings.Replace(txt, "version = 4", "version = 3", 1)
	return os.WriteFile(lockFile, []byte(txt), 0o644) == nil
}

// patchBlake3Lock replaces the exact blake3 1.8.3 lock entry with the 1.8.2
// equivalent. Returns false when the exact block isn't present.
func patchBlake3Lock(crateDir string) bool {
	lockFile := filepath.Join(crateDir, "Cargo.lock")
	data, err := os.ReadFile(lockFile)
	if err != nil {
		return false
	}
	txt := string(data)
	if !strings.Contains(txt, blake3LockV183) {
		return false
	}
	txt = strings.ReplaceAll(txt, blake3LockV183, blake3LockV182)
	return os.WriteFile(lockFile, []byte(txt), 0o644) == nil
}

// patchState tracks which once-only patches have already been applied during
// one attempt sequence, so a retry never re-runs a patch that can't help again.
type patchState struct {
	ahash      bool
	blake3Lock bool
	blake3Toml bool
}

// tryPatch inspects the captured build text and applies at most one new patch,
// in fixed priority order. It returns whether anything was mutated and a short
// label describing the patch for the build log.
func (p *patchState) tryPatch(crateDir, buildText string) (bool, string) {
	if !p.ahash && strings.Contains(buildText, ahashHint) {
		applied, err := applyAhashPatch(crateDir)
		if err != nil {
			debugf("ahash patch failed: %v\n", err)
			return false, ""
		}
		p.ahash = applied
		if applied {
			return true, "ahash pin"
		}
	}

	if strings.Contains(buildText, lockfileV4Hint) {
		if downgradeLockfileV4(crateDir) {
			return true, "Cargo.lock version 4 -> 3"
		}
		if dropLockfile(crateDir) {
			return true, "drop Cargo.lock v4"
		}
	}

	for _, hint := range edition2024Hints {
		if !strings.Contains(buildText, hint) {
			continue
		}
		if !p.blake3Lock {
			if patchBlake3Lock(crateDir) {
				p.blake3Lock = true
				return true, "blake3 lock entry 1.8.3 -> 1.8.2"
			}
		}
		if !p.blake3Toml {
			applied, err := applyBlake3PinPatch(crateDir)
			if err != nil {
				debugf("blake3 pin failed: %v\n", err)
				return false, ""
			}
			p.blake3Toml = applied
			if applied {
				return true, "blake3 pin in Cargo.toml"
			}
		}
		break
	}

	return false, ""
}
