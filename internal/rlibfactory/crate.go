package rlibfactory

import (
	"os"
	"path/filepath"
	"strings"
)

// crateRunOptions are the fully resolved inputs for one crate's version loop.
type crateRunOptions struct {
	Crate                   string
	Versions                []string
	CompilerSolanaVersion   string
	FallbackCompilerVersion string
	DisableCompilerFallback bool
	PlatformToolsVersion    string
	SBFArchs                []string // nil means derive per version
	ExtractDeps             bool
	CleanupTarget           bool
	CleanupSolana           bool
}

// runCrate builds every requested version of one crate, extracting produced
// rlibs into the pool as it goes. It returns how many versions produced an
// artifact; the "Done:" summary line it emits is what the batch classifier
// keys on.
func (e *crateEngine) runCrate(opts crateRunOptions) int {
	crate := opts.Crate
	successCount := 0

	compilerVersions := []string{opts.CompilerSolanaVersion}
	if !opts.DisableCompilerFallback && opts.FallbackCompilerVersion != "" {
		if opts.FallbackCompilerVersion != opts.CompilerSolanaVersion {
			compilerVersions = append(compilerVersions, opts.FallbackCompilerVersion)
		}
	}

	e.printf(colSuccess, "Getting rlibs for %s from %d versions\n", crate, len(opts.Versions))

	for _, crateVersion := range opts.Versions {
		crateVersion = strings.TrimSpace(crateVersion)
		if crateVersion == "" {
			continue
		}
		if e.exec.Context.Err() != nil {
			e.printf(colError, "Exiting...\n")
			break
		}

		built, _, rlibs, usedCompiler := e.buildWithCompilerFallback(
			crate, crateVersion, compilerVersions, opts.PlatformToolsVersion, opts.SBFArchs)
		if !built {
			e.printf(colError, "Error building %s:%s with compilers %v: build failed\n",
				crate, crateVersion, compilerVersions)
			continue
		}

		toolsTag := toolsTagFor(opts.PlatformToolsVersion)
		versionExtracted := false
		for _, rlib := range rlibs {
			destPath, copied, err := extractRlib(crate, crateVersion, rlib.Arch, toolsTag, rlib.Path)
			if err != nil {
				e.printf(colError, "Error saving rlib for %s:%s [%s]: %v\n", crate, crateVersion, rlib.Arch, err)
				continue
			}
			versionExtracted = true
			if !copied {
				e.printf(colWarn, "Rlib %s already exists, skipping\n", filepath.Base(destPath))
			} else {
				e.printf(colSuccess, "Rlib for %s:%s saved to %s (compiler=%s)\n",
					crate, crateVersion, destPath, usedCompiler)
			}
			if err := recordPoolEntry(crate, crateVersion, rlib.Arch, toolsTag, destPath); err != nil {
				debugf("failed to record pool entry for %s: %v\n", destPath, err)
			}

			if opts.ExtractDeps {
				releaseDir := filepath.Dir(rlib.Path)
				depCount, err := extractDeps(crate, crateVersion, releaseDir, toolsTag)
				if err != nil {
					debugf("deps extraction failed for %s:%s: %v\n", crate, crateVersion, err)
				} else if depCount > 0 {
					e.printf(colNote, "  deps: %d new rlibs from %s:%s\n", depCount, crate, crateVersion)
				}
			}
		}
		if versionExtracted {
			successCount++
		}

		if opts.CleanupTarget {
			if err := cleanTargetDir(crateSourceDir(crate, crateVersion)); err != nil {
				debugf("target cleanup failed for %s-%s: %v\n", crate, crateVersion, err)
			}
		}
		if opts.CleanupSolana && usedCompiler != "" {
			runCleanupToolchain(e, usedCompiler)
		}
	}

	e.printf(colSuccess, "Done: %d/%d versions produced rlibs\n", successCount, len(opts.Versions))
	return successCount
}

// parseVersionsInput resolves the version list for the crate command from
// either a single version or a versions file (one per line, optional leading
// "v" stripped).
func parseVersionsInput(versionFlag, versionsFile string) ([]string, error) {
	if versionsFile != "" {
		path := versionsFile
		if _, err := os.Stat(path); err != nil {
			alt := filepath.Join(FactoryDir, versionsFile)
			if _, err2 := os.Stat(alt); err2 != nil {
				return nil, err
			}
			path = alt
		}
		var versions []string
		for _, v := range readLines(path) {
			versions = append(versions, strings.TrimPrefix(v, "v"))
		}
		return versions, nil
	}
	if versionFlag != "" {
		return []string{strings.TrimSpace(versionFlag)}, nil
	}
	return nil, errNoVersions
}
