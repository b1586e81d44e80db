package rlibfactory

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// withCargoBinPath returns the environment with ~/.cargo/bin prepended to
// PATH when that directory exists.
func withCargoBinPath(env []string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return env
	}
	cargoBin := filepath.Join(home, ".cargo", "bin")
	if info, err := os.Stat(cargoBin); err != nil || !info.IsDir() {
		return env
	}

	out := make([]string, 0, len(env)+1)
	patched := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			current := strings.TrimPrefix(kv, "PATH=")
			for _, p := range filepath.SplitList(current) {
				if p == cargoBin {
					return env
				}
			}
			kv = "PATH=" + cargoBin + string(os.PathListSeparator) + current
			patched = true
		}
		out = append(out, kv)
	}
	if !patched {
		out = append(out, "PATH="+cargoBin)
	}
	return out
}

// preflightHostToolchain verifies the host rust toolchain is present.
// Its absence is a fatal precondition, never retried.
func preflightHostToolchain() error {
	env := withCargoBinPath(os.Environ())
	pathVal := ""
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			pathVal = strings.TrimPrefix(kv, "PATH=")
		}
	}

	var missing []string
	for _, tool := range []string{"cargo", "rustc"} {
		if !toolOnPath(tool, pathVal) {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s, install the rust toolchain first (apt: cargo rustc)",
		errMissingHostToolchain, strings.Join(missing, ", "))
}

func toolOnPath(tool, pathVal string) bool {
	for _, dir := range filepath.SplitList(pathVal) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, tool)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return true
		}
	}
	return false
}

// toolchainReleaseDir is where one installed toolchain release lives.
func toolchainReleaseDir(solanaVersion string) string {
	return filepath.Join(ToolchainDir, "solana-release-"+solanaVersion)
}

// cargoBuildSBFPath locates the build driver binary inside a release.
func cargoBuildSBFPath(solanaVersion string) string {
	return filepath.Join(toolchainReleaseDir(solanaVersion), "bin", "cargo-build-sbf")
}

// ensureToolchainRelease installs the toolchain release via the external
// install script. Already present on disk counts as success.
func ensureToolchainRelease(e *crateEngine, solanaVersion string) error {
	dir := toolchainReleaseDir(solanaVersion)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	e.printf(colSuccess, "Solana version %s not found, installing...\n", solanaVersion)

	script := filepath.Join(FactoryDir, installScript)
	cmd := exec.Command("bash", script, solanaVersion)
	cmd.Dir = FactoryDir
	if _, _, err := e.exec.RunCapture(cmd, e.mirror()); err != nil {
		return fmt.Errorf("install script failed: %w", err)
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("toolchain release %s missing after install", solanaVersion)
	}
	return nil
}

// crateSourceDir is where one unpacked crate source tree lives.
func crateSourceDir(crate, version string) string {
	return filepath.Join(CratesDir, crate+"-"+version)
}

// ensureCrateSource fetches and unpacks the crate source tree. The external
// fetch script is preferred; when it is absent the registry's download
// endpoint is used directly and the .crate tarball unpacked natively.
func ensureCrateSource(e *crateEngine, crate, version string) error {
	dir := crateSourceDir(crate, version)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	e.printf(colSuccess, "Crate %s version %s not found, fetching...\n", crate, version)

	script := filepath.Join(FactoryDir, fetchScript)
	if _, err := os.Stat(script); err == nil {
		cmd := exec.Command("bash", script, crate, version)
		cmd.Dir = FactoryDir
		if _, _, err := e.exec.RunCapture(cmd, e.mirror()); err != nil {
			return fmt.Errorf("fetch script failed: %w", err)
		}
	} else {
		if err := fetchCrateNative(e.exec.Context, crate, version); err != nil {
			return fmt.Errorf("native crate fetch failed: %w", err)
		}
	}

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("crate source %s-%s missing after fetch", crate, version)
	}
	return nil
}

// fetchCrateNative downloads the .crate archive from the registry and unpacks
// it under CratesDir. A .crate file is a gzipped tarball rooted at
// <name>-<version>/.
func fetchCrateNative(ctx context.Context, crate, version string) error {
	u := fmt.Sprintf("%s/crates/%s/%s/download", registryAPI, url.PathEscape(crate), url.PathEscape(version))
	data, err := httpGet(ctx, u)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(CratesDir, 0o755); err != nil {
		return err
	}

	gz, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("bad crate archive for %s-%s: %w", crate, version, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		// Reject entries escaping the crates dir.
		clean := filepath.Clean(header.Name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			continue
		}
		target := filepath.Join(CratesDir, clean)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// runCleanupToolchain removes an installed toolchain release via the external
// cleanup script. Failures are non-fatal.
func runCleanupToolchain(e *crateEngine, solanaVersion string) {
	script := filepath.Join(FactoryDir, cleanupScript)
	if _, err := os.Stat(script); err != nil {
		return
	}
	cmd := exec.Command("bash", script, solanaVersion)
	cmd.Dir = FactoryDir
	if _, _, err := e.exec.RunCapture(cmd, nil); err != nil {
		debugf("toolchain cleanup for %s failed: %v\n", solanaVersion, err)
	}
}
