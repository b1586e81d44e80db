package rlibfactory

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// Matches a Cargo dep rlib stem: lib<crate_name>-<16hex_metadata_hash>
var depRlibRe = regexp.MustCompile(`^lib(.+)-([0-9a-f]{16})$`)

// Matches one [[package]] name/version pair in a Cargo.lock.
var lockPackageRe = regexp.MustCompile(`(?m)^\[\[package\]\]\s*\nname\s*=\s*"([^"]+)"\s*\nversion\s*=\s*"([^"]+)"`)

// toolsTagFor converts a platform-tools version into a filename-safe tag,
// e.g. v1.48 -> v1_48.
func toolsTagFor(toolsVersion string) string {
	return strings.ReplaceAll(toolsVersion, ".", "_")
}

// parseCargoLockVersions parses a Cargo.lock into
// {underscored_crate_name: [versions]}.
func parseCargoLockVersions(cargoLockPath string) map[string][]string {
	data, err := os.ReadFile(cargoLockPath)
	if err != nil {
		return map[string][]string{}
	}
	result := make(map[string][]string)
	for _, m := range lockPackageRe.FindAllStringSubmatch(string(data), -1) {
		name := underscored(m[1])
		result[name] = append(result[name], m[2])
	}
	return result
}

// resolveDepRlibName rewrites a dependency rlib stem into a human-readable
// pool name: libarrayref-0cbcb299f4d7550d -> libarrayref-0.3.9-v1_48.
// When the lockfile records zero or multiple versions for the dependency the
// metadata hash is kept to avoid silent collisions.
func resolveDepRlibName(stem string, lockVersions map[string][]string, toolsTag string) string {
	m := depRlibRe.FindStringSubmatch(stem)
	if m == nil {
		return stem + "-" + toolsTag
	}
	crateName := m[1]
	versions := lockVersions[crateName]
	if len(versions) == 1 {
		return "lib" + crateName + "-" + versions[0] + "-" + toolsTag
	}
	return stem + "-" + toolsTag
}

// rlibDestName is the collision-free pool filename for a primary artifact:
// crate name, version, architecture and tools tag all participate.
func rlibDestName(crate, crateVersion, sbfArch, toolsTag string) string {
	return fmt.Sprintf("lib%s-%s-%s-%s.rlib", underscored(crate), crateVersion, sbfArch, toolsTag)
}

// copyFileIfAbsent copies src to dst unless dst already exists. The pool is
// append-only so a re-run never overwrites. Reports whether a copy happened.
func copyFileIfAbsent(src, dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return false, err
	}
	return true, out.Close()
}

// extractRlib copies one built artifact into the per-crate pool directory.
// Returns the destination path and whether a copy actually happened.
func extractRlib(crate, crateVersion, sbfArch, toolsTag, rlibPath string) (string, bool, error) {
	destPath := filepath.Join(RlibsDir, crate, rlibDestName(crate, crateVersion, sbfArch, toolsTag))
	copied, err := copyFileIfAbsent(rlibPath, destPath)
	if err != nil {
		return destPath, false, err
	}
	return destPath, copied, nil
}

// extractDeps copies the transitive dependency rlibs of a successful build
// into the shared per-crate deps pool, renaming hash-suffixed stems to
// version-suffixed ones where the lockfile allows. Returns how many new
// rlibs were copied.
func extractDeps(crate, crateVersion, releaseDir, toolsTag string) (int, error) {
	depsDir := filepath.Join(releaseDir, "deps")
	if info, err := os.Stat(depsDir); err != nil || !info.IsDir() {
		return 0, nil
	}

	lockVersions := parseCargoLockVersions(filepath.Join(crateSourceDir(crate, crateVersion), "Cargo.lock"))
	depsDst := filepath.Join(RlibsDir, crate, "deps")
	if err := os.MkdirAll(depsDst, 0o755); err != nil {
		return 0, err
	}

	matches, err := filepath.Glob(filepath.Join(depsDir, "*.rlib"))
	if err != nil {
		return 0, err
	}
	sort.Strings(matches)

	count := 0
	for _, depRlib := range matches {
		stem := strings.TrimSuffix(filepath.Base(depRlib), ".rlib")
		outName := resolveDepRlibName(stem, lockVersions, toolsTag)
		copied, err := copyFileIfAbsent(depRlib, filepath.Join(depsDst, outName+".rlib"))
		if err != nil {
			return count, err
		}
		if copied {
			count++
		}
	}
	return count, nil
}

// RlibEntry describes one pooled artifact in the rlib index. Path is relative
// to the pool root because artifacts live in per-crate subdirectories.
type RlibEntry struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Arch     string `json:"arch"`
	ToolsTag string `json:"tools_tag"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	B3Sum    string `json:"b3sum"`
}

// localPath resolves the entry's artifact on disk. Entries from older indexes
// carry no path; those reconstruct it from the crate name layout.
func (e RlibEntry) localPath() string {
	if e.Path != "" {
		return filepath.Join(RlibsDir, filepath.FromSlash(e.Path))
	}
	return filepath.Join(RlibsDir, e.Name, e.Filename)
}

// poolIndexPath is the local rlib pool index file.
func poolIndexPath() string {
	return filepath.Join(RlibsDir, "rlib-index.json")
}

// computeB3Sum returns the BLAKE3-256 hex digest of a file.
func computeB3Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadPoolIndex reads the rlib index; a missing or unreadable file yields an
// empty index.
func loadPoolIndex(path string) []RlibEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var index []RlibEntry
	if err := json.Unmarshal(data, &index); err != nil {
		debugf("ignoring unreadable rlib index %s: %v\n", path, err)
		return nil
	}
	return index
}

// savePoolIndex writes the rlib index sorted by filename.
func savePoolIndex(path string, index []RlibEntry) error {
	sort.Slice(index, func(i, j int) bool { return index[i].Filename < index[j].Filename })
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// recordPoolEntry upserts one artifact into the rlib index, keyed by filename.
func recordPoolEntry(crate, crateVersion, sbfArch, toolsTag, destPath string) error {
	info, err := os.Stat(destPath)
	if err != nil {
		return err
	}
	sum, err := computeB3Sum(destPath)
	if err != nil {
		return err
	}

	relPath, err := filepath.Rel(RlibsDir, destPath)
	if err != nil {
		relPath = filepath.Join(crate, filepath.Base(destPath))
	}

	entry := RlibEntry{
		Name:     crate,
		Version:  crateVersion,
		Arch:     sbfArch,
		ToolsTag: toolsTag,
		Filename: filepath.Base(destPath),
		Path:     filepath.ToSlash(relPath),
		Size:     info.Size(),
		B3Sum:    sum,
	}

	index := loadPoolIndex(poolIndexPath())
	replaced := false
	for i := range index {
		if index[i].Filename == entry.Filename {
			index[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, entry)
	}
	return savePoolIndex(poolIndexPath(), index)
}
