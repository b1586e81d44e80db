package rlibfactory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// versionKey is the sortable form of one crate version string.
// Releases order after prereleases sharing the same numeric core, and
// prerelease tokens compare numeric-before-lexical.
type versionKey struct {
	nums    [4]int
	release bool
	pre     []preToken
}

type preToken struct {
	numeric bool
	num     int
	str     string
}

// versionSortKey parses a dotted version (with optional -prerelease suffix)
// into its ordering key. A leading "v" is tolerated, missing trailing numeric
// components count as 0, and a non-numeric core component contributes its
// leading digits (or 0).
func versionSortKey(ver string) versionKey {
	s := strings.TrimPrefix(strings.TrimSpace(ver), "v")
	core := s
	pre := ""
	if i := strings.Index(s, "-"); i >= 0 {
		core, pre = s[:i], s[i+1:]
	}

	var key versionKey
	for i, part := range strings.Split(core, ".") {
		if i >= len(key.nums) {
			break
		}
		if n, err := strconv.Atoi(part); err == nil {
			key.nums[i] = n
			continue
		}
		// Take the leading digit run, if any.
		j := 0
		for j < len(part) && part[j] >= '0' && part[j] <= '9' {
			j++
		}
		if j > 0 {
			key.nums[i], _ = strconv.Atoi(part[:j])
		}
	}

	if pre == "" {
		key.release = true
		return key
	}
	for _, tok := range strings.Split(pre, ".") {
		if n, err := strconv.Atoi(tok); err == nil && tok != "" {
			key.pre = append(key.pre, preToken{numeric: true, num: n})
		} else {
			key.pre = append(key.pre, preToken{str: tok})
		}
	}
	return key
}

// compare returns -1, 0 or 1 for a total order over version keys.
func (k versionKey) compare(o versionKey) int {
	for i := range k.nums {
		if k.nums[i] != o.nums[i] {
			if k.nums[i] < o.nums[i] {
				return -1
			}
			return 1
		}
	}
	// Same numeric core: a release sorts after any prerelease.
	if k.release != o.release {
		if k.release {
			return 1
		}
		return -1
	}
	n := len(k.pre)
	if len(o.pre) < n {
		n = len(o.pre)
	}
	for i := 0; i < n; i++ {
		if c := k.pre[i].compare(o.pre[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k.pre) < len(o.pre):
		return -1
	case len(k.pre) > len(o.pre):
		return 1
	}
	return 0
}

func (t preToken) compare(o preToken) int {
	// Numeric tokens sort before non-numeric ones.
	if t.numeric != o.numeric {
		if t.numeric {
			return -1
		}
		return 1
	}
	if t.numeric {
		switch {
		case t.num < o.num:
			return -1
		case t.num > o.num:
			return 1
		}
		return 0
	}
	return strings.Compare(t.str, o.str)
}

// versionLess reports whether version a orders before version b.
func versionLess(a, b string) bool {
	return versionSortKey(a).compare(versionSortKey(b)) < 0
}

// maxVersion selects the greatest version under the domain ordering.
func maxVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if versionLess(best, v) {
			best = v
		}
	}
	return best
}

// sortVersions orders a version list ascending, in place.
func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versionLess(versions[i], versions[j])
	})
}

// versionCacheFile is the per-crate newline-delimited version list.
func versionCacheFile(crate string) string {
	return filepath.Join(VersionsDir, crate+".txt")
}

// resolveVersionsForCrate returns the buildable version set for one crate.
// The registry is the primary source; the result is persisted to the local
// cache, which also serves as the fallback when the registry is unreachable.
// An empty result means the crate is unresolvable, not a hard failure.
func resolveVersionsForCrate(ctx context.Context, crate string, latestOnly bool) []string {
	versions, err := fetchNonYankedVersions(ctx, crate)
	if err != nil {
		colWarn.Printf("%s: online versions fetch failed, using local index (%v)\n", crate, err)
		versions = readLines(versionCacheFile(crate))
	} else if len(versions) > 0 {
		cached := dedupeVersions(versions)
		sortVersions(cached)
		if err := os.MkdirAll(VersionsDir, 0o755); err == nil {
			if err := writeLines(versionCacheFile(crate), cached); err != nil {
				debugf("failed to write version cache for %s: %v\n", crate, err)
			}
		}
	}

	if len(versions) == 0 {
		return nil
	}
	if latestOnly {
		return []string{maxVersion(versions)}
	}
	return versions
}

func dedupeVersions(versions []string) []string {
	seen := make(map[string]bool, len(versions))
	var out []string
	for _, v := range versions {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
