package rlibfactory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// archiveOldLogs compresses finished per-crate logs to .log.zst and removes
// the originals. Logs for crates whose recorded status is still missing are
// left alone so a rerun can keep appending, and crates named in keep stay
// uncompressed so the most recent run remains directly readable.
func archiveOldLogs(logsDir string, state *RunState, keep map[string]struct{}) error {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		crate := strings.TrimSuffix(name, ".log")
		if _, ok := state.Crates[crate]; !ok {
			continue
		}
		if _, ok := keep[crate]; ok {
			continue
		}
		src := filepath.Join(logsDir, name)
		if err := compressLog(src); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}
	return nil
}

func compressLog(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(path)
}

// readLogFile returns the text of a build log, transparently decompressing
// archived .zst logs.
func readLogFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// listLogs returns the crate names that have a log file (plain or archived),
// sorted.
func listLogs(logsDir string) ([]string, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".log.zst"):
			seen[strings.TrimSuffix(name, ".log.zst")] = struct{}{}
		case strings.HasSuffix(name, ".log"):
			seen[strings.TrimSuffix(name, ".log")] = struct{}{}
		}
	}
	crates := make([]string, 0, len(seen))
	for c := range seen {
		crates = append(crates, c)
	}
	sort.Strings(crates)
	return crates, nil
}

// logPathFor resolves a crate's log path, preferring the uncompressed file.
func logPathFor(logsDir, crate string) (string, error) {
	plain := filepath.Join(logsDir, crate+".log")
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	archived := plain + ".zst"
	if _, err := os.Stat(archived); err == nil {
		return archived, nil
	}
	return "", fmt.Errorf("no log found for crate %s", crate)
}
