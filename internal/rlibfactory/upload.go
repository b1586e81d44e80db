package rlibfactory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// handleUploadCommand implements 'rlibfactory upload': sync the local rlib
// pool to the mirror bucket, keyed on the pool index.
func handleUploadCommand(args []string, cfg *Config) error {
	ctx := context.Background()

	cleanup := false
	assumeYes := false
	for _, arg := range args {
		switch arg {
		case "--cleanup", "-c":
			cleanup = true
		case "--yes", "-y":
			assumeYes = true
		}
	}
	confirm := func(p colorPrinter, format string, a ...any) bool {
		if assumeYes {
			return true
		}
		return askForConfirmation(p, format, a...)
	}

	mirror, err := NewMirrorClient(cfg)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Println("Fetching remote rlib index")
	var remoteIndex []RlibEntry
	remoteData, err := mirror.DownloadFile(ctx, remoteIndexKey)
	if err != nil {
		debugf("Remote index not found or error fetching: %v\n", err)
	} else if err := json.Unmarshal(remoteData, &remoteIndex); err != nil {
		return fmt.Errorf("failed to parse remote index: %w", err)
	}
	remoteByName := make(map[string]RlibEntry, len(remoteIndex))
	for _, entry := range remoteIndex {
		remoteByName[entry.Filename] = entry
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Scanning local rlib pool in %s\n", RlibsDir)
	localIndex := loadPoolIndex(poolIndexPath())
	if len(localIndex) == 0 {
		colWarn.Println("Local pool index is empty, nothing to upload")
		return nil
	}

	var uploadedCount int
	for _, local := range localIndex {
		remote, exists := remoteByName[local.Filename]
		if exists && remote.B3Sum == local.B3Sum {
			continue
		}

		localPath := local.localPath()
		if _, err := os.Stat(localPath); err != nil {
			colWarn.Printf("Skipping %s: %v\n", local.Filename, err)
			continue
		}

		colArrow.Print("-> ")
		if !confirm(colWarn, "Upload %s %s (%s, tools %s)? ", local.Name, local.Version, local.Arch, local.ToolsTag) {
			continue
		}
		key := "rlibs/" + local.Filename
		colArrow.Print("-> ")
		colSuccess.Printf("Uploading: %s\n", key)
		if err := mirror.UploadLocalFile(ctx, key, localPath); err != nil {
			return fmt.Errorf("failed to upload %s: %w", local.Filename, err)
		}
		remoteByName[local.Filename] = local
		uploadedCount++
	}

	if cleanup {
		colArrow.Print("-> ")
		colSuccess.Println("Checking for stale rlibs on the mirror")
		remoteObjects, err := mirror.ListObjects(ctx, "rlibs/")
		if err != nil {
			return fmt.Errorf("failed to list remote files: %w", err)
		}

		active := make(map[string]bool, len(remoteByName))
		for name := range remoteByName {
			active["rlibs/"+name] = true
		}
		active[remoteIndexKey] = true

		var deletedCount int
		for _, obj := range remoteObjects {
			if active[obj.Key] || !strings.HasSuffix(obj.Key, ".rlib") {
				continue
			}
			colArrow.Print("-> ")
			if confirm(colError, "Delete stale rlib from mirror: %s? ", obj.Key) {
				if err := mirror.DeleteFile(ctx, obj.Key); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to delete %s: %v\n", obj.Key, err)
				} else {
					name := strings.TrimPrefix(obj.Key, "rlibs/")
					delete(remoteByName, name)
					deletedCount++
				}
			}
		}
		if deletedCount > 0 {
			colSuccess.Printf("Cleanup complete. Deleted %d stale files.\n", deletedCount)
		}
	}

	colArrow.Print("-> ")
	colSuccess.Println("Calculating storage usage")
	allObjects, err := mirror.ListObjects(ctx, "")
	if err == nil {
		var totalSize int64
		for _, obj := range allObjects {
			totalSize += obj.Size
		}

		const tenGB = 10 * 1024 * 1024 * 1024
		percent := (float64(totalSize) / float64(tenGB)) * 100
		colArrow.Print("-> ")
		colSuccess.Printf("Storage used: ")
		colNote.Printf("%s / 10 GiB (%.1f%%)\n", humanReadableSize(totalSize), percent)

		if totalSize > (tenGB * 9 / 10) {
			colWarn.Println("Warning: You are using over 90% of your free storage limit!")
		}
	}

	if uploadedCount > 0 || cleanup {
		colArrow.Print("-> ")
		colSuccess.Println("Updating remote index")

		finalized := make([]RlibEntry, 0, len(remoteByName))
		for _, entry := range remoteByName {
			finalized = append(finalized, entry)
		}
		sort.Slice(finalized, func(i, j int) bool {
			return finalized[i].Filename < finalized[j].Filename
		})

		indexBytes, err := json.MarshalIndent(finalized, "", "  ")
		if err != nil {
			return err
		}
		if err := mirror.UploadFile(ctx, remoteIndexKey, indexBytes); err != nil {
			return fmt.Errorf("failed to upload index: %w", err)
		}
		colSuccess.Printf("Sync complete. %d new uploads.\n", uploadedCount)
	} else {
		colArrow.Print("-> ")
		colSuccess.Printf("Everything up to date.\n")
	}

	return nil
}

func humanReadableSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
