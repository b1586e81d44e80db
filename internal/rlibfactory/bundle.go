package rlibfactory

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"
)

// exportBundle packs the rlib pool (rlibs plus the pool index) into a
// tar.xz archive suitable for dropping into a sysroot.
func exportBundle(outPath string) error {
	entries := loadPoolIndex(poolIndexPath())
	if len(entries) == 0 {
		return fmt.Errorf("rlib pool is empty, nothing to bundle")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	tmp := outPath + ".part"
	outFile, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer outFile.Close()

	xw, err := xz.NewWriter(outFile)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	addFile := func(name, src string) error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    stat.Size(),
			ModTime: stat.ModTime(),
			Uid:     0,
			Gid:     0,
			Uname:   "root",
			Gname:   "root",
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		return err
	}

	for _, entry := range entries {
		if err := addFile("rlibs/"+entry.Filename, entry.localPath()); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to add %s: %w", entry.Filename, err)
		}
	}
	if err := addFile("rlibs/rlib-index.json", poolIndexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to add pool index: %w", err)
	}

	if err := tw.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := xw.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Bundled %d rlibs into %s\n", len(entries), outPath)
	return nil
}

// handleBundleCommand implements 'rlibfactory bundle [output]'.
func handleBundleCommand(args []string) error {
	out := filepath.Join(FactoryDir,
		fmt.Sprintf("rlibs-%s.tar.xz", time.Now().UTC().Format("20060102")))
	if len(args) > 0 && args[0] != "" {
		out = args[0]
	}
	return exportBundle(out)
}
