//go:build ignore

// Standalone helper: go run check_bundle.go <bundle.tar.xz>
// Lists the rlibs inside an exported bundle and verifies the index is present.
package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: check_bundle <bundle.tar.xz>")
		os.Exit(1)
	}

	bundlePath := os.Args[1]
	fmt.Printf("Checking %s...\n", bundlePath)

	f, err := os.Open(bundlePath)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		fmt.Printf("Error creating xz reader: %v\n", err)
		os.Exit(1)
	}

	tr := tar.NewReader(xr)
	rlibs := 0
	indexFound := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("Error reading tar: %v\n", err)
			os.Exit(1)
		}

		switch {
		case strings.HasSuffix(hdr.Name, ".rlib"):
			fmt.Printf("  %s (%d bytes)\n", hdr.Name, hdr.Size)
			rlibs++
		case strings.HasSuffix(hdr.Name, "rlib-index.json"):
			indexFound = true
		}
	}

	fmt.Printf("%d rlibs\n", rlibs)
	if !indexFound {
		fmt.Println("No rlib-index.json found!")
		os.Exit(1)
	}
}
