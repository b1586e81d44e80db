package rlibfactory

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// cPrintf prints with a colored style or falls back to fmt.Printf when nil
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// cPrintln prints a line with the given style or falls back to fmt.Println when nil
func cPrintln(p colorPrinter, a ...any) {
	if p == nil {
		fmt.Println(a...)
		return
	}
	p.Println(a...)
}

// debugf prints diagnostic messages when Debug or Verbose is set.
func debugf(format string, args ...any) {
	if Debug || Verbose {
		fmt.Printf(format, args...)
	}
}

// nowISO returns the current UTC time as a second-resolution RFC3339 string.
func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// readLines reads a newline-delimited list file, skipping blank lines.
// Missing files yield an empty list, not an error.
func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out []string
	for _, raw := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// writeLines writes a list file with one entry per line and a trailing newline.
func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// underscored converts a crate name to its library stem form (dashes to underscores).
func underscored(crate string) string {
	return strings.ReplaceAll(crate, "-", "_")
}
