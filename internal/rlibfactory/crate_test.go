package rlibfactory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseVersionsInputSingleVersion(t *testing.T) {
	got, err := parseVersionsInput(" 1.18.16 ", "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1.18.16"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVersionsInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.txt")
	if err := os.WriteFile(path, []byte("v1.0.0\n\n1.1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := parseVersionsInput("", path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1.0.0", "1.1.0"}, got); diff != "" {
		t.Errorf("v prefixes must be stripped (-want +got):\n%s", diff)
	}
}

func TestParseVersionsInputFileRelativeToFactoryDir(t *testing.T) {
	oldFactory := FactoryDir
	FactoryDir = t.TempDir()
	defer func() { FactoryDir = oldFactory }()

	if err := os.WriteFile(filepath.Join(FactoryDir, "versions.txt"), []byte("2.0.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := parseVersionsInput("", "versions.txt")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2.0.0"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVersionsInputEmpty(t *testing.T) {
	_, err := parseVersionsInput("", "")
	if !errors.Is(err, errNoVersions) {
		t.Errorf("expected errNoVersions, got %v", err)
	}
}
