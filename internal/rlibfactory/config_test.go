package rlibfactory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigParsesKeyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rlibfactory.conf")
	content := `# factory settings
RLIB_FACTORY_DIR=/srv/rlib-factory
RLIB_REGISTRY_API = "https://crates.io/api/v1/"
bogus line without delimiter

R2_BUCKET_NAME='rlibs'
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Values["RLIB_FACTORY_DIR"]; got != "/srv/rlib-factory" {
		t.Errorf("RLIB_FACTORY_DIR = %q", got)
	}
	if got := cfg.Values["RLIB_REGISTRY_API"]; got != "https://crates.io/api/v1/" {
		t.Errorf("quotes must be trimmed, got %q", got)
	}
	if got := cfg.Values["R2_BUCKET_NAME"]; got != "rlibs" {
		t.Errorf("single quotes must be trimmed, got %q", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.Values == nil {
		t.Fatal("config values map must be initialized")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RLIB_STATE_DIR", "/tmp/override-state")
	t.Setenv("R2_ACCOUNT_ID", "abc123")

	cfg := &Config{Values: map[string]string{"RLIB_STATE_DIR": "/ignored"}}
	mergeEnvOverrides(cfg)

	if got := cfg.Values["RLIB_STATE_DIR"]; got != "/tmp/override-state" {
		t.Errorf("env must win over file value, got %q", got)
	}
	if got := cfg.Values["R2_ACCOUNT_ID"]; got != "abc123" {
		t.Errorf("R2_ACCOUNT_ID = %q", got)
	}
}

func TestInitConfigLayout(t *testing.T) {
	base := t.TempDir()
	cfg := &Config{Values: map[string]string{"RLIB_FACTORY_DIR": base}}
	initConfig(cfg)

	if FactoryDir != base {
		t.Errorf("FactoryDir = %q", FactoryDir)
	}
	if VersionsDir != filepath.Join(base, "versions") {
		t.Errorf("VersionsDir = %q", VersionsDir)
	}
	if StateDir != filepath.Join(base, "run-state") {
		t.Errorf("StateDir = %q", StateDir)
	}
	if LogsDir != filepath.Join(StateDir, "logs-latest") {
		t.Errorf("LogsDir = %q", LogsDir)
	}
	if RlibsDir != filepath.Join(base, "rlibs") {
		t.Errorf("RlibsDir = %q", RlibsDir)
	}
}
