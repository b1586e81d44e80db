package rlibfactory

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// loadConfig reads the rlibfactory config file and applies env overrides.
// A missing file is not an error; all keys then come from environment or defaults.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)

	return cfg, nil
}

// Merge RLIB_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "RLIB_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// initConfig resolves the factory directory layout from the config.
func initConfig(cfg *Config) {
	FactoryDir = cfg.Values["RLIB_FACTORY_DIR"]
	if FactoryDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			FactoryDir = filepath.Join(home, "rlib-factory")
		} else {
			FactoryDir = "/var/lib/rlibfactory"
		}
	}

	CratesDir = filepath.Join(FactoryDir, "crates")
	ToolchainDir = filepath.Join(FactoryDir, "solana")
	RlibsDir = filepath.Join(FactoryDir, "rlibs")

	VersionsDir = cfg.Values["RLIB_VERSIONS_DIR"]
	if VersionsDir == "" {
		VersionsDir = filepath.Join(FactoryDir, "versions")
	}
	StateDir = cfg.Values["RLIB_STATE_DIR"]
	if StateDir == "" {
		StateDir = filepath.Join(FactoryDir, "run-state")
	}
	LogsDir = filepath.Join(StateDir, "logs-latest")

	if api := cfg.Values["RLIB_REGISTRY_API"]; api != "" {
		registryAPI = strings.TrimSuffix(api, "/")
	}
	if u := cfg.Values["RLIB_AGAVE_MANIFEST_URL"]; u != "" {
		agaveManifestURL = u
	}
	if s := cfg.Values["RLIB_INSTALL_SCRIPT"]; s != "" {
		installScript = s
	}
	if s := cfg.Values["RLIB_FETCH_SCRIPT"]; s != "" {
		fetchScript = s
	}
	if s := cfg.Values["RLIB_CLEANUP_SCRIPT"]; s != "" {
		cleanupScript = s
	}
}
