package rlibfactory

import (
	"errors"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	FactoryDir              string
	CratesDir               string
	ToolchainDir            string
	RlibsDir                string
	VersionsDir             string
	StateDir                string
	LogsDir                 string
	Debug                   bool
	Verbose                 bool
	ConfigFile              = "/etc/rlibfactory.conf"
	registryAPI             = "https://crates.io/api/v1"
	agaveManifestURL        = "https://raw.githubusercontent.com/anza-xyz/agave/master/Cargo.toml"
	installScript           = "install-solana.sh"
	fetchScript             = "fetch-crate.sh"
	cleanupScript           = "remove-solana.sh"
	version                 = "dev"     // default version; overridden at build time
	buildDate               = "unknown" // overridden at build time
	errNoVersions           = errors.New("no versions resolved")
	errMissingHostToolchain = errors.New("missing host rust toolchain (cargo/rustc)")
	// Global executor (declared, to be assigned in Main)
	UserExec *Executor
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
