package rlibfactory

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: rlibfactory <command> [arguments]")
	colSuccess.Println("Run 'rlibfactory <command> -h' for advanced options")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"build, b", "[options]", "Batch-build rlibs for a crate scope"},
		{"crate, c", "[options] <crate>", "Build rlibs for a single crate"},
		{"log", "[crate]", "TUI build log viewer, or dump one crate's log"},
		{"upload", "[-c] [-y]", "Upload the local rlib pool to the mirror"},
		{"bundle", "[output.tar.xz]", "Export the rlib pool as a tar.xz bundle"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		color.Info.Println(c.Desc)
	}

	fmt.Println()
}

// Main is the CLI entrypoint for cmd/rlibfactory.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					// State is being persisted. Block the 1st signal, force
					// exit on the 2nd.
					colArrow.Print("\n-> ")
					colError.Printf("State write in progress. Press Ctrl+C AGAIN to force exit NOW.\n")

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
					cancel()

					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(0)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if ctx.Err() != nil {
		return
	}

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		cfg = &Config{Values: map[string]string{}}
		mergeEnvOverrides(cfg)
	}
	initConfig(cfg)

	UserExec = &Executor{
		Context: ctx,
	}

	var exitCode int

	switch os.Args[1] {
	case "build", "b":
		exitCode = handleBuildCommand(os.Args[2:])

	case "crate", "c":
		exitCode = handleCrateCommand(ctx, os.Args[2:])

	case "log":
		if len(os.Args) >= 3 {
			exitCode = dumpCrateLog(os.Args[2])
		} else {
			exitCode = runLogTUI()
		}

	case "upload":
		if err := handleUploadCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			os.Exit(1)
		}

	case "bundle":
		if err := handleBundleCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Bundle failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version":
		colNote.Printf("rlibfactory %s built %s\n", version, buildDate)

	default:
		printHelp()
		exitCode = 1
	}
	os.Exit(exitCode)
}

// handleBuildCommand parses batch flags and runs the batch driver.
func handleBuildCommand(args []string) int {
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	solanaVersion := buildCmd.String("solana-version", "1.18.16", "Toolchain release to build against")
	compilerVersion := buildCmd.String("compiler-solana-version", "1.18.16", "Primary compiler toolchain release")
	fallbackVersion := buildCmd.String("fallback-compiler-solana-version", "1.18.16", "Fallback compiler when the primary is rejected")
	toolsVersion := buildCmd.String("platform-tools-version", "v1.48", "Platform tools version tag")
	sbfArch := buildCmd.String("sbf-arch", "auto", "Target architecture: sbfv1, sbfv2, both or auto")
	scope := buildCmd.String("scope", "solana", "Crate scope: solana, solana-all, anchor or all")
	latestOnly := buildCmd.Bool("latest-only", false, "Build only the latest non-yanked version per crate")
	allVersions := buildCmd.Bool("all-versions", false, "Build all non-yanked versions per crate (default)")
	include := buildCmd.String("include", "", "Only process crates matching regex")
	exclude := buildCmd.String("exclude", "", "Skip crates matching regex")
	maxCrates := buildCmd.Int("max-crates", 0, "Cap the number of crates processed (0 = no cap)")
	force := buildCmd.Bool("force", false, "Re-run crates already marked ok/partial/no_rlib")
	cleanupTarget := buildCmd.Bool("cleanup-target", false, "Remove the target dir after each version")
	cleanupSolana := buildCmd.Bool("cleanup-solana", false, "Remove installed toolchains after each crate")
	noStream := buildCmd.Bool("no-stream", false, "Do not mirror build output to the terminal (logs still written)")
	dryRun := buildCmd.Bool("dry-run", false, "Resolve and report, but build nothing")
	verbose := buildCmd.Bool("v", false, "Enable verbose output")

	if err := buildCmd.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing build flags: %v\n", err)
		return 1
	}
	Verbose = *verbose

	effectiveLatest := *latestOnly
	if *allVersions {
		effectiveLatest = false
	}

	if Verbose {
		colInfo.Printf("scope=%s solana=%s compiler=%s fallback=%s tools=%s arch=%s latest_only=%t\n",
			*scope, *solanaVersion, *compilerVersion, *fallbackVersion, *toolsVersion, *sbfArch, effectiveLatest)
	}

	switch *sbfArch {
	case "sbfv1", "sbfv2", "both", "auto":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid -sbf-arch %q (want sbfv1, sbfv2, both or auto)\n", *sbfArch)
		return 1
	}
	switch *scope {
	case "solana", "solana-all", "anchor", "all":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid -scope %q (want solana, solana-all, anchor or all)\n", *scope)
		return 1
	}

	return RunBatch(UserExec, BatchOptions{
		SolanaVersion:           *solanaVersion,
		CompilerSolanaVersion:   *compilerVersion,
		FallbackCompilerVersion: *fallbackVersion,
		PlatformToolsVersion:    *toolsVersion,
		SBFArch:                 *sbfArch,
		Scope:                   *scope,
		LatestOnly:              effectiveLatest,
		Include:                 *include,
		Exclude:                 *exclude,
		MaxCrates:               *maxCrates,
		Force:                   *force,
		CleanupTarget:           *cleanupTarget,
		CleanupSolana:           *cleanupSolana,
		DryRun:                  *dryRun,
		Stream:                  !*noStream,
	})
}

// handleCrateCommand builds the rlibs of one crate directly, with output
// streamed to the terminal.
func handleCrateCommand(ctx context.Context, args []string) int {
	crateCmd := flag.NewFlagSet("crate", flag.ExitOnError)
	compilerVersion := crateCmd.String("solana-version", "1.18.16", "Compiler toolchain release")
	fallbackVersion := crateCmd.String("fallback-compiler-solana-version", "", "Fallback compiler when the primary is rejected")
	noFallback := crateCmd.Bool("no-fallback", false, "Disable the compiler fallback entirely")
	toolsVersion := crateCmd.String("platform-tools-version", "v1.48", "Platform tools version tag")
	arch := crateCmd.String("arch", "", "Target architecture: sbfv1, sbfv2 or both (default: derived from version)")
	versionFlag := crateCmd.String("version", "", "Single version to build (default: all non-yanked)")
	versionsFile := crateCmd.String("versions-file", "", "File with one version per line")
	latestOnly := crateCmd.Bool("latest-only", false, "Build only the latest non-yanked version")
	noDeps := crateCmd.Bool("no-deps", false, "Skip dependency rlib extraction")
	cleanupTarget := crateCmd.Bool("cleanup-target", false, "Remove the target dir after each version")
	cleanupSolana := crateCmd.Bool("cleanup-solana", false, "Remove installed toolchains when done")
	verbose := crateCmd.Bool("v", false, "Enable verbose output")

	if err := crateCmd.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing crate flags: %v\n", err)
		return 1
	}
	Verbose = *verbose
	if Verbose {
		colInfo.Printf("compiler=%s fallback=%s tools=%s\n", *compilerVersion, *fallbackVersion, *toolsVersion)
	}

	if crateCmd.NArg() < 1 {
		fmt.Println("Usage: rlibfactory crate [options] <crate>")
		crateCmd.PrintDefaults()
		return 1
	}
	crate := crateCmd.Arg(0)

	if err := preflightHostToolchain(); err != nil {
		colError.Println(err)
		return 2
	}

	versions, err := parseVersionsInput(*versionFlag, *versionsFile)
	if err != nil && !errors.Is(err, errNoVersions) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(versions) == 0 {
		versions = resolveVersionsForCrate(ctx, crate, *latestOnly)
		if len(versions) == 0 {
			colError.Printf("No versions found for crate %s\n", crate)
			return 1
		}
	}

	var sbfArchs []string
	if *arch != "" {
		sbfArchs = sbfArchsForOption(*arch)
		if sbfArchs == nil && *arch != "auto" {
			fmt.Fprintf(os.Stderr, "Error: invalid -arch %q (want sbfv1, sbfv2 or both)\n", *arch)
			return 1
		}
	}

	engine := &crateEngine{
		exec:   UserExec,
		out:    io.Discard,
		stream: true,
	}
	built := engine.runCrate(crateRunOptions{
		Crate:                   crate,
		Versions:                versions,
		CompilerSolanaVersion:   *compilerVersion,
		FallbackCompilerVersion: *fallbackVersion,
		DisableCompilerFallback: *noFallback,
		PlatformToolsVersion:    *toolsVersion,
		SBFArchs:                sbfArchs,
		ExtractDeps:             !*noDeps,
		CleanupTarget:           *cleanupTarget,
		CleanupSolana:           *cleanupSolana,
	})
	if built < len(versions) {
		return 1
	}
	return 0
}

// dumpCrateLog pages one crate's build log, decompressing it if archived.
func dumpCrateLog(crate string) int {
	path, err := logPathFor(LogsDir, crate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No build log found for crate %s\n", crate)
		return 1
	}
	content, err := readLogFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
		return 1
	}

	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fmt.Print(content)
		return 0
	}
	// Short logs fit on screen without a pager.
	if _, height, err := term.GetSize(fd); err == nil && strings.Count(content, "\n") <= height-2 {
		fmt.Print(content)
		return 0
	}

	pager := os.Getenv("PAGER")
	var args []string
	if pager == "" || pager == "less" {
		pager = "less"
		args = []string{"-r"}
	}

	cmd := exec.Command(pager, args...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		// Fallback to plain stdout if the pager fails.
		fmt.Print(content)
	}
	return 0
}
