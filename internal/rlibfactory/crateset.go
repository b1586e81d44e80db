package rlibfactory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Static whitelist of crates known to appear in on-chain SBF program builds.
// Used by scope=solana (default). For dynamic discovery use scope=solana-all.
// Third-party Rust libs (borsh, serde, etc.) are captured via deps extraction,
// so they don't need to be listed here.
var sbfProgramCrates = []string{
	// --- CORE: solana-program and its transitive micro-crates (2.x era) ---
	"solana-program",
	"solana-account",
	"solana-account-info",
	"solana-address",
	"solana-atomic-u64",
	"solana-big-mod-exp",
	"solana-bincode",
	"solana-blake3-hasher",
	"solana-borsh",
	"solana-clock",
	"solana-cpi",
	"solana-decode-error",
	"solana-define-syscall",
	"solana-epoch-rewards",
	"solana-epoch-schedule",
	"solana-fee-calculator",
	"solana-frozen-abi",
	"solana-frozen-abi-macro",
	"solana-hash",
	"solana-instruction",
	"solana-instruction-error",
	"solana-instructions-sysvar",
	"solana-keccak-hasher",
	"solana-last-restart-slot",
	"solana-msg",
	"solana-native-token",
	"solana-nonce",
	"solana-precompile-error",
	"solana-program-entrypoint",
	"solana-program-error",
	"solana-program-memory",
	"solana-program-option",
	"solana-program-pack",
	"solana-pubkey",
	"solana-rent",
	"solana-sanitize",
	"solana-sdk-ids",
	"solana-secp256k1-recover",
	"solana-serde-varint",
	"solana-serialize-utils",
	"solana-sha256-hasher",
	"solana-short-vec",
	"solana-slot-hashes",
	"solana-slot-history",
	"solana-stable-layout",
	"solana-sysvar",
	"solana-sysvar-id",
	// --- COMMON: frequently imported by programs ---
	"solana-address-lookup-table-interface",
	"solana-compute-budget-interface",
	"solana-config-interface",
	"solana-feature-gate-interface",
	"solana-loader-v2-interface",
	"solana-loader-v3-interface",
	"solana-loader-v4-interface",
	"solana-stake-interface",
	"solana-system-interface",
	"solana-vote-interface",
	"solana-security-txt",
	// --- CRYPTO: syscall wrappers ---
	"solana-bn254",
	"solana-curve25519",
	"solana-poseidon",
	"solana-ed25519-program",
	"solana-secp256k1-program",
	"solana-secp256r1-program",
	"solana-zk-sdk",
	"solana-zk-token-sdk",
	// --- SPL: programs and utility libs ---
	"spl-token",
	"spl-token-2022",
	"spl-associated-token-account",
	"spl-memo",
	"spl-pod",
	"spl-type-length-value",
	"spl-discriminator",
	"spl-tlv-account-resolution",
	"spl-transfer-hook-interface",
	"spl-token-metadata-interface",
	"spl-token-interface",
	"spl-token-2022-interface",
	"spl-associated-token-account-interface",
	"spl-program-error",
	"spl-elgamal-registry-interface",
	"spl-memo-interface",
	"spl-token-confidential-transfer-ciphertext-arithmetic",
	"spl-token-confidential-transfer-proof-extraction",
	"spl-token-confidential-transfer-proof-generation",
	"spl-token-group-interface",
	// --- THIRD-PARTY LIBS (proven to build standalone with cargo-build-sbf) ---
	"arrayref",
	"bincode",
	"borsh",
	"bytemuck",
	"num-traits",
	"thiserror",
}

// Seed list covers official anchor workspace crates and historical names.
var anchorSeedCrates = []string{
	"anchor-lang",
	"anchor-spl",
	"anchor-client",
	"anchor-cli",
	"anchor-idl",
	"anchor-lang-idl",
	"anchor-lang-idl-spec",
	"anchor-attribute-access-control",
	"anchor-attribute-account",
	"anchor-attribute-constant",
	"anchor-attribute-error",
	"anchor-attribute-event",
	"anchor-attribute-program",
	"anchor-derive-accounts",
	"anchor-derive-serde",
	"anchor-derive-space",
	"anchor-syn",
	"avm",
}

// parseWorkspaceDependencyNames scans a Cargo.toml for the
// [workspace.dependencies] table and collects the keys matching prefix.
// The scan is case-sensitive and stops at the next table header.
func parseWorkspaceDependencyNames(cargoToml, prefix string) []string {
	inDep := false
	seen := make(map[string]bool)
	var out []string
	for _, raw := range strings.Split(cargoToml, "\n") {
		line := strings.TrimSpace(raw)
		if line == "[workspace.dependencies]" {
			inDep = true
			continue
		}
		if inDep && strings.HasPrefix(line, "[") {
			break
		}
		if !inDep {
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// fetchSolanaCrateList discovers the solana-* workspace crates from the
// upstream agave manifest.
func fetchSolanaCrateList(ctx context.Context) ([]string, error) {
	data, err := httpGet(ctx, agaveManifestURL)
	if err != nil {
		return nil, err
	}
	crates := parseWorkspaceDependencyNames(string(data), "solana-")
	if len(crates) == 0 {
		return nil, fmt.Errorf("empty solana crate list from agave Cargo.toml")
	}
	return crates, nil
}

// fetchAnchorCrateList combines the static anchor seed list with the
// anchor-* dependencies of the latest anchor-lang and anchor-spl releases.
func fetchAnchorCrateList(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, c := range anchorSeedCrates {
		seen[c] = true
	}

	for _, root := range []string{"anchor-lang", "anchor-spl"} {
		versions, err := fetchNonYankedVersions(ctx, root)
		if err != nil || len(versions) == 0 {
			continue
		}
		latest := versions[0]
		deps, err := fetchCrateDependencies(ctx, root, latest)
		if err != nil {
			continue
		}
		for _, dep := range deps {
			if strings.HasPrefix(dep, "anchor-") {
				seen[dep] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// resolveCrates produces the crate set for a batch scope. Dynamic sources
// persist their discovery result to the versions dir and fall back to that
// cache when offline. The manual missing-crates list is always subtracted.
func resolveCrates(ctx context.Context, scope string) ([]string, error) {
	crates := make(map[string]bool)

	switch scope {
	case "solana":
		// Static whitelist: no network fetch, stable and controllable.
		for _, c := range sbfProgramCrates {
			crates[c] = true
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Using static whitelist: %d crates\n", len(sbfProgramCrates))
	case "solana-all", "all":
		listFile := filepath.Join(VersionsDir, "solana-rust-crates.txt")
		solanaCrates, err := fetchSolanaCrateList(ctx)
		if err != nil {
			colWarn.Printf("failed to fetch solana crate list online, using local index: %v\n", err)
			solanaCrates = readLines(listFile)
		} else {
			if err := writeLines(listFile, solanaCrates); err != nil {
				debugf("failed to persist solana crate list: %v\n", err)
			}
		}
		for _, c := range solanaCrates {
			crates[c] = true
		}
	}

	if scope == "anchor" || scope == "all" {
		listFile := filepath.Join(VersionsDir, "anchor-crates.txt")
		anchorCrates, err := fetchAnchorCrateList(ctx)
		if err != nil {
			colWarn.Printf("failed to fetch anchor crate list online, using local index: %v\n", err)
			anchorCrates = readLines(listFile)
		} else {
			if err := writeLines(listFile, anchorCrates); err != nil {
				debugf("failed to persist anchor crate list: %v\n", err)
			}
		}
		for _, c := range anchorCrates {
			crates[c] = true
		}
	}

	for _, c := range readLines(filepath.Join(VersionsDir, "missing-crates.txt")) {
		delete(crates, c)
	}

	out := make([]string, 0, len(crates))
	for c := range crates {
		out = append(out, c)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no crates resolved for scope %q", scope)
	}
	return out, nil
}
