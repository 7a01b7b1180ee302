// Package target detects the ordered list of platform triples the host
// process can run, preferring the native ABI over emulated or
// compatibility ones.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// archName maps Go's GOARCH to the arch component of a Rust-style triple.
func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7"
	default:
		return goarch
	}
}

func vendorFor(goos string) string {
	switch goos {
	case "darwin":
		return "apple"
	case "windows":
		return "pc"
	default:
		return "unknown"
	}
}

func osName(goos string) string {
	if goos == "darwin" {
		return "darwin"
	}
	return goos
}

// Detect returns the ordered list of target triples this host can run,
// most-preferred first. It never returns an empty slice: worst case it
// falls back to the Go runtime's own GOOS/GOARCH as a single triple.
//
// A Rust compiler, when present, is the authoritative source for the host
// triple (rustc knows about ABI/libc distinctions `runtime.GOARCH`/GOOS
// can't express on their own); its absence is the common case on a
// machine that only ever runs prebuilt binaries, so OS-specific probing
// below is what actually runs in most invocations.
func Detect(ctx context.Context) []pkgdata.TargetTriple {
	base := pkgdata.TargetTriple{
		Arch:   archName(runtime.GOARCH),
		Vendor: vendorFor(runtime.GOOS),
		OS:     osName(runtime.GOOS),
	}

	if compiler, ok := parseCompilerTriple(hostTripleFromCompiler(ctx)); ok {
		base = compiler
	}

	switch runtime.GOOS {
	case "linux":
		return detectLinux(ctx, base)
	case "darwin":
		return detectDarwin(ctx, base)
	case "windows":
		return detectWindows(base)
	default:
		return []pkgdata.TargetTriple{base}
	}
}

// hostTripleFromCompiler asks rustc for the host it was built for (`rustc
// -vV`, the `host: ` line), the same probe the source project runs before
// falling back to OS-specific heuristics. Returns "" if no compiler is on
// PATH or it didn't answer the expected format.
func hostTripleFromCompiler(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "rustc", "-vV").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if host, ok := strings.CutPrefix(line, "host: "); ok {
			return strings.TrimSpace(host)
		}
	}
	return ""
}

// parseCompilerTriple parses a "arch-vendor-os[-env]" triple string as
// reported by a compiler probe.
func parseCompilerTriple(host string) (pkgdata.TargetTriple, bool) {
	if host == "" {
		return pkgdata.TargetTriple{}, false
	}
	parts := strings.SplitN(host, "-", 4)
	if len(parts) < 3 {
		return pkgdata.TargetTriple{}, false
	}
	t := pkgdata.TargetTriple{Arch: parts[0], Vendor: parts[1], OS: parts[2]}
	if len(parts) == 4 {
		t.Env = parts[3]
	}
	return t, true
}

// detectLinux decides glibc vs musl by probing the dynamic linker, the
// same way the source project distinguishes a glibc host from an Alpine
// (musl) one: exec `/lib/ld-linux-<arch>.so.1 --version` and pattern-match
// its output. Output naming GLIBC yields gnu first with musl appended as a
// fallback, so a statically-musl-linked binary remains runnable on a glibc
// host; every other outcome puts musl first (alone when the probe fails or
// reports gcompat, ahead of gnu otherwise).
func detectLinux(ctx context.Context, base pkgdata.TargetTriple) []pkgdata.TargetTriple {
	gnu := base
	gnu.Env = "gnu"
	musl := base
	musl.Env = "musl"

	ldPath := fmt.Sprintf("/lib/ld-linux-%s.so.1", ldArchName(base.Arch))
	out, err := exec.CommandContext(ctx, ldPath, "--version").CombinedOutput()
	if err != nil {
		// No dynamic linker reachable (static container, missing libc
		// probe binary, …): assume musl-only, matching the source
		// project's behavior when the glibc probe can't run at all.
		slog.Debug("ld-linux probe failed, assuming musl", "path", ldPath, "error", err)
		return []pkgdata.TargetTriple{musl}
	}

	text := string(out)
	switch {
	case strings.Contains(text, "GLIBC"):
		return []pkgdata.TargetTriple{gnu, musl}
	case strings.Contains(text, "gcompat"):
		// Alpine's gcompat shim reports success but the host is musl.
		return []pkgdata.TargetTriple{musl}
	default:
		return []pkgdata.TargetTriple{musl, gnu}
	}
}

func ldArchName(arch string) string {
	switch arch {
	case "x86_64":
		return "x86-64"
	case "aarch64":
		return "aarch64"
	default:
		return arch
	}
}

// detectDarwin adds the macOS universal pseudo-triples, and on Apple
// Silicon probes whether Rosetta can run x86_64 binaries so an x86_64
// artifact becomes a valid (lower-preference) candidate.
func detectDarwin(ctx context.Context, base pkgdata.TargetTriple) []pkgdata.TargetTriple {
	triples := []pkgdata.TargetTriple{base}

	if base.Arch == "aarch64" {
		x8664 := pkgdata.TargetTriple{Arch: "x86_64", Vendor: base.Vendor, OS: base.OS}
		if canRunX86_64(ctx) {
			triples = append(triples, x8664)
		}
	}

	triples = append(triples,
		pkgdata.TargetTriple{Arch: "universal", Vendor: base.Vendor, OS: base.OS},
		pkgdata.TargetTriple{Arch: "universal2", Vendor: base.Vendor, OS: base.OS},
	)
	return triples
}

func canRunX86_64(ctx context.Context) bool {
	err := exec.CommandContext(ctx, "arch", "-arch", "x86_64", "/usr/bin/true").Run()
	if err != nil {
		slog.Debug("rosetta x86_64 probe failed", "error", err)
		return false
	}
	return true
}

// detectWindows adds a *-msvc variant alongside any gnu/gnullvm triple,
// since prebuilt Windows archives are commonly published for either ABI.
func detectWindows(base pkgdata.TargetTriple) []pkgdata.TargetTriple {
	gnu := base
	gnu.Env = "gnu"
	msvc := base
	msvc.Env = "msvc"
	return []pkgdata.TargetTriple{msvc, gnu}
}
