// Package pkgdata holds the installer core's data model: target triples,
// package references, registry metadata, candidates, and install records.
// It is intentionally dependency-light so every other package can import
// it without pulling in HTTP, archive, or signature machinery.
package pkgdata

import "strings"

// TargetTriple identifies a runnable platform: arch-vendor-os[-env].
// macOS universal/universal2 pseudo-triples are first-class values here
// too; they carry no env component and map back to a concrete triple via
// Concrete() for keys that need a real arch.
type TargetTriple struct {
	Arch   string
	Vendor string
	OS     string
	Env    string // may be empty, e.g. "arm64-apple-darwin"
}

// String renders the canonical arch-vendor-os[-env] form.
func (t TargetTriple) String() string {
	parts := []string{t.Arch, t.Vendor, t.OS}
	if t.Env != "" {
		parts = append(parts, t.Env)
	}
	return strings.Join(parts, "-")
}

// IsUniversalMac reports whether this is one of the macOS universal
// pseudo-triples that don't correspond to a single arch.
func (t TargetTriple) IsUniversalMac() bool {
	return t.OS == "darwin" && (t.Arch == "universal" || t.Arch == "universal2")
}

// Concrete returns the real architecture triple a universal pseudo-triple
// maps to internally (x86_64-apple-darwin), or itself if it is already
// concrete.
func (t TargetTriple) Concrete() TargetTriple {
	if t.IsUniversalMac() {
		return TargetTriple{Arch: "x86_64", Vendor: t.Vendor, OS: t.OS}
	}
	return t
}

// ArchiveFormat returns the platform's default archive extension, used
// when a package's metadata doesn't pin pkg_fmt explicitly.
func (t TargetTriple) ArchiveFormat() string {
	if t.OS == "windows" {
		return "zip"
	}
	return "tgz"
}

// BinaryExt returns the default executable file extension for the
// platform (".exe" on Windows, empty otherwise) — one of the
// target-triple-derived URL template keys.
func (t TargetTriple) BinaryExt() string {
	if t.OS == "windows" {
		return ".exe"
	}
	return ""
}

// Values implements the urltemplate.Values provider directly from a
// triple's own fields, for fetchers that only need target-derived keys.
func (t TargetTriple) Values() map[string]string {
	return map[string]string{
		"target":         t.String(),
		"arch":           t.Arch,
		"vendor":         t.Vendor,
		"os":             t.OS,
		"env":            t.Env,
		"archive-format": t.ArchiveFormat(),
		"binary-ext":     t.BinaryExt(),
	}
}
