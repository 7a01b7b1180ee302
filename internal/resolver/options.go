package resolver

import "github.com/fetchbin/fetchbin/internal/pkgdata"

// CLIOverride is a per-invocation override of a package's pkg_url,
// pkg_fmt, or bin_dir, bypassing whatever the registry metadata says.
type CLIOverride struct {
	PkgURL []string
	PkgFmt string
	BinDir string
}

// Options configures Resolve calls, per the external-interface table:
// every field is independent and defaults to its zero value
// (false / "" / 0) meaning "default behavior".
type Options struct {
	// NoSymlinks copies binaries into the install directory instead of
	// symlinking them from a shared tool store.
	NoSymlinks bool
	// DryRun resolves and downloads but does not place or record.
	DryRun bool
	// Force reinstalls even when a satisfying version is already
	// recorded in the manifest.
	Force bool
	// Locked is carried but not read: neither Resolve nor the fetchbin
	// CLI refuses an upgrade past the currently recorded version
	// because of it.
	Locked bool
	// VersionReq overrides a package's requested version requirement.
	VersionReq string
	// ManifestPath names a local package manifest. Resolve does not read
	// it: metadata always comes from the Resolver's Registry client.
	ManifestPath string
	// CLIOverride overrides pkg_url/pkg_fmt/bin_dir for this invocation.
	CLIOverride *CLIOverride
	// DisablePrebuiltMirror removes the third-party mirror fetcher from
	// the candidate set, using only the package's own pkg_url templates.
	DisablePrebuiltMirror bool
	// CargoInstallFallback is the out-of-scope source-build hook: when
	// non-nil it is invoked after every prebuilt candidate is
	// exhausted, before the package is reported as failed.
	CargoInstallFallback func(name, versionReq string) (*pkgdata.InstallRecord, error)
}
