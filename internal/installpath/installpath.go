// Package installpath resolves the directory binaries get placed into,
// mirroring cargo install's own resolution order so a package manager
// fronting this installer can coexist with a real cargo toolchain
// without fighting over the same binaries.
package installpath

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// sourceToolHomeEnv is the environment variable a source-compatible
// toolchain install is conventionally rooted at (CARGO_HOME for cargo).
const sourceToolHomeEnv = "CARGO_HOME"

// installRootEnv overrides the install directory outright, pre-joined
// with "bin" (CARGO_INSTALL_ROOT for cargo install).
const installRootEnv = "CARGO_INSTALL_ROOT"

// Resolution is the resolved install directory plus whether it counts as
// "custom": an explicit override, CARGO_INSTALL_ROOT and the platform
// executable directory are custom; only the source toolchain's own bin
// dir is not. Nothing in this module reads IsCustom; it is only reported.
type Resolution struct {
	Dir      string
	IsCustom bool
}

// Resolve implements §4.12's resolution order: explicit override first,
// then CARGO_INSTALL_ROOT/bin, then the source toolchain's own bin dir,
// then the platform's per-user executable directory.
func Resolve(override string) (Resolution, error) {
	if override != "" {
		return Resolution{Dir: override, IsCustom: true}, nil
	}

	if root := os.Getenv(installRootEnv); root != "" {
		return Resolution{Dir: filepath.Join(root, "bin"), IsCustom: true}, nil
	}

	if home, ok := sourceToolHome(); ok {
		return Resolution{Dir: filepath.Join(home, "bin"), IsCustom: false}, nil
	}

	dir, err := platformExecutableDir()
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Dir: dir, IsCustom: true}, nil
}

// sourceToolHome locates the source toolchain's home directory:
// CARGO_HOME if set, otherwise "~/.cargo" when that directory exists.
func sourceToolHome() (string, bool) {
	if home := os.Getenv(sourceToolHomeEnv); home != "" {
		return home, true
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(userHome, ".cargo")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, true
	}
	return "", false
}

// platformExecutableDir returns the per-user executable directory cargo
// falls back to when no toolchain home is found: XDG_BIN_HOME or
// ~/.local/bin on Linux, ~/Library/Application Support/../bin-equivalent
// on macOS (actually ~/.local/bin, matching the dirs crate's behavior
// there too), and a user-profile-relative path on Windows.
func platformExecutableDir() (string, error) {
	if bin := os.Getenv("XDG_BIN_HOME"); bin != "" {
		return bin, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("cannot determine install directory: no override, no CARGO_INSTALL_ROOT, no toolchain home, and no home directory")
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "Programs", "bin"), nil
	default:
		return filepath.Join(home, ".local", "bin"), nil
	}
}
