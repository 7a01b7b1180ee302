package resolver

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fetchbin/fetchbin/internal/ferrors"
)

// placeBinary copies or symlinks srcPath (a binary found inside the
// extracted archive tree) into installDir as name. Symlinks are used
// when useSymlinks is requested and the platform supports them; Windows
// always copies, matching the platform's poor non-admin symlink support.
// The previous file at the destination, if any, is removed only after
// the new one is fully in place, so a crash mid-placement never leaves
// the binary missing.
func placeBinary(srcPath, installDir, name string, useSymlinks bool) (string, error) {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return "", ferrors.NewIOError(installDir, err)
	}
	dest := filepath.Join(installDir, name)
	tmp := dest + ".fetchbin-tmp"
	_ = os.Remove(tmp)

	if useSymlinks && runtime.GOOS != "windows" {
		if err := os.Symlink(srcPath, tmp); err != nil {
			return "", ferrors.NewIOError(tmp, err)
		}
	} else if err := copyExecutable(srcPath, tmp); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", ferrors.NewIOError(dest, err)
	}
	return dest, nil
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ferrors.NewIOError(src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ferrors.NewIOError(src, err)
	}
	mode := info.Mode().Perm() | 0o111

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return ferrors.NewIOError(dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return ferrors.NewIOError(dst, err)
	}
	return nil
}

// findBinary walks extractedDir looking for a file named binaryName.
// bin_dir templates point at a specific relative path when known; this
// is the fallback used when the declared path doesn't exist verbatim
// (e.g. the archive's top-level directory name embeds a version).
func findBinary(extractedDir, binaryName string) (string, error) {
	direct := filepath.Join(extractedDir, binaryName)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	var found string
	err := filepath.WalkDir(extractedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == binaryName {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching for binary %q: %w", binaryName, err)
	}
	if found == "" {
		return "", fmt.Errorf("binary %q not found in extracted archive", binaryName)
	}
	return found, nil
}
