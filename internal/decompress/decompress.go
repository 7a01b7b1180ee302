// Package decompress streams an archive body straight into either a
// destination directory or an in-memory visitor. Tar-family and raw
// payloads are never buffered whole; zip, which needs random access, is
// first spooled to an unlinked temporary file. It supports tar+gzip,
// tar+bzip2, tar+xz, tar+zstd, zip, and raw (uncompressed single-file)
// payloads.
package decompress

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fetchbin/fetchbin/internal/ferrors"
)

// Format is one of the pkg_fmt values the registry metadata can declare.
type Format string

const (
	FormatTar   Format = "tar"
	FormatTbz2  Format = "tbz2"
	FormatTgz   Format = "tgz"
	FormatTxz   Format = "txz"
	FormatTzstd Format = "tzstd"
	FormatZip   Format = "zip"
	FormatBin   Format = "bin"
)

// NormalizeFormat canonicalizes common aliases (tar.gz -> tgz, and so on).
// Unrecognized values pass through unchanged; NewExtractor rejects them.
func NormalizeFormat(raw string) Format {
	switch strings.ToLower(raw) {
	case "tar.gz", "tgz":
		return FormatTgz
	case "tar.bz2", "tbz2":
		return FormatTbz2
	case "tar.xz", "txz":
		return FormatTxz
	case "tar.zst", "tar.zstd", "tzstd":
		return FormatTzstd
	case "tar":
		return FormatTar
	case "zip":
		return FormatZip
	case "bin", "raw":
		return FormatBin
	default:
		return Format(raw)
	}
}

// DetectFormat infers a Format from a URL or filename's extension, or ""
// if it can't be determined. No caller tries other formats in turn: an
// undetermined format passed on to NewExtractor is rejected there.
func DetectFormat(urlOrFilename string) Format {
	name := filepath.Base(urlOrFilename)
	switch {
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		return FormatTgz
	case strings.HasSuffix(name, ".tar.bz2") || strings.HasSuffix(name, ".tbz2"):
		return FormatTbz2
	case strings.HasSuffix(name, ".tar.xz") || strings.HasSuffix(name, ".txz"):
		return FormatTxz
	case strings.HasSuffix(name, ".tar.zst") || strings.HasSuffix(name, ".tzst"):
		return FormatTzstd
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	default:
		return ""
	}
}

// Extractor streams an archive body to a destination directory.
type Extractor interface {
	Extract(r io.Reader, destDir string) error
}

// NewExtractor returns the Extractor for format, or UnsupportedFormat if
// format isn't one of the compiled-in archive formats.
func NewExtractor(format Format) (Extractor, error) {
	switch format {
	case FormatTar, FormatTgz, FormatTbz2, FormatTxz, FormatTzstd:
		decode, err := decoderFor(format)
		if err != nil {
			return nil, ferrors.UnsupportedFormat(string(format))
		}
		return tarExtractor{decode: decode}, nil
	case FormatZip:
		return zipExtractor{}, nil
	case FormatBin:
		return rawExtractor{}, nil
	default:
		return nil, ferrors.UnsupportedFormat(string(format))
	}
}

// tarExtractor decompresses via decode, then unpacks the resulting tar
// stream to a directory.
type tarExtractor struct {
	decode func(io.Reader) (io.Reader, error)
}

func (e tarExtractor) Extract(r io.Reader, destDir string) error {
	dr, err := e.decode(r)
	if err != nil {
		return fmt.Errorf("opening decompressor: %w", err)
	}
	if closer, ok := dr.(io.Closer); ok {
		defer closer.Close()
	}
	return extractTarStream(dr, destDir)
}

func extractTarStream(r io.Reader, destDir string) error {
	g := newCleanupGuard()
	defer g.cleanupUnlessDisarmed()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("invalid file path escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			g.track(target)
		case tar.TypeReg:
			if err := extractFile(tr, target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
			g.track(target)
		case tar.TypeSymlink:
			linkTarget := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if !isInsideDir(destDir, linkTarget) {
				return fmt.Errorf("invalid symlink target: %s -> %s", hdr.Name, hdr.Linkname)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink: %w", err)
			}
			g.track(target)
		}
	}

	g.disarm()
	return nil
}

type zipExtractor struct{}

// Extract unpacks a zip archive to destDir. The zip format's central
// directory sits at the end of the file, so — unlike tar — it has no
// genuinely sequential reader: stdlib archive/zip always needs ReaderAt
// plus a known size. When r doesn't already provide that (a streamed HTTP
// response body, notably), the body is first spooled to a temporary file
// on disk and reopened from there, the same download-to-disk-then-extract
// tradeoff used to let a hash be checked before an archive is ever acted
// on. The spool file is removed once extraction finishes or fails.
func (zipExtractor) Extract(r io.Reader, destDir string) error {
	slog.Debug("extracting zip archive", "dest", destDir)

	ra, size, err := asReaderAt(r)
	if err != nil {
		return err
	}
	if closer, ok := ra.(interface {
		io.ReaderAt
		Close() error
	}); ok {
		defer closer.Close()
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return fmt.Errorf("opening zip reader: %w", err)
	}

	g := newCleanupGuard()
	defer g.cleanupUnlessDisarmed()

	for _, f := range zr.File {
		if isOSMetadataPath(f.Name) {
			continue
		}
		target := filepath.Join(destDir, f.Name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("invalid file path escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			g.track(target)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening archive entry: %w", err)
		}
		err = extractFile(rc, target, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
		g.track(target)
	}

	g.disarm()
	return nil
}

type rawExtractor struct{}

func (rawExtractor) Extract(r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	binName := filepath.Base(destDir)
	target := filepath.Join(destDir, binName)

	g := newCleanupGuard()
	defer g.cleanupUnlessDisarmed()

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating binary file: %w", err)
	}
	g.track(target)
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing binary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing binary file: %w", err)
	}

	g.disarm()
	return nil
}

// asReaderAt returns r itself (with its size) when it already supports
// random access, or spools it to a temporary file and returns that file
// otherwise. The caller owns closing/removing the returned ReaderAt when
// it also implements io.Closer — a spooled temp file unlinks itself on
// close so no explicit remove is needed.
func asReaderAt(r io.Reader) (io.ReaderAt, int64, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		size, err := readerSize(r)
		if err != nil {
			return nil, 0, fmt.Errorf("determining reader size: %w", err)
		}
		return ra, size, nil
	}

	f, err := os.CreateTemp("", "fetchbin-zip-*")
	if err != nil {
		return nil, 0, fmt.Errorf("creating zip spool file: %w", err)
	}
	// Unlinking immediately means the file disappears from the directory
	// listing right away but stays readable through f until it's closed.
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("unlinking zip spool file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("spooling zip archive to disk: %w", err)
	}
	return f, size, nil
}

func readerSize(r io.Reader) (int64, error) {
	switch v := r.(type) {
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case interface{ Len() int }:
		return int64(v.Len()), nil
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		size, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return size, nil
	default:
		return 0, fmt.Errorf("cannot determine size for %T", r)
	}
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func isOSMetadataPath(name string) bool {
	return name == "__MACOSX" || name == "__MACOSX/" || strings.HasPrefix(name, "__MACOSX/")
}

// isInsideDir rejects path traversal (".." components escaping destDir).
func isInsideDir(baseDir, target string) bool {
	rel, err := filepath.Rel(baseDir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
