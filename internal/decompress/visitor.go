package decompress

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// decoderFor returns the decompression step for format, shared between
// the directory extractors and VisitTar so both honor the same set of
// compiled-in formats.
func decoderFor(format Format) (func(io.Reader) (io.Reader, error), error) {
	switch format {
	case FormatTar:
		return func(r io.Reader) (io.Reader, error) { return r, nil }, nil
	case FormatTgz:
		return func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }, nil
	case FormatTbz2:
		return func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }, nil
	case FormatTxz:
		return func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }, nil
	case FormatTzstd:
		return func(r io.Reader) (io.Reader, error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr.IOReadCloser(), nil
		}, nil
	default:
		return nil, fmt.Errorf("visitor: unsupported tar-family format %q", format)
	}
}

// VisitTar streams a tar-family archive and returns the contents of every
// entry for which match(path) is true, without writing anything to disk.
// The registry clients use it to pull just the package's Cargo.toml out
// of a source-archive tarball; they match no other entries, so files such
// as src/main.rs or src/bin/* are not read.
func VisitTar(r io.Reader, format Format, match func(path string) bool) (map[string][]byte, error) {
	decode, err := decoderFor(format)
	if err != nil {
		return nil, err
	}
	dr, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("opening decompressor: %w", err)
	}
	if closer, ok := dr.(io.Closer); ok {
		defer closer.Close()
	}

	out := make(map[string][]byte)
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !match(hdr.Name) {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", hdr.Name, err)
		}
		out[hdr.Name] = data
	}
	return out, nil
}
