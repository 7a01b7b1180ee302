package decompress

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialReader hides any io.ReaderAt a wrapped reader might implement,
// so tests can exercise the streamed-body path (an HTTP response body
// never implements io.ReaderAt) rather than the already-seekable one.
type sequentialReader struct{ io.Reader }

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"bin/rg":       "binary-contents",
		"README.md":    "hello",
	})
	dest := t.TempDir()

	ext, err := NewExtractor(FormatTgz)
	require.NoError(t, err)
	require.NoError(t, ext.Extract(bytes.NewReader(data), dest))

	content, err := os.ReadFile(filepath.Join(dest, "bin/rg"))
	require.NoError(t, err)
	assert.Equal(t, "binary-contents", string(content))
}

func TestExtractTarGzRejectsPathTraversal(t *testing.T) {
	data := buildTarGz(t, map[string]string{"../../etc/passwd": "pwned"})
	dest := t.TempDir()

	ext, err := NewExtractor(FormatTgz)
	require.NoError(t, err)
	err = ext.Extract(bytes.NewReader(data), dest)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(dest)), "etc", "passwd"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestVisitTarSelectsMatchingEntriesOnly(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"Cargo.toml":  "[package]\nname=\"rg\"",
		"src/main.rs": "fn main() {}",
		"LICENSE":     "MIT",
	})

	got, err := VisitTar(bytes.NewReader(data), FormatTgz, func(path string) bool {
		return path == "Cargo.toml" || path == "src/main.rs"
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "fn main() {}", string(got["src/main.rs"]))
	_, hasLicense := got["LICENSE"]
	assert.False(t, hasLicense)
}

func TestNewExtractorUnsupportedFormat(t *testing.T) {
	_, err := NewExtractor(Format("rar"))
	assert.Error(t, err)
}

func TestExtractZipFromSeekableReader(t *testing.T) {
	data := buildZip(t, map[string]string{"bin/rg": "binary-contents"})
	dest := t.TempDir()

	ext, err := NewExtractor(FormatZip)
	require.NoError(t, err)
	require.NoError(t, ext.Extract(bytes.NewReader(data), dest))

	content, err := os.ReadFile(filepath.Join(dest, "bin/rg"))
	require.NoError(t, err)
	assert.Equal(t, "binary-contents", string(content))
}

// TestExtractZipFromStreamedReader exercises the path a real download
// takes: the archive arrives as a sequential io.Reader (an HTTP response
// body, wrapped by the signature verifier) with no random access at all.
func TestExtractZipFromStreamedReader(t *testing.T) {
	data := buildZip(t, map[string]string{"bin/rg.exe": "windows-binary"})
	dest := t.TempDir()

	ext, err := NewExtractor(FormatZip)
	require.NoError(t, err)
	require.NoError(t, ext.Extract(sequentialReader{bytes.NewReader(data)}, dest))

	content, err := os.ReadFile(filepath.Join(dest, "bin/rg.exe"))
	require.NoError(t, err)
	assert.Equal(t, "windows-binary", string(content))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatTgz, DetectFormat("ripgrep-13.0.0-x86_64.tar.gz"))
	assert.Equal(t, FormatTxz, DetectFormat("ripgrep-13.0.0-x86_64.tar.xz"))
	assert.Equal(t, FormatZip, DetectFormat("ripgrep-13.0.0-x86_64.zip"))
}
