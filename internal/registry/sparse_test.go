package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fetchbin/fetchbin/internal/httpclient"
)

func buildSourceArchive(t *testing.T, cargoToml string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte(cargoToml)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "ripgrep-13.0.0/Cargo.toml",
		Mode: 0o644,
		Size: int64(len(body)),
	}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestSparseClientFetchManifest(t *testing.T) {
	cargoToml := `
[package]
name = "ripgrep"
version = "13.0.0"

[package.metadata.binstall]
pkg-url = "{ repo }/releases/download/{ version }/ripgrep-{ version }-{ target }.tgz"
pkg-fmt = "tgz"
pub-key = ""
`
	archive := buildSourceArchive(t, cargoToml)

	mux := http.NewServeMux()
	mux.HandleFunc("/config.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dl":"`+"http://"+r.Host+`/dl/{crate}/{version}"}`)
	})
	mux.HandleFunc("/ri/pg/ripgrep", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"ripgrep","vers":"13.0.0","yanked":false,"cksum":"%x"}`+"\n", sha256.Sum256(archive))
	})
	mux.HandleFunc("/dl/ripgrep/13.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSparseClient(srv.URL, httpclient.New())
	meta, err := client.FetchManifest(t.Context(), "ripgrep", "")
	require.NoError(t, err)
	require.Equal(t, "13.0.0", meta.Version)
	require.Equal(t, "tgz", meta.PkgFmt)
	require.Len(t, meta.PkgURL, 1)
}

func TestSparseClientNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/config.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dl":"http://example.invalid/{crate}"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSparseClient(srv.URL, httpclient.New())
	_, err := client.FetchManifest(t.Context(), "nope", "")
	require.Error(t, err)
}
