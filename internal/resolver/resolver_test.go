package resolver

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// fakeRegistry answers FetchManifest with a fixed Metadata, ignoring the
// version requirement, the way a stub of registry.Client would in a unit
// test that only exercises the resolver's own wiring.
type fakeRegistry struct {
	meta *pkgdata.Metadata
	err  error
}

func (f *fakeRegistry) FetchManifest(ctx context.Context, name, versionReq string) (*pkgdata.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	return &m, nil
}

// buildTgz produces an in-memory tar.gz archive containing one file at
// path with the given content and executable permissions.
func buildTgz(t *testing.T, path string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: path,
		Mode: 0o755,
		Size: int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestResolveSuccess(t *testing.T) {
	binContent := []byte("#!/bin/sh\necho hi\n")
	archive := buildTgz(t, "widget", binContent)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	meta := &pkgdata.Metadata{
		Name:    "widget",
		Version: "1.2.3",
		PkgURL:  []string{srv.URL + "/widget-{ version }-{ target }.tgz"},
		PkgFmt:  "tgz",
		Bins:    []pkgdata.BinEntry{{Name: "widget"}},
	}

	r := &Resolver{HTTP: httpclient.New(), Registry: &fakeRegistry{meta: meta}}

	extractRoot := t.TempDir()
	installDir := t.TempDir()

	rec, prog := r.Resolve(context.Background(), pkgdata.PackageRef{Name: "widget"}, extractRoot, installDir, Options{})
	require.NoError(t, prog.Err)
	assert.Equal(t, Done, prog.State)
	require.NotNil(t, rec)
	assert.Equal(t, "widget", rec.Name)
	assert.Equal(t, "1.2.3", rec.InstalledVersion)
	assert.Equal(t, []string{"widget"}, rec.Bins)

	placed := filepath.Join(installDir, "widget")
	info, err := os.Stat(placed)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o111)
}

func TestResolveNoCandidatesFallsBackOrFails(t *testing.T) {
	meta := &pkgdata.Metadata{Name: "widget", Version: "1.0.0"} // no PkgURL, no Repo: defaultURLTemplates empty too if Repo ""
	r := &Resolver{HTTP: httpclient.New(), Registry: &fakeRegistry{meta: meta}}

	_, prog := r.Resolve(context.Background(), pkgdata.PackageRef{Name: "widget"}, t.TempDir(), t.TempDir(), Options{})
	assert.Equal(t, Failed, prog.State)
	require.Error(t, prog.Err)
}

func TestResolveNoCandidatesUsesCargoInstallFallback(t *testing.T) {
	meta := &pkgdata.Metadata{Name: "widget", Version: "1.0.0"}
	r := &Resolver{HTTP: httpclient.New(), Registry: &fakeRegistry{meta: meta}}

	called := false
	opts := Options{
		CargoInstallFallback: func(name, versionReq string) (*pkgdata.InstallRecord, error) {
			called = true
			return &pkgdata.InstallRecord{Name: name, InstalledVersion: "1.0.0", SourceKind: pkgdata.SourcePath}, nil
		},
	}

	rec, prog := r.Resolve(context.Background(), pkgdata.PackageRef{Name: "widget"}, t.TempDir(), t.TempDir(), Options{CargoInstallFallback: opts.CargoInstallFallback})
	require.NoError(t, prog.Err)
	assert.Equal(t, Done, prog.State)
	assert.True(t, called)
	require.NotNil(t, rec)
	assert.Equal(t, pkgdata.SourcePath, rec.SourceKind)
}

func TestResolveRegistryErrorFails(t *testing.T) {
	r := &Resolver{HTTP: httpclient.New(), Registry: &fakeRegistry{err: assertErr{"boom"}}}
	_, prog := r.Resolve(context.Background(), pkgdata.PackageRef{Name: "widget"}, t.TempDir(), t.TempDir(), Options{})
	assert.Equal(t, Failed, prog.State)
	require.Error(t, prog.Err)
}

func TestResolveCLIOverrideBinDir(t *testing.T) {
	binContent := []byte("binary")
	archive := buildTgz(t, "out/widget", binContent)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	meta := &pkgdata.Metadata{
		Name:    "widget",
		Version: "2.0.0",
		PkgURL:  []string{srv.URL + "/widget.tgz"},
		PkgFmt:  "tgz",
		Bins:    []pkgdata.BinEntry{{Name: "widget"}},
	}
	r := &Resolver{HTTP: httpclient.New(), Registry: &fakeRegistry{meta: meta}}

	extractRoot := t.TempDir()
	installDir := t.TempDir()
	opts := Options{CLIOverride: &CLIOverride{BinDir: "out"}}

	rec, prog := r.Resolve(context.Background(), pkgdata.PackageRef{Name: "widget"}, extractRoot, installDir, opts)
	require.NoError(t, prog.Err)
	require.NotNil(t, rec)
	_, err := os.Stat(filepath.Join(installDir, "widget"))
	assert.NoError(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestMajorVersion(t *testing.T) {
	assert.Equal(t, "v1", majorVersion("1.2.3"))
	assert.Equal(t, "v2", majorVersion("2.0.0"))
	assert.Equal(t, "v0", majorVersion("garbage"))
}

func TestResolveSigstoreRefLiteralPassesThrough(t *testing.T) {
	r := &Resolver{}
	meta := &pkgdata.Metadata{Version: "1.0.0", SigstoreRef: "ghcr.io/acme/widget:v1.0.0"}
	ref, err := r.resolveSigstoreRef(meta)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/acme/widget:v1.0.0", ref)
}

func TestResolveSigstoreRefModuleStyleWithoutRegistryConfigPassesThrough(t *testing.T) {
	r := &Resolver{}
	meta := &pkgdata.Metadata{Version: "1.2.3", SigstoreRef: "example.org/widget@v1"}
	ref, err := r.resolveSigstoreRef(meta)
	require.NoError(t, err)
	assert.Equal(t, "example.org/widget@v1", ref)
}

func TestResolveSigstoreRefModuleStyleResolvesAgainstRegistryConfig(t *testing.T) {
	r := &Resolver{OCIRegistryConfig: "example.org=ghcr.io/acme"}
	meta := &pkgdata.Metadata{Version: "1.2.3", SigstoreRef: "example.org/widget@v1"}
	ref, err := r.resolveSigstoreRef(meta)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/acme/example.org/widget:1.2.3", ref)
}
