package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

func TestSaveThenLoadRoundtrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Lock())
	defer s.Unlock()

	records := []pkgdata.InstallRecord{
		{Name: "ripgrep", VersionReq: "=13.0.0", InstalledVersion: "13.0.0", SourceURL: "https://example.com/rg.tgz", SourceKind: pkgdata.SourceRegistry, Bins: []string{"rg"}},
	}
	require.NoError(t, s.Save(records))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0], got[0])

	assert.FileExists(t, filepath.Join(dir, compatFileName))
	assert.FileExists(t, filepath.Join(dir, nativeSubdir, nativeFileName))
}

func TestLoadMergesCompatOnlyEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Lock())
	defer s.Unlock()

	compatTOML := "[v1]\n\"fd 8.7.0 (registry+https://example.com/fd.tgz)\" = [\"fd\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, compatFileName), []byte(compatTOML), 0o644))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fd", got[0].Name)
	assert.Equal(t, "8.7.0", got[0].InstalledVersion)
	assert.Equal(t, pkgdata.SourceRegistry, got[0].SourceKind)
	assert.Equal(t, []string{"fd"}, got[0].Bins)
}

func TestNativeEntryTakesPrecedenceOverCompat(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Lock())

	rec := pkgdata.InstallRecord{Name: "fd", VersionReq: "", InstalledVersion: "8.7.0", SourceURL: "https://example.com/fd.tgz", SourceKind: pkgdata.SourceRegistry, Bins: []string{"fd"}, Target: pkgdata.TargetTriple{Arch: "x86_64", Vendor: "unknown", OS: "linux", Env: "gnu"}}
	require.NoError(t, s.Save([]pkgdata.InstallRecord{rec}))
	require.NoError(t, s.Unlock())

	require.NoError(t, s.Lock())
	defer s.Unlock()
	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Target, got[0].Target)
}

func TestLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, a.Lock())
	defer a.Unlock()

	b, err := Open(dir)
	require.NoError(t, err)
	err = b.Lock()
	assert.Error(t, err)
}

func TestHasLegacyManifest(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	assert.False(t, s.HasLegacyManifest())

	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFileName), []byte("{}"), 0o644))
	assert.True(t, s.HasLegacyManifest())
}
