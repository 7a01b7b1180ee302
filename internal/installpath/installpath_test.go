package installpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOverrideWins(t *testing.T) {
	t.Setenv(installRootEnv, "/ignored")
	res, err := Resolve("/custom/bin")
	require.NoError(t, err)
	assert.Equal(t, Resolution{Dir: "/custom/bin", IsCustom: true}, res)
}

func TestResolveInstallRootEnv(t *testing.T) {
	t.Setenv(installRootEnv, "/opt/cargo-root")
	res, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Resolution{Dir: "/opt/cargo-root/bin", IsCustom: true}, res)
}

func TestResolveSourceToolHomeEnv(t *testing.T) {
	t.Setenv(installRootEnv, "")
	t.Setenv(sourceToolHomeEnv, "/home/user/.cargo-custom")
	res, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Resolution{Dir: "/home/user/.cargo-custom/bin", IsCustom: false}, res)
}

func TestResolveFallsBackToExecutableDir(t *testing.T) {
	t.Setenv(installRootEnv, "")
	t.Setenv(sourceToolHomeEnv, "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_BIN_HOME", "")

	res, err := Resolve("")
	require.NoError(t, err)
	assert.True(t, res.IsCustom)
	assert.Equal(t, filepath.Join(home, ".local", "bin"), res.Dir)
}

func TestResolveXDGBinHome(t *testing.T) {
	t.Setenv(installRootEnv, "")
	t.Setenv(sourceToolHomeEnv, "")
	t.Setenv("XDG_BIN_HOME", "/xdg/bin")
	res, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "/xdg/bin", res.Dir)
}
