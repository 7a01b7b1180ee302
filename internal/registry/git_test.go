package registry

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fetchbin/fetchbin/internal/httpclient"
)

// initBareIndexRepo creates a minimal git repository on disk containing a
// sparse-registry-shaped config.json and one package index file, without
// depending on a network git host.
func initBareIndexRepo(t *testing.T, dir, dlBase, cksum string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.invalid",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.invalid")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"dl":"`+dlBase+`/{crate}/{version}"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ri", "pg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ri", "pg", "ripgrep"),
		[]byte(`{"name":"ripgrep","vers":"13.0.0","yanked":false,"cksum":"`+cksum+`"}`+"\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "init")
}

func TestGitClientFetchManifest(t *testing.T) {
	cargoToml := `
[package]
name = "ripgrep"
version = "13.0.0"

[package.metadata.binstall]
pkg-url = "{ repo }/ripgrep-{ version }.tgz"
pkg-fmt = "tgz"
`
	archive := buildSourceArchive(t, cargoToml)

	mux := http.NewServeMux()
	mux.HandleFunc("/dl/ripgrep/13.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repoDir := t.TempDir()
	initBareIndexRepo(t, repoDir, fmt.Sprintf("%s/dl", srv.URL), fmt.Sprintf("%x", sha256.Sum256(archive)))

	client := NewGitClient(repoDir, t.TempDir(), httpclient.New())
	meta, err := client.FetchManifest(t.Context(), "ripgrep", "")
	require.NoError(t, err)
	require.Equal(t, "13.0.0", meta.Version)
	require.Equal(t, "tgz", meta.PkgFmt)
}
