package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"

	"github.com/fetchbin/fetchbin/internal/checksum"
	"github.com/fetchbin/fetchbin/internal/decompress"
	"github.com/fetchbin/fetchbin/internal/ferrors"
	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
	"github.com/fetchbin/fetchbin/internal/urltemplate"
)

// GitClient fetches package metadata from a git-cloned registry index:
// identical index/version-selection/dl-template semantics to
// SparseClient, but the index files live in a shallow clone on disk
// instead of behind HTTP.
type GitClient struct {
	repoURL  string
	cloneDir string
	http     *httpclient.Client // used only to fetch the source archive the index points at

	cloneOnce sync.Once
	cloneErr  error

	configOnce sync.Once
	configErr  error
	dlTemplate *urltemplate.Template
}

// NewGitClient creates a GitClient that shallow-clones repoURL into
// cloneDir on first use (cloneDir is created if absent; an existing
// clone there is reused as-is).
func NewGitClient(repoURL, cloneDir string, hc *httpclient.Client) *GitClient {
	return &GitClient{repoURL: repoURL, cloneDir: cloneDir, http: hc}
}

func (c *GitClient) ensureClone(ctx context.Context) error {
	c.cloneOnce.Do(func() {
		if _, err := os.Stat(filepath.Join(c.cloneDir, ".git")); err == nil {
			return
		}
		if err := os.MkdirAll(filepath.Dir(c.cloneDir), 0o755); err != nil {
			c.cloneErr = fmt.Errorf("creating clone parent directory: %w", err)
			return
		}
		_, err := gogit.PlainCloneContext(ctx, c.cloneDir, false, &gogit.CloneOptions{
			URL:          c.repoURL,
			Depth:        1,
			SingleBranch: true,
		})
		if err != nil {
			c.cloneErr = fmt.Errorf("cloning registry index %s: %w", c.repoURL, err)
		}
	})
	return c.cloneErr
}

func (c *GitClient) loadConfig() (*urltemplate.Template, error) {
	c.configOnce.Do(func() {
		raw, err := os.ReadFile(filepath.Join(c.cloneDir, "config.json"))
		if err != nil {
			c.configErr = fmt.Errorf("reading registry config: %w", err)
			return
		}
		var cfg sparseConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			c.configErr = fmt.Errorf("decoding registry config: %w", err)
			return
		}
		tmpl, err := urltemplate.Parse(cfg.DL)
		if err != nil {
			c.configErr = fmt.Errorf("parsing dl template %q: %w", cfg.DL, err)
			return
		}
		c.dlTemplate = tmpl
	})
	return c.dlTemplate, c.configErr
}

// FetchManifest implements Client.
func (c *GitClient) FetchManifest(ctx context.Context, name, versionReq string) (*pkgdata.Metadata, error) {
	if err := c.ensureClone(ctx); err != nil {
		return nil, err
	}
	dlTemplate, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	indexFile := filepath.Join(c.cloneDir, filepath.FromSlash(indexPath(name)))
	raw, err := os.ReadFile(indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound(name)
		}
		return nil, ferrors.NewIOError(indexFile, err)
	}

	entries, err := parseIndex(strings.NewReader(string(raw)))
	if err != nil {
		return nil, ferrors.BadManifest(name, err)
	}
	if len(entries) == 0 {
		return nil, ferrors.NotFound(name)
	}

	entry, err := selectVersion(name, entries, versionReq)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(name)
	archiveURL, err := dlTemplate.Render(urltemplate.MapValues{
		"crate":           lower,
		"version":         entry.Vers,
		"prefix":          shardPrefix(lower, false),
		"lowerprefix":     shardPrefix(lower, true),
		"sha256-checksum": entry.Cksum,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering download URL: %w", err)
	}

	req, err := c.http.Get(ctx, archiveURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	archive, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading source archive: %w", err)
	}
	if entry.Cksum != "" {
		got, err := checksum.CalculateFromReader(bytes.NewReader(archive), checksum.AlgorithmSHA256)
		if err != nil {
			return nil, err
		}
		if got != strings.ToLower(entry.Cksum) {
			return nil, ferrors.Wrap(ferrors.CategorySignature, ferrors.CodeInvalidSignature,
				"source archive checksum mismatch", fmt.Errorf("got %s, want %s", got, entry.Cksum)).
				WithDetail("name", name)
		}
	}

	files, err := decompress.VisitTar(bytes.NewReader(archive), decompress.FormatTgz, func(path string) bool {
		return strings.HasSuffix(path, "/Cargo.toml") || path == "Cargo.toml"
	})
	if err != nil {
		return nil, fmt.Errorf("reading source archive: %w", err)
	}
	for _, body := range files {
		m, err := parseManifest(name, body)
		if err != nil {
			return nil, ferrors.BadManifest(name, err)
		}
		m.Version = entry.Vers
		return m, nil
	}
	return nil, ferrors.BadManifest(name, fmt.Errorf("source archive has no Cargo.toml"))
}
