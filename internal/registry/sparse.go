package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fetchbin/fetchbin/internal/checksum"
	"github.com/fetchbin/fetchbin/internal/decompress"
	"github.com/fetchbin/fetchbin/internal/ferrors"
	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
	"github.com/fetchbin/fetchbin/internal/urltemplate"
)

// SparseClient fetches package metadata from a sparse HTTP registry,
// following the same protocol shape as a sparse crates.io index: a
// config.json pinning the download URL template, then one
// newline-delimited-JSON index file per package.
type SparseClient struct {
	root string
	http *httpclient.Client

	configOnce sync.Once
	configErr  error
	dlTemplate *urltemplate.Template
}

// NewSparseClient creates a SparseClient rooted at root (no trailing
// slash required).
func NewSparseClient(root string, hc *httpclient.Client) *SparseClient {
	return &SparseClient{root: strings.TrimRight(root, "/"), http: hc}
}

type sparseConfig struct {
	DL string `json:"dl"`
}

func (c *SparseClient) loadConfig(ctx context.Context) (*urltemplate.Template, error) {
	c.configOnce.Do(func() {
		url := c.root + "/config.json"
		req, err := c.http.Get(ctx, url)
		if err != nil {
			c.configErr = err
			return
		}
		resp, err := c.http.Send(req, true)
		if err != nil {
			c.configErr = err
			return
		}
		defer resp.Body.Close()

		var cfg sparseConfig
		if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
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
func (c *SparseClient) FetchManifest(ctx context.Context, name, versionReq string) (*pkgdata.Metadata, error) {
	dlTemplate, err := c.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading registry config: %w", err)
	}

	indexURL := c.root + "/" + indexPath(name)
	req, err := c.http.Get(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return nil, ferrors.NotFound(name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ferrors.Wrap(ferrors.CategoryNetwork, ferrors.CodeHTTP,
			"unexpected index response status", fmt.Errorf("status %d", resp.StatusCode))
	}

	entries, err := parseIndex(resp.Body)
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

	manifest, err := c.fetchManifestFromArchive(ctx, name, archiveURL, entry.Cksum)
	if err != nil {
		return nil, err
	}
	manifest.Version = entry.Vers
	return manifest, nil
}

// fetchManifestFromArchive downloads the source archive at archiveURL,
// verifies it against the index's declared sha256 checksum, and
// extracts its package manifest in memory, never writing the archive to
// disk — the registry client only ever needs a handful of small text
// files out of it.
func (c *SparseClient) fetchManifestFromArchive(ctx context.Context, name, archiveURL, expectedSHA256 string) (*pkgdata.Metadata, error) {
	req, err := c.http.Get(ctx, archiveURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading source archive: %w", err)
	}
	if expectedSHA256 != "" {
		got, err := checksum.CalculateFromReader(bytes.NewReader(body), checksum.AlgorithmSHA256)
		if err != nil {
			return nil, err
		}
		if got != strings.ToLower(expectedSHA256) {
			return nil, ferrors.Wrap(ferrors.CategorySignature, ferrors.CodeInvalidSignature,
				"source archive checksum mismatch", fmt.Errorf("got %s, want %s", got, expectedSHA256)).
				WithDetail("name", name)
		}
	}

	files, err := decompress.VisitTar(bytes.NewReader(body), decompress.FormatTgz, func(path string) bool {
		return strings.HasSuffix(path, "/Cargo.toml") || path == "Cargo.toml"
	})
	if err != nil {
		return nil, fmt.Errorf("reading source archive: %w", err)
	}
	for _, raw := range files {
		m, err := parseManifest(name, raw)
		if err != nil {
			return nil, ferrors.BadManifest(name, err)
		}
		return m, nil
	}
	return nil, ferrors.BadManifest(name, fmt.Errorf("source archive has no Cargo.toml"))
}

// shardPrefix mirrors indexPath's bucketing rule, for the dl template's
// {prefix}/{lowerprefix} keys (crates.io's sparse dl template references
// these for its S3-mirrored layout even though the default dl endpoint
// doesn't need them).
func shardPrefix(lowerName string, lowercase bool) string {
	p := indexPath(lowerName)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i]
	} else {
		p = ""
	}
	if !lowercase {
		return p
	}
	return strings.ToLower(p)
}
