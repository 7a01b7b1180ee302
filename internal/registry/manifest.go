package registry

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// manifestDoc mirrors the subset of a package manifest this installer
// reads: the package's own version, and the [package.metadata.binstall]
// table carrying the prebuilt-binary fetch instructions. Everything else
// in the manifest (dependencies, build scripts, …) is irrelevant to a
// binary installer and is left unparsed.
type manifestDoc struct {
	Package struct {
		Name       string `toml:"name"`
		Version    string `toml:"version"`
		Repository string `toml:"repository"`
		Metadata   struct {
			Binstall binstallTable `toml:"binstall"`
		} `toml:"metadata"`
	} `toml:"package"`
}

type binstallTable struct {
	PkgURL             string                      `toml:"pkg-url"`
	PkgFmt             string                      `toml:"pkg-fmt"`
	BinDir             string                      `toml:"bin-dir"`
	PubKey             string                      `toml:"pub-key"`
	SigstoreRef        string                      `toml:"sigstore-ref"`
	SigstoreOIDCIssuer string                      `toml:"sigstore-oidc-issuer"`
	SigstoreSANRegex   string                      `toml:"sigstore-san-regex"`
	Bins               []binstallBin               `toml:"bin"`
	Overrides          map[string]binstallOverride `toml:"overrides"`
}

type binstallBin struct {
	Name string `toml:"name"`
}

type binstallOverride struct {
	PkgURL *string       `toml:"pkg-url"`
	PkgFmt *string       `toml:"pkg-fmt"`
	BinDir *string       `toml:"bin-dir"`
	Bins   []binstallBin `toml:"bin"`
}

// parseManifest parses a package manifest's bytes into pkgdata.Metadata.
// A missing [package.metadata.binstall] table is not an error: the
// resolver falls back to per-host URL template defaults (§4.9 step 3).
func parseManifest(name string, raw []byte) (*pkgdata.Metadata, error) {
	var doc manifestDoc
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	m := &pkgdata.Metadata{
		Name:               name,
		Version:            doc.Package.Version,
		Repo:               doc.Package.Repository,
		PubKey:             doc.Package.Metadata.Binstall.PubKey,
		PkgFmt:             doc.Package.Metadata.Binstall.PkgFmt,
		BinDir:             doc.Package.Metadata.Binstall.BinDir,
		SigstoreRef:        doc.Package.Metadata.Binstall.SigstoreRef,
		SigstoreOIDCIssuer: doc.Package.Metadata.Binstall.SigstoreOIDCIssuer,
		SigstoreSANRegex:   doc.Package.Metadata.Binstall.SigstoreSANRegex,
	}
	if doc.Package.Metadata.Binstall.PkgURL != "" {
		m.PkgURL = []string{doc.Package.Metadata.Binstall.PkgURL}
	}
	for _, b := range doc.Package.Metadata.Binstall.Bins {
		m.Bins = append(m.Bins, pkgdata.BinEntry{Name: b.Name})
	}
	if len(doc.Package.Metadata.Binstall.Overrides) > 0 {
		m.Overrides = make(map[string]pkgdata.Override, len(doc.Package.Metadata.Binstall.Overrides))
		for target, ov := range doc.Package.Metadata.Binstall.Overrides {
			out := pkgdata.Override{PkgFmt: ov.PkgFmt, BinDir: ov.BinDir}
			if ov.PkgURL != nil {
				out.PkgURL = []string{*ov.PkgURL}
			}
			for _, b := range ov.Bins {
				out.Bins = append(out.Bins, pkgdata.BinEntry{Name: b.Name})
			}
			m.Overrides[target] = out
		}
	}
	return m, nil
}
