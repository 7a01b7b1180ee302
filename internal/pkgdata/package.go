package pkgdata

import (
	"fmt"
	"sort"
	"strings"
)

// SourceKind identifies where an installed package came from.
type SourceKind string

const (
	SourceRegistry SourceKind = "registry"
	SourceSparse   SourceKind = "sparse"
	SourceGit      SourceKind = "git"
	SourcePath     SourceKind = "path"
)

// PackageRef is a user-supplied package request: a name with an optional
// version requirement. A bare version on the CLI surface (no operator
// prefix) is treated as exact-equal, unlike a dependency range.
type PackageRef struct {
	Name       string
	VersionReq string // semver constraint syntax, or "" for "latest"
}

// ParsePackageRef parses "name", "name@version" or "name@req" into a
// PackageRef. A version with no comparison operator is normalized to an
// exact-match requirement ("=1.2.3").
func ParsePackageRef(s string) (PackageRef, error) {
	name, rest, ok := strings.Cut(s, "@")
	if name == "" {
		return PackageRef{}, fmt.Errorf("invalid package reference %q: empty name", s)
	}
	if !ok {
		return PackageRef{Name: name}, nil
	}
	if rest == "" {
		return PackageRef{}, fmt.Errorf("invalid package reference %q: empty version after @", s)
	}
	return PackageRef{Name: name, VersionReq: normalizeVersionReq(rest)}, nil
}

func normalizeVersionReq(req string) string {
	switch req[0] {
	case '=', '^', '~', '>', '<':
		return req
	default:
		return "=" + req
	}
}

// DedupRefs sorts refs by name and coalesces duplicates, the later entry
// in the input order winning. Mirrors the "last one wins" rule a
// duplicate CLI argument gets in the source installer.
func DedupRefs(refs []PackageRef) []PackageRef {
	byName := make(map[string]PackageRef, len(refs))
	order := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, seen := byName[r.Name]; !seen {
			order = append(order, r.Name)
		}
		byName[r.Name] = r
	}
	sort.Strings(order)
	out := make([]PackageRef, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// BinEntry is one binary the package declares: its installed name and
// its path inside the repository (used to derive bin_dir templates when
// the registry doesn't supply one directly).
type BinEntry struct {
	Name       string
	SourcePath string
}

// Override overlays target-triple-specific values on top of package
// defaults. Nil fields mean "inherit the default".
type Override struct {
	PkgURL []string
	PkgFmt *string
	BinDir *string
	Bins   []BinEntry
}

// Metadata is the package manifest fetched from the registry: URL
// templates, binary layout, signing key, and per-target overrides.
type Metadata struct {
	Name      string
	Version   string
	Repo      string // source repository URL, used to fill {repo} and to guess hosting defaults
	PkgURL    []string
	PkgFmt    string // tar | tbz2 | tgz | txz | tzstd | zip | bin, or "" to infer
	BinDir    string
	PubKey    string // minisign public key; mutually exclusive with the Sigstore* fields
	Overrides map[string]Override // keyed by target triple string
	Bins      []BinEntry

	// SigstoreRef, when non-empty, selects cosign/sigstore verification
	// instead of minisign: the package's archive is published as this
	// OCI reference and signed keylessly under the given identity.
	SigstoreRef        string
	SigstoreOIDCIssuer string
	SigstoreSANRegex   string
}

// Resolve merges target-specific overrides into the package defaults for
// one target, returning the effective URL templates, format, bin_dir, and
// bin list to use for that target.
func (m *Metadata) Resolve(target TargetTriple) (urls []string, pkgFmt, binDir string, bins []BinEntry) {
	urls, pkgFmt, binDir, bins = m.PkgURL, m.PkgFmt, m.BinDir, m.Bins
	ov, ok := m.Overrides[target.String()]
	if !ok {
		return
	}
	if len(ov.PkgURL) > 0 {
		urls = ov.PkgURL
	}
	if ov.PkgFmt != nil {
		pkgFmt = *ov.PkgFmt
	}
	if ov.BinDir != nil {
		binDir = *ov.BinDir
	}
	if len(ov.Bins) > 0 {
		bins = ov.Bins
	}
	return
}

// Candidate is one concrete URL a fetcher proposes, paired with the
// target and format it was rendered for.
type Candidate struct {
	FetcherID string
	Target    TargetTriple
	URL       string
	PkgFmt    string
}

// InstallRecord is the on-disk entry recording one installed package.
// Records are sorted, hashed, and compared by Name alone, so there is at
// most one record per package name across both manifest files.
type InstallRecord struct {
	Name             string       `json:"name"`
	VersionReq       string       `json:"version_req"`
	InstalledVersion string       `json:"installed_version"`
	SourceURL        string       `json:"source_url"`
	SourceKind       SourceKind   `json:"source_kind"`
	Target           TargetTriple `json:"target"`
	Bins             []string     `json:"bins"`
}

// ManifestKey returns the "<name> <version> (<kind>+<url>)" key format the
// source-compatible manifest uses.
func (r InstallRecord) ManifestKey() string {
	return fmt.Sprintf("%s %s (%s+%s)", r.Name, r.InstalledVersion, r.SourceKind, r.SourceURL)
}
