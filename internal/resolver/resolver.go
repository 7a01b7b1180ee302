// Package resolver wires the target detector, registry client, fetcher
// framework, decompressor, and signature verifier into the per-package
// state machine described by §4.9: resolve metadata, probe candidates,
// race the winner's download, extract, place, and return the record for
// the caller to commit.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fetchbin/fetchbin/internal/decompress"
	"github.com/fetchbin/fetchbin/internal/fetcher"
	"github.com/fetchbin/fetchbin/internal/ferrors"
	"github.com/fetchbin/fetchbin/internal/ghrelease"
	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
	"github.com/fetchbin/fetchbin/internal/registry"
	"github.com/fetchbin/fetchbin/internal/target"
	"github.com/fetchbin/fetchbin/internal/urltemplate"
	"github.com/fetchbin/fetchbin/internal/verify"
)

// Resolver resolves and installs one package reference at a time. It
// holds no per-package state; callers run one Resolve per package,
// typically fanned out under a shared concurrency cap (see the
// Supplemented features note on job-server-style limiting).
type Resolver struct {
	HTTP      *httpclient.Client
	Registry  registry.Client
	GHRelease *ghrelease.Client // optional; nil disables the archive-host fast path

	// MirrorBaseURL, when non-empty, enables a third-party prebuilt
	// mirror fetcher whose candidate URL is computed by rendering
	// "{mirror}/{name}/{version}/{target}.{archive-format}" against it.
	MirrorBaseURL string

	// OCIRegistryConfig resolves a package's module-style sigstore-ref
	// ("host.example/mod@v0" style) to a concrete pullable OCI
	// reference, the same CUE_REGISTRY-shaped value modconfig.Resolver
	// expects. Empty disables resolution: a sigstore-ref is then used
	// as-is, which only works when it is already a literal OCI reference.
	OCIRegistryConfig string
}

// Resolve runs the full per-package pipeline for ref and returns the
// record to commit to the manifest. extractRoot is a scratch directory
// the resolver owns for the duration of this call (e.g. a temp dir);
// installDir is where the resolved binaries end up.
func (r *Resolver) Resolve(ctx context.Context, ref pkgdata.PackageRef, extractRoot, installDir string, opts Options) (*pkgdata.InstallRecord, Progress) {
	prog := Progress{Package: ref.Name, State: Pending}

	versionReq := ref.VersionReq
	if opts.VersionReq != "" {
		versionReq = opts.VersionReq
	}

	prog.State = ResolvingMeta
	meta, err := r.Registry.FetchManifest(ctx, ref.Name, versionReq)
	if err != nil {
		prog.State, prog.Err = Failed, err
		return nil, prog
	}
	if opts.CLIOverride != nil {
		applyCLIOverride(meta, opts.CLIOverride)
	}

	targets := target.Detect(ctx)
	if len(targets) == 0 {
		prog.State, prog.Err = Failed, ferrors.NoArtifactForTarget(ref.Name)
		return nil, prog
	}

	prog.State = CandidatesProbing
	candidates, err := r.buildCandidates(meta, targets, opts)
	if err != nil {
		prog.State, prog.Err = Failed, err
		return nil, prog
	}
	if len(candidates) == 0 {
		if rec, err := runCargoInstallFallback(opts, ref.Name, versionReq); rec != nil || err != nil {
			if err != nil {
				prog.State, prog.Err = Failed, err
				return nil, prog
			}
			prog.State = Done
			return rec, prog
		}
		prog.State, prog.Err = Failed, ferrors.NoArtifactForTarget(ref.Name)
		return nil, prog
	}

	racer := fetcher.NewRacer[candidateFetcher](ctx)
	for _, c := range candidates {
		c := c
		racer.Push(func(ctx context.Context) (candidateFetcher, bool, error) {
			ok, err := c.fetcher.Find(ctx)
			if err != nil {
				return candidateFetcher{}, false, err
			}
			if !ok {
				return candidateFetcher{}, false, nil
			}
			return c, true, nil
		})
	}
	winner, err := racer.Resolve()
	if err != nil {
		if rec, fbErr := runCargoInstallFallback(opts, ref.Name, versionReq); rec != nil || fbErr != nil {
			if fbErr != nil {
				prog.State, prog.Err = Failed, fbErr
				return nil, prog
			}
			prog.State = Done
			return rec, prog
		}
		prog.State, prog.Err = Failed, ferrors.NoArtifactForTarget(ref.Name)
		return nil, prog
	}

	prog.State = Downloading
	dv, err := r.buildVerifier(ctx, meta, winner.fetcher.SourceName())
	if err != nil {
		prog.State, prog.Err = Failed, err
		return nil, prog
	}

	prog.State = Extracting
	if err := winner.fetcher.FetchAndExtract(ctx, dv, extractRoot); err != nil {
		prog.State, prog.Err = Failed, err
		return nil, prog
	}

	var bins []string
	if !opts.DryRun {
		prog.State = Placing
		bins, err = r.placeBins(meta, winner.target, extractRoot, installDir, opts)
		if err != nil {
			prog.State, prog.Err = Failed, err
			return nil, prog
		}
	}

	prog.State = Done
	return &pkgdata.InstallRecord{
		Name:             ref.Name,
		VersionReq:       versionReq,
		InstalledVersion: meta.Version,
		SourceURL:        winner.fetcher.SourceName(),
		SourceKind:       pkgdata.SourceRegistry,
		Target:           winner.target,
		Bins:             bins,
	}, prog
}

func runCargoInstallFallback(opts Options, name, versionReq string) (*pkgdata.InstallRecord, error) {
	if opts.CargoInstallFallback == nil {
		return nil, nil
	}
	slog.Warn("no prebuilt artifact found, invoking source-build fallback", "package", name)
	return opts.CargoInstallFallback(name, versionReq)
}

func applyCLIOverride(meta *pkgdata.Metadata, ov *CLIOverride) {
	if len(ov.PkgURL) > 0 {
		meta.PkgURL = ov.PkgURL
	}
	if ov.PkgFmt != "" {
		meta.PkgFmt = ov.PkgFmt
	}
	if ov.BinDir != "" {
		meta.BinDir = ov.BinDir
	}
}

// candidateFetcher pairs a constructed fetcher with the target it was
// built for, so a winning probe can be placed without re-deriving it.
type candidateFetcher struct {
	fetcher fetcher.Fetcher
	target  pkgdata.TargetTriple
	pkgFmt  decompress.Format
}

// buildCandidates implements §4.9 steps 3-5: merge overrides, fill
// default URL templates when pkg_url is absent, render every template
// against every target, and construct one fetcher per resulting URL.
func (r *Resolver) buildCandidates(meta *pkgdata.Metadata, targets []pkgdata.TargetTriple, opts Options) ([]candidateFetcher, error) {
	var out []candidateFetcher

	for _, t := range targets {
		urls, pkgFmtStr, _, _ := meta.Resolve(t)
		if len(urls) == 0 {
			urls = defaultURLTemplates(meta.Repo)
		}
		if len(urls) == 0 {
			continue
		}

		format := decompress.NormalizeFormat(pkgFmtStr)
		if format == "" {
			format = decompress.Format(t.ArchiveFormat())
		}

		values := templateValues(meta, t, format)
		for _, rawTmpl := range urls {
			tmpl, err := urltemplate.Parse(rawTmpl)
			if err != nil {
				return nil, fmt.Errorf("parsing pkg_url template %q: %w", rawTmpl, err)
			}
			rendered, err := tmpl.Render(values)
			if err != nil {
				continue // missing key for this target: skip, not fatal
			}
			if pkgFmtStr != "" && decompress.DetectFormat(rendered) != "" && decompress.DetectFormat(rendered) != format {
				continue // explicit pkg_fmt disagrees with this candidate's extension
			}
			out = append(out, candidateFetcher{
				fetcher: fetcher.NewURLFetcher(r.HTTP, r.GHRelease, rendered, format, t, false),
				target:  t,
				pkgFmt:  format,
			})
		}

		if !opts.DisablePrebuiltMirror && r.MirrorBaseURL != "" {
			mirrorTmpl, err := urltemplate.Parse(r.MirrorBaseURL + "/{ name }/{ version }/{ target }.{ archive-format }")
			if err == nil {
				if rendered, err := mirrorTmpl.Render(values); err == nil {
					out = append(out, candidateFetcher{
						fetcher: fetcher.NewURLFetcher(r.HTTP, r.GHRelease, rendered, format, t, true),
						target:  t,
						pkgFmt:  format,
					})
				}
			}
		}
	}
	return out, nil
}

func templateValues(meta *pkgdata.Metadata, t pkgdata.TargetTriple, format decompress.Format) urltemplate.MapValues {
	v := urltemplate.MapValues{
		"name":    meta.Name,
		"version": meta.Version,
		"repo":    meta.Repo,
	}
	for k, val := range t.Values() {
		v[k] = val
	}
	v["archive-format"] = string(format)
	return v
}

// buildVerifier fetches the winning candidate's detached signature, if
// the package declares a pub_key, and builds the verifier that will
// check the archive body against it as it streams through FetchAndExtract.
// A pub_key with no reachable ".sig" sidecar is a hard error: a
// configured signing key means the maintainer commits to signing every
// release artifact, so a missing signature is not distinguishable from a
// stripped one.
func (r *Resolver) buildVerifier(ctx context.Context, meta *pkgdata.Metadata, sourceURL string) (verify.DataVerifier, error) {
	if meta.SigstoreRef != "" {
		ref, err := r.resolveSigstoreRef(meta)
		if err != nil {
			return nil, err
		}
		return verify.NewOCIVerifierFor(verify.OCIRef{
			Reference: ref,
			Identity: verify.Identity{
				OIDCIssuer: meta.SigstoreOIDCIssuer,
				SANRegex:   meta.SigstoreSANRegex,
			},
		})
	}
	if meta.PubKey == "" {
		return verify.NewVerifier(verify.AlgorithmNone, "", "")
	}
	sig, err := r.fetchSignature(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	return verify.NewVerifier(verify.AlgorithmMinisign, meta.PubKey, sig)
}

// resolveSigstoreRef turns a metadata's sigstore_ref into a concrete
// pullable OCI reference. A ref ending in "@v<major>", where <major> is
// the leading component of meta.Version ("host.example/mod@v1", version
// "1.2.3"), is treated as a module-style path and resolved against
// r.OCIRegistryConfig when that is set; any other ref is returned as-is,
// assumed to already be a literal "host/repo:tag" reference.
func (r *Resolver) resolveSigstoreRef(meta *pkgdata.Metadata) (string, error) {
	modulePath, hasMajor := strings.CutSuffix(meta.SigstoreRef, "@"+majorVersion(meta.Version))
	if !hasMajor || r.OCIRegistryConfig == "" {
		return meta.SigstoreRef, nil
	}
	resolver, err := verify.NewReferenceResolver(r.OCIRegistryConfig)
	if err != nil {
		return "", err
	}
	return resolver.Resolve(modulePath+"@"+majorVersion(meta.Version), meta.Version)
}

func majorVersion(semverVersion string) string {
	major, _, ok := strings.Cut(semverVersion, ".")
	if !ok {
		return "v0"
	}
	return "v" + major
}

func (r *Resolver) fetchSignature(ctx context.Context, sourceURL string) (string, error) {
	req, err := r.HTTP.Get(ctx, sourceURL+".sig")
	if err != nil {
		return "", err
	}
	resp, err := r.HTTP.Send(req, true)
	if err != nil {
		return "", fmt.Errorf("fetching signature for %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading signature for %s: %w", sourceURL, err)
	}
	return string(body), nil
}

func (r *Resolver) placeBins(meta *pkgdata.Metadata, t pkgdata.TargetTriple, extractRoot, installDir string, opts Options) ([]string, error) {
	_, _, binDir, bins := meta.Resolve(t)
	if len(bins) == 0 {
		bins = []pkgdata.BinEntry{{Name: meta.Name}}
	}

	var placed []string
	for _, b := range bins {
		srcDir := extractRoot
		if binDir != "" {
			tmpl, err := urltemplate.Parse(binDir)
			if err == nil {
				if rendered, err := tmpl.Render(templateValues(meta, t, "")); err == nil {
					srcDir = filepath.Join(extractRoot, rendered)
				}
			}
		}
		src, err := findBinary(srcDir, b.Name)
		if err != nil {
			src, err = findBinary(extractRoot, b.Name)
			if err != nil {
				return nil, err
			}
		}
		if _, err := placeBinary(src, installDir, b.Name, !opts.NoSymlinks); err != nil {
			return nil, err
		}
		placed = append(placed, b.Name)
	}
	return placed, nil
}
