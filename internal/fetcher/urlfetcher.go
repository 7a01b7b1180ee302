package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fetchbin/fetchbin/internal/decompress"
	"github.com/fetchbin/fetchbin/internal/ghrelease"
	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// URLFetcher is a candidate built from one rendered pkg_url template: the
// default, first-party fetcher variant. thirdParty distinguishes it from
// a prebuilt-mirror candidate built the same way but against a different
// host.
type URLFetcher struct {
	http       *httpclient.Client
	ghRelease  *ghrelease.Client // optional fast-path; nil disables it
	url        string
	format     decompress.Format
	target     pkgdata.TargetTriple
	thirdParty bool
}

// NewURLFetcher builds a URLFetcher for one candidate URL. ghRelease may
// be nil, in which case Find always falls back to a raw HEAD/GET probe.
func NewURLFetcher(hc *httpclient.Client, ghRelease *ghrelease.Client, url string, format decompress.Format, target pkgdata.TargetTriple, thirdParty bool) *URLFetcher {
	return &URLFetcher{http: hc, ghRelease: ghRelease, url: url, format: format, target: target, thirdParty: thirdParty}
}

// Find implements Fetcher. It prefers the archive-host API fast path
// (§4.3) when the URL matches a known release-asset shape and that path
// hasn't latched itself off; otherwise it HEADs the URL directly.
func (f *URLFetcher) Find(ctx context.Context) (bool, error) {
	if f.ghRelease != nil && !f.ghRelease.Disabled() {
		if ref, ok := ghrelease.ParseAssetURL(f.url); ok {
			return f.ghRelease.Exists(ctx, ref)
		}
	}
	ok, err := f.http.RemoteExists(ctx, f.url, http.MethodHead)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", f.url, err)
	}
	return ok, nil
}

// FetchAndExtract implements Fetcher.
func (f *URLFetcher) FetchAndExtract(ctx context.Context, dv Verifier, destDir string) error {
	req, err := f.http.Get(ctx, f.url)
	if err != nil {
		return err
	}
	resp, err := f.http.Send(req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	format := f.format
	if format == "" {
		format = decompress.DetectFormat(f.url)
	}
	extractor, err := decompress.NewExtractor(format)
	if err != nil {
		return err
	}

	body := newVerifyingReader(f.http.BytesStream(resp), dv)
	if err := extractor.Extract(body, destDir); err != nil {
		return err
	}
	if dv != nil && !dv.Validate() {
		return fmt.Errorf("signature verification failed for %s", f.url)
	}
	return nil
}

func (f *URLFetcher) PkgFmt() decompress.Format   { return f.format }
func (f *URLFetcher) Target() pkgdata.TargetTriple { return f.target }
func (f *URLFetcher) SourceName() string          { return f.url }
func (f *URLFetcher) IsThirdParty() bool          { return f.thirdParty }
