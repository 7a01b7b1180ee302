package fetcher

import (
	"context"
	"io"

	"github.com/fetchbin/fetchbin/internal/decompress"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// Fetcher is the capability set every candidate source implements: a
// cheap existence probe, and the actual body-streaming fetch. One
// Fetcher instance is paired with exactly one (package-data,
// target-data) pair. Find's result is not cached on the instance:
// FetchAndExtract makes its own request for the body.
type Fetcher interface {
	// Find answers "does an artifact exist here" without downloading
	// the body. A false, nil result is a soft negative.
	Find(ctx context.Context) (bool, error)
	// FetchAndExtract streams the artifact body through dv (nil
	// disables verification), then through the decompressor into
	// destDir.
	FetchAndExtract(ctx context.Context, dv Verifier, destDir string) error
	// PkgFmt is the archive format this candidate declares or infers.
	PkgFmt() decompress.Format
	// Target is the platform this fetcher instance targets.
	Target() pkgdata.TargetTriple
	// SourceName is a short human-readable descriptor (e.g. the URL).
	SourceName() string
	// IsThirdParty marks a prebuilt-mirror fetcher, whose artifact was
	// not published by the package's own maintainer.
	IsThirdParty() bool
}

// Verifier is the subset of verify.DataVerifier a fetcher needs; kept as
// a local interface so this package doesn't have to import verify just
// to thread a parameter through.
type Verifier interface {
	Update(chunk []byte)
	Validate() bool
}

// verifyingReader wraps a stream so every byte read also reaches a
// Verifier before the decompressor sees it.
type verifyingReader struct {
	r  io.Reader
	dv Verifier
}

func newVerifyingReader(r io.Reader, dv Verifier) io.Reader {
	if dv == nil {
		return r
	}
	return &verifyingReader{r: r, dv: dv}
}

func (vr *verifyingReader) Read(p []byte) (int, error) {
	n, err := vr.r.Read(p)
	if n > 0 {
		vr.dv.Update(p[:n])
	}
	return n, err
}
