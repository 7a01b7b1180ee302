// Package registry implements the two registry backends a package
// reference can be resolved against: a sparse HTTP registry (modeled on
// the sparse crates.io protocol) and a git-cloned index. Both answer the
// same question — given a package name and version requirement, return
// its Metadata — through the shared Client interface.
package registry

import (
	"context"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

// Client fetches package metadata from a registry backend.
type Client interface {
	// FetchManifest resolves name at the highest non-yanked version
	// satisfying versionReq ("" means "any, pick the newest") and
	// returns its metadata.
	FetchManifest(ctx context.Context, name, versionReq string) (*pkgdata.Metadata, error)
}
