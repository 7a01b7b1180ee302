package verify

import (
	"fmt"
	"strings"

	"cuelang.org/go/mod/modconfig"
)

// ArtifactRef identifies one OCI-hosted package artifact to resolve to a
// registry location: host, repository, and tag.
type ArtifactRef struct {
	Registry string
	Tag      string
}

// ReferenceResolver converts a package's OCI module-style reference
// (e.g. "ghcr.io/acme/ripgrep@v0") to a concrete pullable location. It
// reuses the CUE module toolchain's own registry resolver purely for its
// host/repository/tag resolution logic — no CUE evaluation is involved.
type ReferenceResolver struct {
	resolver *modconfig.Resolver
}

// NewReferenceResolver creates a ReferenceResolver scoped to the given
// registry configuration (same CUE_REGISTRY-shaped value the resolver
// expects).
func NewReferenceResolver(registryConfig string) (*ReferenceResolver, error) {
	resolver, err := modconfig.NewResolver(&modconfig.Config{
		CUERegistry: registryConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating registry resolver: %w", err)
	}
	return &ReferenceResolver{resolver: resolver}, nil
}

// Resolve converts an artifact reference to a pullable OCI reference
// string (e.g. "ghcr.io/acme/ripgrep:v13.0.0").
func (r *ReferenceResolver) Resolve(modulePath, version string) (string, error) {
	loc, ok := r.resolver.ResolveToLocation(stripMajorVersionSuffix(modulePath), version)
	if !ok {
		return "", fmt.Errorf("cannot resolve %s to a registry location", modulePath)
	}
	return fmt.Sprintf("%s/%s:%s", loc.Host, loc.Repository, loc.Tag), nil
}

func stripMajorVersionSuffix(modulePath string) string {
	if i := strings.LastIndex(modulePath, "@"); i >= 0 {
		return modulePath[:i]
	}
	return modulePath
}
