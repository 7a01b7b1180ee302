package verify

import (
	"context"
	"fmt"
	"hash"

	"github.com/google/go-containerregistry/pkg/name"
	ociv1 "github.com/google/go-containerregistry/pkg/v1"
)

// OCIRef identifies the OCI-hosted artifact a sigstore-verified package
// is published as: an image reference plus the keyless-signing identity
// its cosign signature must carry.
type OCIRef struct {
	Reference string // e.g. "ghcr.io/acme/ripgrep:v13.0.0"
	Identity  Identity
}

// sigstoreVerifier computes the artifact's content digest as the stream
// arrives, then fetches and checks its cosign signature at Validate
// time — the "additional algorithm" the streaming DataVerifier interface
// leaves room for (package doc comment on verifier.go).
type sigstoreVerifier struct {
	ref    OCIRef
	hasher hash.Hash
	size   int64
}

func newSigstoreVerifier(ref OCIRef) (DataVerifier, error) {
	if ref.Reference == "" {
		return nil, fmt.Errorf("sigstore verification requires an OCI reference")
	}
	return &sigstoreVerifier{ref: ref, hasher: ociv1.SHA256.New()}, nil
}

func (v *sigstoreVerifier) Update(chunk []byte) {
	n, _ := v.hasher.Write(chunk)
	v.size += int64(n)
}

// Validate fetches the cosign signature published alongside v.ref and
// checks it binds to the digest actually streamed, rather than whatever
// digest the registry's manifest currently reports — a signature that
// doesn't cover the bytes just downloaded is not a valid signature for
// them.
func (v *sigstoreVerifier) Validate() bool {
	digest := ociv1.Hash{Algorithm: "sha256", Hex: fmt.Sprintf("%x", v.hasher.Sum(nil))}

	ref, err := name.ParseReference(v.ref.Reference)
	if err != nil {
		return false
	}
	ctx := context.Background()
	sigs, err := fetchCosignSignatures(ctx, ref)
	if err != nil || sigs == nil || len(sigs.Signatures) == 0 {
		return false
	}
	if sigs.ArtifactDigest != digest {
		return false
	}

	ociVerifier := NewOCIVerifier(v.ref.Identity)
	for _, sig := range sigs.Signatures {
		if err := ociVerifier.VerifyDigest(ctx, sig.Bundle, sig.SimpleSigningPayload, digest); err == nil {
			return true
		}
	}
	return false
}
