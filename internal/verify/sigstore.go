package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	ociv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/tuf"
	sgverify "github.com/sigstore/sigstore-go/pkg/verify"
)

// Identity is the expected keyless-signing identity a cosign bundle must
// present: the OIDC issuer and a regex the certificate's SAN must match.
// Each registry/publisher configures its own, unlike a fixed first-party
// identity.
type Identity struct {
	OIDCIssuer string
	SANRegex   string
}

// OCIVerifier verifies cosign signatures on OCI-hosted package artifacts,
// binding the signature to a specific content digest so a valid signature
// for one artifact can't be replayed against another. Unlike minisign,
// it checks a finished artifact digest rather than a running hash;
// sigstoreVerifier (sigstore_verifier.go) adapts it to the streaming
// DataVerifier interface by hashing the stream and calling VerifyDigest
// at Validate time.
type OCIVerifier struct {
	identity Identity

	trustedRootOnce sync.Once
	trustedRoot     *root.LiveTrustedRoot
	trustedRootErr  error
}

// NewOCIVerifier creates an OCIVerifier that checks bundles against
// identity.
func NewOCIVerifier(identity Identity) *OCIVerifier {
	return &OCIVerifier{identity: identity}
}

// VerifyDigest verifies a cosign bundle against the artifact's content
// digest. simpleSigningPayload is the SimpleSigning JSON payload
// accompanying cosign v2 bundles; pass nil for legacy protobuf bundles,
// which fall back to a weaker unsigned-digest binding.
func (v *OCIVerifier) VerifyDigest(_ context.Context, b *bundle.Bundle, simpleSigningPayload []byte, artifactDigest ociv1.Hash) error {
	trustedRoot, err := v.getTrustedRoot()
	if err != nil {
		return fmt.Errorf("fetching trusted root: %w", err)
	}

	verifier, err := sgverify.NewVerifier(
		trustedRoot,
		sgverify.WithSignedCertificateTimestamps(1),
		sgverify.WithTransparencyLog(1),
		sgverify.WithIntegratedTimestamps(1),
	)
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}

	certIdentity, err := sgverify.NewShortCertificateIdentity(v.identity.OIDCIssuer, "", "", v.identity.SANRegex)
	if err != nil {
		return fmt.Errorf("creating certificate identity: %w", err)
	}

	if simpleSigningPayload != nil {
		if _, err := verifier.Verify(b, sgverify.NewPolicy(
			sgverify.WithArtifact(bytes.NewReader(simpleSigningPayload)),
			sgverify.WithCertificateIdentity(certIdentity),
		)); err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
		return verifyDigestBinding(simpleSigningPayload, artifactDigest)
	}

	slog.Warn("verifying legacy cosign bundle without a SimpleSigning payload; artifact binding is weaker")
	if _, err := verifier.Verify(b, sgverify.NewPolicy(
		sgverify.WithoutArtifactUnsafe(),
		sgverify.WithCertificateIdentity(certIdentity),
	)); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

func (v *OCIVerifier) getTrustedRoot() (*root.LiveTrustedRoot, error) {
	v.trustedRootOnce.Do(func() {
		v.trustedRoot, v.trustedRootErr = root.NewLiveTrustedRoot(tuf.DefaultOptions())
	})
	return v.trustedRoot, v.trustedRootErr
}

type simpleSigningDoc struct {
	Critical struct {
		Image struct {
			DockerManifestDigest string `json:"docker-manifest-digest"`
		} `json:"image"`
	} `json:"critical"`
}

// verifyDigestBinding checks that the SimpleSigning payload references
// the artifact we actually downloaded, preventing a valid signature for
// one artifact from being replayed against a different one.
func verifyDigestBinding(payload []byte, expected ociv1.Hash) error {
	var doc simpleSigningDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("parsing SimpleSigning payload: %w", err)
	}
	if doc.Critical.Image.DockerManifestDigest != expected.String() {
		return fmt.Errorf("digest mismatch: payload references %q, artifact is %q",
			doc.Critical.Image.DockerManifestDigest, expected.String())
	}
	return nil
}
