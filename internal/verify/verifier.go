// Package verify implements the installer's streaming signature
// verification: a DataVerifier sees every chunk of the archive body as it
// is downloaded and decides, once the stream ends, whether the signature
// validates. Keeping the update/validate shape (rather than buffering the
// whole body) lets an additional algorithm — sigstore/cosign OCI
// verification, which instead binds to a content digest — be added
// without restructuring the download/extract pipeline.
package verify

import "fmt"

// DataVerifier is fed the archive body one chunk at a time, then asked
// once, at end-of-stream, whether the accumulated data is valid.
type DataVerifier interface {
	// Update is called for every chunk of the archive body, in order.
	Update(chunk []byte)
	// Validate is called once after the final chunk and returns whether
	// the signature checks out.
	Validate() bool
}

// Algorithm selects which signature scheme a package's metadata asks
// for.
type Algorithm string

const (
	// AlgorithmNone means no pub_key was supplied: verification is a
	// no-op that always passes.
	AlgorithmNone Algorithm = "none"
	// AlgorithmMinisign is Ed25519 over a BLAKE2b-prehashed stream, the
	// format a package's detached <archive-url>.sig side-channel uses.
	AlgorithmMinisign Algorithm = "minisign"
	// AlgorithmSigstore verifies a cosign keyless signature published
	// alongside an OCI-hosted archive, binding the signature to the
	// digest actually streamed. Use NewOCIVerifierFor to build one.
	AlgorithmSigstore Algorithm = "sigstore"
)

// NewVerifier builds the DataVerifier for algo. pubKey and signature are
// both required for AlgorithmMinisign and ignored otherwise.
// AlgorithmSigstore cannot be built through NewVerifier since it needs
// an OCIRef, not a (pubKey, signature) pair — use NewOCIVerifierFor.
func NewVerifier(algo Algorithm, pubKey, signature string) (DataVerifier, error) {
	switch algo {
	case AlgorithmNone, "":
		return noopVerifier{}, nil
	case AlgorithmMinisign:
		return newMinisignVerifier(pubKey, signature)
	case AlgorithmSigstore:
		return nil, fmt.Errorf("sigstore verification requires an OCI reference: use NewOCIVerifierFor")
	default:
		return nil, &UnsupportedAlgorithmError{Algorithm: string(algo)}
	}
}

// NewOCIVerifierFor builds the DataVerifier for a package published as
// an OCI artifact and signed with cosign.
func NewOCIVerifierFor(ref OCIRef) (DataVerifier, error) {
	return newSigstoreVerifier(ref)
}

// UnsupportedAlgorithmError reports a pub_key scheme this build doesn't
// implement.
type UnsupportedAlgorithmError struct {
	Algorithm string
}

func (e *UnsupportedAlgorithmError) Error() string {
	return "unsupported signature algorithm: " + e.Algorithm
}
