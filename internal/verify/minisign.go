package verify

import (
	"bufio"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// minisign packs a 2-byte algorithm tag and 8-byte key id ahead of the
// actual key/signature material. "Ed" signs the raw message directly;
// "ED" (prehashed mode) signs a BLAKE2b-512 digest of the message, which
// is the only mode this installer needs since it verifies a stream
// without buffering it.
const prehashedAlgorithmTag = "ED"

type minisignPublicKey struct {
	algorithm [2]byte
	keyID     [8]byte
	key       ed25519.PublicKey
}

func parseMinisignPublicKey(b64 string) (*minisignPublicKey, error) {
	raw, err := decodeMinisignLine(b64)
	if err != nil {
		return nil, fmt.Errorf("parsing minisign public key: %w", err)
	}
	if len(raw) != 42 {
		return nil, fmt.Errorf("minisign public key has wrong length %d, want 42", len(raw))
	}
	pk := &minisignPublicKey{key: make([]byte, ed25519.PublicKeySize)}
	copy(pk.algorithm[:], raw[0:2])
	copy(pk.keyID[:], raw[2:10])
	copy(pk.key, raw[10:42])
	return pk, nil
}

type minisignSignature struct {
	algorithm [2]byte
	keyID     [8]byte
	signature [ed25519.SignatureSize]byte
}

func parseMinisignSignature(text string) (*minisignSignature, error) {
	line, err := firstNonCommentLine(text)
	if err != nil {
		return nil, fmt.Errorf("parsing minisign signature: %w", err)
	}
	raw, err := decodeMinisignLine(line)
	if err != nil {
		return nil, fmt.Errorf("parsing minisign signature: %w", err)
	}
	if len(raw) != 74 {
		return nil, fmt.Errorf("minisign signature has wrong length %d, want 74", len(raw))
	}
	sig := &minisignSignature{}
	copy(sig.algorithm[:], raw[0:2])
	copy(sig.keyID[:], raw[2:10])
	copy(sig.signature[:], raw[10:74])
	return sig, nil
}

// firstNonCommentLine returns the first line of a minisign .sig file that
// isn't an "untrusted comment:" header, i.e. the base64-encoded
// signature blob.
func firstNonCommentLine(text string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "untrusted comment:") {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("no signature line found")
}

func decodeMinisignLine(line string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(line))
}

// minisignVerifier hashes the stream with BLAKE2b-512 as it arrives,
// then verifies the Ed25519 signature over the final digest.
type minisignVerifier struct {
	pub    *minisignPublicKey
	sig    *minisignSignature
	hasher interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func newMinisignVerifier(pubKeyB64, sigText string) (DataVerifier, error) {
	pub, err := parseMinisignPublicKey(pubKeyB64)
	if err != nil {
		return nil, err
	}
	sig, err := parseMinisignSignature(sigText)
	if err != nil {
		return nil, err
	}
	if string(sig.algorithm[:]) != prehashedAlgorithmTag {
		return nil, fmt.Errorf("unsupported minisign signature algorithm %q, want %q", sig.algorithm, prehashedAlgorithmTag)
	}
	if sig.keyID != pub.keyID {
		return nil, fmt.Errorf("minisign signature key id does not match public key id")
	}

	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, fmt.Errorf("initializing blake2b hasher: %w", err)
	}
	return &minisignVerifier{pub: pub, sig: sig, hasher: h}, nil
}

func (v *minisignVerifier) Update(chunk []byte) {
	v.hasher.Write(chunk)
}

func (v *minisignVerifier) Validate() bool {
	digest := v.hasher.Sum(nil)
	return ed25519.Verify(v.pub.key, digest, v.sig.signature[:])
}
