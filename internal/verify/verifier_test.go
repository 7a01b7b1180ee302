package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierNone(t *testing.T) {
	v, err := NewVerifier(AlgorithmNone, "", "")
	require.NoError(t, err)
	v.Update([]byte("anything"))
	assert.True(t, v.Validate())
}

func TestNewVerifierEmptyAlgorithmIsNone(t *testing.T) {
	v, err := NewVerifier("", "", "")
	require.NoError(t, err)
	assert.True(t, v.Validate())
}

func TestNewVerifierUnsupportedAlgorithm(t *testing.T) {
	_, err := NewVerifier("rot13", "key", "sig")
	require.Error(t, err)
	var unsupported *UnsupportedAlgorithmError
	assert.ErrorAs(t, err, &unsupported)
}

func TestNewVerifierSigstoreRejectsPubKeyShape(t *testing.T) {
	_, err := NewVerifier(AlgorithmSigstore, "pub", "sig")
	require.Error(t, err)
}

func TestNewOCIVerifierForRequiresReference(t *testing.T) {
	_, err := NewOCIVerifierFor(OCIRef{})
	require.Error(t, err)
}
