package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigstoreVerifierRejectsEmptyReference(t *testing.T) {
	_, err := newSigstoreVerifier(OCIRef{})
	require.Error(t, err)
}

func TestSigstoreVerifierValidateFailsWithoutNetwork(t *testing.T) {
	v, err := newSigstoreVerifier(OCIRef{Reference: "ghcr.io/example/widget:v1.0.0"})
	require.NoError(t, err)
	v.Update([]byte("archive bytes"))
	// No registry reachable in this environment: Validate must fail
	// closed rather than panic or return true.
	assert.False(t, v.Validate())
}
