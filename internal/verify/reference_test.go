package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceResolverResolve(t *testing.T) {
	r, err := NewReferenceResolver("fetchbin.example.org=ghcr.io/fetchbin-registry")
	require.NoError(t, err)

	ref, err := r.Resolve("fetchbin.example.org/widget@v1", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/fetchbin-registry/fetchbin.example.org/widget:1.2.3", ref)
}

func TestReferenceResolverUnresolvableModule(t *testing.T) {
	r, err := NewReferenceResolver("fetchbin.example.org=ghcr.io/fetchbin-registry")
	require.NoError(t, err)

	_, err = r.Resolve("other.example.org/widget@v1", "1.0.0")
	require.Error(t, err)
}

func TestNewReferenceResolverInvalidConfig(t *testing.T) {
	_, err := NewReferenceResolver("not a valid registry config===")
	require.Error(t, err)
}
