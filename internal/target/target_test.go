package target

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

func TestArchName(t *testing.T) {
	assert.Equal(t, "x86_64", archName("amd64"))
	assert.Equal(t, "aarch64", archName("arm64"))
	assert.Equal(t, "i686", archName("386"))
}

func TestVendorFor(t *testing.T) {
	assert.Equal(t, "apple", vendorFor("darwin"))
	assert.Equal(t, "pc", vendorFor("windows"))
	assert.Equal(t, "unknown", vendorFor("linux"))
}

func TestDetectWindowsAddsMSVCFirst(t *testing.T) {
	base := pkgdata.TargetTriple{Arch: "x86_64", Vendor: "pc", OS: "windows"}
	got := detectWindows(base)
	assert.Equal(t, "msvc", got[0].Env)
	assert.Equal(t, "gnu", got[1].Env)
}

func TestParseCompilerTripleEmpty(t *testing.T) {
	_, ok := parseCompilerTriple("")
	assert.False(t, ok)
}

func TestParseCompilerTripleWithEnv(t *testing.T) {
	got, ok := parseCompilerTriple("x86_64-unknown-linux-gnu")
	assert.True(t, ok)
	assert.Equal(t, pkgdata.TargetTriple{Arch: "x86_64", Vendor: "unknown", OS: "linux", Env: "gnu"}, got)
}

func TestParseCompilerTripleWithoutEnv(t *testing.T) {
	got, ok := parseCompilerTriple("aarch64-apple-darwin")
	assert.True(t, ok)
	assert.Equal(t, pkgdata.TargetTriple{Arch: "aarch64", Vendor: "apple", OS: "darwin"}, got)
}

func TestParseCompilerTripleTooShort(t *testing.T) {
	_, ok := parseCompilerTriple("onlytwo-parts")
	assert.False(t, ok)
}

func TestHostTripleFromCompilerMissingBinary(t *testing.T) {
	// No assumption about whether a Rust toolchain is installed in the
	// test environment: either it's absent (empty result) or present and
	// actually reports a host line, both acceptable. What must never
	// happen is a panic or hang.
	got := hostTripleFromCompiler(t.Context())
	_ = got
}

func TestDetectDarwinAddsUniversalTriples(t *testing.T) {
	base := pkgdata.TargetTriple{Arch: "x86_64", Vendor: "apple", OS: "darwin"}
	got := detectDarwin(t.Context(), base)
	var sawUniversal, sawUniversal2 bool
	for _, tt := range got {
		if tt.Arch == "universal" {
			sawUniversal = true
		}
		if tt.Arch == "universal2" {
			sawUniversal2 = true
		}
	}
	assert.True(t, sawUniversal)
	assert.True(t, sawUniversal2)
}
