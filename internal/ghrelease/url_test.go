package ghrelease

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAssetURL(t *testing.T) {
	ref, ok := ParseAssetURL("https://github.com/BurntSushi/ripgrep/releases/download/13.0.0/ripgrep-13.0.0-x86_64-unknown-linux-gnu.tar.gz")
	assert.True(t, ok)
	assert.Equal(t, AssetRef{
		Owner: "BurntSushi",
		Repo:  "ripgrep",
		Tag:   "13.0.0",
		Name:  "ripgrep-13.0.0-x86_64-unknown-linux-gnu.tar.gz",
	}, ref)

	_, ok = ParseAssetURL("https://example.com/not/a/release/asset")
	assert.False(t, ok)
}
