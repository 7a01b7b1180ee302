package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexPath(t *testing.T) {
	cases := map[string]string{
		"a":     "1/a",
		"ab":    "2/ab",
		"abc":   "3/a/abc",
		"abcd":  "ab/cd/abcd",
		"Ripgrep": "ri/pg/ripgrep",
	}
	for name, want := range cases {
		assert.Equal(t, want, indexPath(name), "indexPath(%q)", name)
	}
}

func TestParseIndex(t *testing.T) {
	raw := `{"name":"ripgrep","vers":"13.0.0","yanked":false,"cksum":"deadbeef"}
{"name":"ripgrep","vers":"14.0.0","yanked":true,"cksum":"beadfeed"}
`
	entries, err := parseIndex(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "13.0.0", entries[0].Vers)
	assert.True(t, entries[1].Yanked)
}

func TestSelectVersionSkipsYanked(t *testing.T) {
	entries := []indexEntry{
		{Name: "ripgrep", Vers: "13.0.0"},
		{Name: "ripgrep", Vers: "14.0.0", Yanked: true},
		{Name: "ripgrep", Vers: "12.0.0"},
	}
	best, err := selectVersion("ripgrep", entries, "")
	require.NoError(t, err)
	assert.Equal(t, "13.0.0", best.Vers)
}

func TestSelectVersionHonorsRequirement(t *testing.T) {
	entries := []indexEntry{
		{Name: "ripgrep", Vers: "13.0.0"},
		{Name: "ripgrep", Vers: "12.1.1"},
	}
	best, err := selectVersion("ripgrep", entries, "^12.0.0")
	require.NoError(t, err)
	assert.Equal(t, "12.1.1", best.Vers)
}

func TestSelectVersionNoMatch(t *testing.T) {
	entries := []indexEntry{{Name: "ripgrep", Vers: "1.0.0"}}
	_, err := selectVersion("ripgrep", entries, "^2.0.0")
	assert.Error(t, err)
}
