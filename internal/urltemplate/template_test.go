package urltemplate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBasic(t *testing.T) {
	tpl, err := Parse("{ repo }/releases/download/{version}/rg-{ version }-{target}.tar.gz")
	require.NoError(t, err)
	out, err := tpl.Render(MapValues{
		"repo":    "https://github.com/BurntSushi/ripgrep",
		"version": "13.0.0",
		"target":  "x86_64-unknown-linux-gnu",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/BurntSushi/ripgrep/releases/download/13.0.0/rg-13.0.0-x86_64-unknown-linux-gnu.tar.gz", out)
}

func TestRenderEscapes(t *testing.T) {
	tpl, err := Parse(`\{literal\} and \\ backslash`)
	require.NoError(t, err)
	out, err := tpl.Render(MapValues{})
	require.NoError(t, err)
	assert.Equal(t, `{literal} and \ backslash`, out)
}

func TestRenderMissingKey(t *testing.T) {
	tpl, err := Parse("{name}")
	require.NoError(t, err)
	_, err = tpl.Render(MapValues{})
	var mk *MissingKeyError
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, "name", mk.Key)
}

func TestRenderDefault(t *testing.T) {
	tpl, err := Parse("{name}.{ext}")
	require.NoError(t, err)
	tpl.WithDefault("tar.gz")
	out, err := tpl.Render(MapValues{"name": "rg"})
	require.NoError(t, err)
	assert.Equal(t, "rg.tar.gz", out)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]ErrorKind{
		"{unterminated":    ErrUnbalanced,
		"closing}":         ErrUnbalanced,
		"{}":                ErrKeyEmpty,
		"{   }":             ErrKeyEmpty,
		`{na\me}`:            ErrKeyEscape,
		`bad\escape`:         ErrEscape,
	}
	for in, wantKind := range cases {
		_, err := Parse(in)
		require.Error(t, err, "input: %q", in)
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, wantKind, pe.Kind, "input: %q", in)
		assert.NotEmpty(t, pe.Source[pe.Offset:pe.Offset+pe.Len])
	}
}

func TestRenderRoundTrip(t *testing.T) {
	// Property 3: render(parse(s), values) == substitute(s, values) for
	// templates without escapes.
	s := "{ a }-{b}-{ c}"
	values := MapValues{"a": "1", "b": "2", "c": "3"}
	tpl, err := Parse(s)
	require.NoError(t, err)
	out, err := tpl.Render(values)
	require.NoError(t, err)
	assert.Equal(t, "1-2-3", out)
}

func TestKeys(t *testing.T) {
	tpl, err := Parse("{a}/{b}/{a}")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tpl.Keys())
}
