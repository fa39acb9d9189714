package content

import (
	"io"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentEquality(t *testing.T) {
	t.Parallel()

	a := New([]byte("hello"))
	b := FromString("hello")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a, b)
	assert.False(t, a.Equal(FromString("world")))
}

func TestContentAbsentDiffersFromEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, None.IsAbsent())
	assert.False(t, FromString("").IsAbsent())
	assert.False(t, None.Equal(FromString("")))
	assert.Nil(t, None.Bytes())
	assert.NotNil(t, FromString("").Bytes())
}

func TestContentIsImmutable(t *testing.T) {
	t.Parallel()

	buf := []byte("abc")
	c := New(buf)
	buf[0] = 'x'
	assert.Equal(t, "abc", c.String())

	out := c.Bytes()
	out[1] = 'y'
	assert.Equal(t, "abc", c.String())
}

func TestContentReader(t *testing.T) {
	t.Parallel()

	got, err := io.ReadAll(FromString("payload").Reader())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.Equal(t, 7, FromString("payload").Len())
}

func TestContentDigest(t *testing.T) {
	t.Parallel()

	c := FromString("hello")
	assert.Equal(t, digest.FromString("hello"), c.Digest())
	require.NoError(t, c.Digest().Validate())
	assert.Equal(t, digest.Digest(""), None.Digest())
}
