package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	require.Equal(t, want, h.Hash([]byte("hello world")))
	require.Equal(t, h.Hash([]byte("hello world")), h.Hash([]byte("hello world")))
}

func TestHasherETagIsQuoted(t *testing.T) {
	t.Parallel()

	h := New()
	tag := h.ETag([]byte(`{"title":"Portal 2"}`))
	require.Len(t, tag, 66)
	require.Equal(t, byte('"'), tag[0])
	require.Equal(t, byte('"'), tag[len(tag)-1])
	require.NotEqual(t, tag, h.ETag([]byte(`{"title":"Portal"}`)))
}
