package memstore

import (
	"testing"
	"time"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	s := New()

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	entry := cachestore.CachedEntry{
		MTime:       time.Now(),
		Body:        []byte("hello"),
		Size:        5,
		ContentType: "text/plain",
	}
	require.NoError(t, s.Put("k", entry))

	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Body, got.Body)
	require.Empty(t, got.FilePath)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}
