package stream

import (
	"bytes"
	"context"
	"testing"

	"github.com/objectgw/gateway/internal/cachestore/memstore"
	"github.com/objectgw/gateway/internal/chunkkey"
	"github.com/objectgw/gateway/internal/rpc"
	"github.com/objectgw/gateway/internal/rpc/localrpc"
	"github.com/stretchr/testify/require"
)

func putManifest(t *testing.T, store rpc.StorageRpc, ctx context.Context, parent string, chunks [][]byte) {
	t.Helper()
	for i, c := range chunks {
		_, err := store.Put(ctx, chunkkey.MakeString(parent, i+1), c, int64(len(c)), rpc.PutOptions{ChunkIndex: i + 1})
		require.NoError(t, err)
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	_, err := store.Put(ctx, parent, nil, int64(total), rpc.PutOptions{
		Manifest:    true,
		TotalChunks: len(chunks),
		Digest:      []byte{0xAB},
	})
	require.NoError(t, err)
}

func TestStreamAllReassemblesInOrder(t *testing.T) {
	ctx := context.Background()
	store, err := localrpc.New(t.TempDir())
	require.NoError(t, err)
	cache := memstore.New()

	chunks := [][]byte{[]byte("AAAA"), []byte("BBBB"), []byte("CCCC")}
	putManifest(t, store, ctx, "parent", chunks)

	var buf bytes.Buffer
	s := New(store, cache)
	require.NoError(t, s.StreamAll(ctx, "parent", len(chunks), &buf))
	require.Equal(t, "AAAABBBBCCCC", buf.String())
}

func TestStreamRangePartialOverlap(t *testing.T) {
	ctx := context.Background()
	store, err := localrpc.New(t.TempDir())
	require.NoError(t, err)
	cache := memstore.New()

	chunks := [][]byte{[]byte("01234"), []byte("56789"), []byte("ABCDE")}
	putManifest(t, store, ctx, "parent", chunks)

	var buf bytes.Buffer
	s := New(store, cache)
	// inclusive range [4, 11] over "01234"+"56789"+"ABCDE" is "456789AB"
	require.NoError(t, s.StreamRange(ctx, "parent", len(chunks), 4, 11, &buf))
	require.Equal(t, "456789AB", buf.String())
}

func TestStreamRangeStopsEarly(t *testing.T) {
	ctx := context.Background()
	store, err := localrpc.New(t.TempDir())
	require.NoError(t, err)
	cache := memstore.New()

	chunks := [][]byte{[]byte("01234"), []byte("56789"), []byte("ABCDE")}
	putManifest(t, store, ctx, "parent", chunks)

	var buf bytes.Buffer
	s := New(store, cache)
	require.NoError(t, s.StreamRange(ctx, "parent", len(chunks), 0, 2, &buf))
	require.Equal(t, "012", buf.String())
}

func TestNormalizeRange(t *testing.T) {
	start, end := NormalizeRange(5, OpenEnded, 100)
	require.Equal(t, int64(5), start)
	require.Equal(t, int64(99), end)

	start, end = NormalizeRange(0, -10, 100)
	require.Equal(t, int64(90), start)
	require.Equal(t, int64(99), end)

	// a literal end of 0 (e.g. "bytes=0-0") must request exactly byte 0,
	// not be confused with the open-ended sentinel.
	start, end = NormalizeRange(0, 0, 100)
	require.Equal(t, int64(0), start)
	require.Equal(t, int64(0), end)
}
