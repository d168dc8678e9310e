package edgecache

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/chunkkey"
	"github.com/objectgw/gateway/internal/rpc"
	"github.com/objectgw/gateway/internal/stream"
)

// GetResult tells the internal-mode GET handler which of the three §4.7
// outcomes occurred, so the dispatcher can apply the corresponding headers.
type GetResult int

const (
	// ResultCacheHitMemory means the cached body was served inline from
	// memory.
	ResultCacheHitMemory GetResult = iota
	// ResultCacheHitDisk means the cached body was served via a
	// zero-copy file send.
	ResultCacheHitDisk
	// ResultFreshLeaf means the storage cluster held a newer leaf object,
	// which was re-cached.
	ResultFreshLeaf
	// ResultFreshLarge means the storage cluster held a newer multi-chunk
	// object, streamed directly (large objects bypass the inline cache).
	ResultFreshLarge
)

// ServeGet implements the internal-mode GET handler: consult the cache
// first, fall back to the storage cluster, and re-populate the cache for
// leaf objects only. Large objects are handed off to the read streamer and
// never stored inline.
func (c *Cache) ServeGet(ctx context.Context, w http.ResponseWriter, r *http.Request, key string, storage rpc.StorageRpc) (GetResult, error) {
	if entry, ok, _ := c.Store.Get(key); ok {
		meta, body, match, err := storage.GetWithETagHint(ctx, key, entry.ETag)
		if err == nil && match {
			w.Header().Set("ETag", entry.ETagHex())
			if entry.FilePath != "" {
				w.Header().Set("X-From-Cache", "True/via disk")
				f, openErr := os.Open(entry.FilePath)
				if openErr != nil {
					return ResultCacheHitDisk, openErr
				}
				defer f.Close()
				http.ServeContent(w, r, "", entry.MTime, f)
				return ResultCacheHitDisk, nil
			}

			w.Header().Set("X-From-Cache", "True/via memory")
			w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
			w.WriteHeader(http.StatusOK)
			_, werr := w.Write(entry.Body)
			return ResultCacheHitMemory, werr
		}

		if err != nil {
			return 0, err
		}

		return c.serveFresh(ctx, w, key, meta, body, storage)
	}

	meta, err := storage.Head(ctx, key)
	if err != nil {
		return 0, err
	}

	_, body, err := storage.Get(ctx, key)
	if err != nil {
		return 0, err
	}

	return c.serveFresh(ctx, w, key, meta, body, storage)
}

func (c *Cache) serveFresh(ctx context.Context, w http.ResponseWriter, key string, meta rpc.ObjectMetadata, body []byte, storage rpc.StorageRpc) (GetResult, error) {
	if meta.CNumber > 0 {
		w.Header().Set("ETag", meta.ETagHex())
		w.Header().Set("Content-Length", strconv.FormatInt(meta.DSize, 10))
		w.WriteHeader(http.StatusOK)
		s := stream.New(storage, c.Store)
		return ResultFreshLarge, s.StreamAll(ctx, key, meta.CNumber, w)
	}

	entry := cachestore.CachedEntry{
		MTime:       meta.Timestamp,
		ETag:        meta.Checksum,
		ContentType: "application/octet-stream",
		Body:        body,
		Size:        int64(len(body)),
	}
	if !chunkkey.ContainsSeparatorString(key) {
		_ = c.Store.Put(key, entry)
	}

	w.Header().Set("ETag", entry.ETagHex())
	w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return ResultFreshLeaf, err
}
