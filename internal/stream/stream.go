// Package stream implements LargeReadStreamer, which reconstructs a logical
// object from its chunk tree and writes bytes to an io.Writer in order.
package stream

import (
	"context"
	"io"
	"math"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/chunkkey"
	"github.com/objectgw/gateway/internal/rpc"
)

// OpenEnded is the sentinel passed as end to NormalizeRange to mean "no end
// was given on the wire" (e.g. "bytes=5-"), distinct from a literal request
// for byte offset 0.
const OpenEnded int64 = math.MaxInt64

// Streamer reconstructs large objects from their chunk tree. It is
// ephemeral: construct one per response and discard it.
type Streamer struct {
	storage rpc.StorageRpc
	cache   cachestore.CacheStore
}

// New returns a Streamer backed by storage and cache.
func New(storage rpc.StorageRpc, cache cachestore.CacheStore) *Streamer {
	return &Streamer{storage: storage, cache: cache}
}

// StreamAll writes the full body of parent, which has total direct
// children, to w in ascending chunk order. Nested manifests are recursed
// into automatically.
func (s *Streamer) StreamAll(ctx context.Context, parent string, total int, w io.Writer) error {
	for i := 1; i <= total; i++ {
		ck := chunkkey.MakeString(parent, i)

		if entry, ok, _ := s.cache.Get(ck); ok {
			if _, err := w.Write(entry.Body); err != nil {
				return err
			}
			continue
		}

		meta, err := s.storage.Head(ctx, ck)
		if err != nil {
			return err
		}

		if meta.CNumber > 0 {
			if err := s.StreamAll(ctx, ck, meta.CNumber, w); err != nil {
				return err
			}
			continue
		}

		_, body, err := s.storage.Get(ctx, ck)
		if err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			return err
		}
	}

	return nil
}

// StreamRange writes the inclusive logical byte range [start, end] of
// parent's reconstructed body to w. start and end are taken literally;
// callers resolve OpenEnded and suffix (end < 0) wire values against
// objectSize before calling StreamRange (see NormalizeRange).
func (s *Streamer) StreamRange(ctx context.Context, parent string, total int, start, end int64, w io.Writer) error {
	_, err := s.streamRangeFrom(ctx, parent, total, start, end, 0, w)
	return err
}

// streamRangeFrom streams the overlap of [start, end] with parent's
// children, given that parent's first child begins at logical offset
// curPos in the overall object. It returns the logical offset immediately
// past parent's last child.
func (s *Streamer) streamRangeFrom(ctx context.Context, parent string, total int, start, end, curPos int64, w io.Writer) (int64, error) {
	for i := 1; i <= total; i++ {
		if curPos > end {
			break
		}

		ck := chunkkey.MakeString(parent, i)
		meta, err := s.storage.Head(ctx, ck)
		if err != nil {
			return curPos, err
		}

		if meta.CNumber > 0 {
			next, err := s.streamRangeFrom(ctx, ck, meta.CNumber, start, end, curPos, w)
			if err != nil {
				return curPos, err
			}
			curPos = next
			continue
		}

		cs := meta.DSize
		childEnd := curPos + cs - 1

		switch {
		case childEnd < start:
			// entirely before the requested range
		case curPos >= start && childEnd <= end:
			_, body, err := s.storage.Get(ctx, ck)
			if err != nil {
				return curPos, err
			}
			if _, err := w.Write(body); err != nil {
				return curPos, err
			}
		default:
			startPos := max64(0, start-curPos)
			endPos := min64(cs-1, end-curPos)
			if startPos <= endPos {
				_, body, err := s.storage.GetRange(ctx, ck, startPos, endPos)
				if err != nil {
					return curPos, err
				}
				if _, err := w.Write(body); err != nil {
					return curPos, err
				}
			}
		}

		curPos += cs
	}

	return curPos, nil
}

// NormalizeRange resolves the wire range values (start, end) against
// objectSize per the convention: end == OpenEnded means "through the last
// byte" (no end was given on the wire); end < 0 means a suffix request of
// length |end|; any other end is taken literally.
func NormalizeRange(start, end, objectSize int64) (int64, int64) {
	if end == OpenEnded {
		return start, objectSize - 1
	}
	if end < 0 {
		suffixLen := -end
		return objectSize - suffixLen, objectSize - 1
	}
	return start, end
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
