// Package upload implements LargeUploadSession, the handle a PUT handler
// uses to stream a large object into the storage cluster one chunk at a
// time, tracking a rolling digest and rolling back on failure.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/chunkkey"
	"github.com/objectgw/gateway/internal/digest"
	"github.com/objectgw/gateway/internal/gwerr"
	"github.com/objectgw/gateway/internal/rpc"
)

// ChunkError pairs a failed chunk's 1-based index with the cause.
type ChunkError struct {
	Index int
	Cause error
}

// Session drives a single large-object upload. It is owned exclusively by
// the request handler that created it and must never be shared across
// goroutines.
type Session struct {
	parentKey string
	storage   rpc.StorageRpc
	cache     cachestore.CacheStore

	digest *digest.Rolling
	errors []ChunkError
}

// Open starts a new upload session for parentKey.
func Open(storage rpc.StorageRpc, cache cachestore.CacheStore, parentKey string) *Session {
	return &Session{
		parentKey: parentKey,
		storage:   storage,
		cache:     cache,
		digest:    digest.New(),
	}
}

// PutChunk stores the chunk at the given 1-based index. On success it
// advances the rolling digest with body, in order, and best-effort
// populates the cache; on failure it records (index, cause) and returns the
// cause without advancing the digest. Advancing the digest only on success
// is what makes the final ETag reproduce MD5(concat of committed bytes).
func (s *Session) PutChunk(ctx context.Context, index int, body []byte) error {
	key := chunkkey.MakeString(s.parentKey, index)

	_, err := s.storage.Put(ctx, key, body, int64(len(body)), rpc.PutOptions{ChunkIndex: index})
	if err != nil {
		s.errors = append(s.errors, ChunkError{Index: index, Cause: err})
		return err
	}

	s.digest.Update(body)

	// The cached entry's ETag is the rolling digest state after this chunk,
	// not a hash of the chunk body alone.
	state := s.digest.Sum()
	_ = s.cache.Put(key, cachestore.CachedEntry{
		MTime:       time.Now(),
		ETag:        state[:],
		Body:        body,
		Size:        int64(len(body)),
		ContentType: "application/octet-stream",
	})

	return nil
}

// Commit returns the session's final digest if every chunk succeeded, or an
// aggregated error describing every chunk failure otherwise. Commit does
// not itself write the manifest record.
func (s *Session) Commit() ([16]byte, error) {
	if len(s.errors) > 0 {
		return [16]byte{}, s.aggregateErrors()
	}
	return s.digest.Sum(), nil
}

func (s *Session) aggregateErrors() error {
	msg := fmt.Sprintf("%d chunk(s) failed: ", len(s.errors))
	for i, ce := range s.errors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("chunk %d: %v", ce.Index, ce.Cause)
	}
	return gwerr.RolledBack("upload.Session.Commit", errors.New(msg))
}

// Rollback deletes chunk keys totalChunks, totalChunks-1, …, 1 from both the
// cache and the storage cluster, best-effort (errors are logged, iteration
// continues regardless), then clears the session's accumulated errors.
func (s *Session) Rollback(ctx context.Context, totalChunks int) {
	for i := totalChunks; i >= 1; i-- {
		key := chunkkey.MakeString(s.parentKey, i)
		if err := s.cache.Delete(key); err != nil {
			slog.Warn("rollback: cache delete failed", "parent", s.parentKey, "chunk", i, "error", err)
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			slog.Warn("rollback: storage delete failed", "parent", s.parentKey, "chunk", i, "error", err)
		}
	}
	s.errors = nil
}

// Errors returns the chunk failures accumulated so far.
func (s *Session) Errors() []ChunkError {
	return s.errors
}
