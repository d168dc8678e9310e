package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/objectgw/gateway/internal/digest"
	"github.com/objectgw/gateway/internal/edgecache"
	"github.com/objectgw/gateway/internal/gwerr"
	"github.com/objectgw/gateway/internal/rpc"
	"github.com/objectgw/gateway/internal/stream"
	"github.com/objectgw/gateway/internal/upload"
)

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.Config.RPCTimeout)
}

// handlePut implements the small-vs-large PUT decision from the request
// dispatcher: reject oversized bodies, take the large chunked-upload path
// at or above ThresholdObjLen, otherwise buffer and store as one small
// object.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	if r.ContentLength >= s.Config.MaxLenForObj {
		writeError(w, r, gwerr.BadRequest("gateway.handlePut", nil), false)
		return
	}

	if r.ContentLength >= s.Config.ThresholdObjLen {
		s.handleLargePut(w, r, key)
		return
	}

	s.handleSmallPut(w, r, key)
}

func (s *Server) handleSmallPut(w http.ResponseWriter, r *http.Request, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, gwerr.BadRequest("gateway.handleSmallPut", err), false)
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	etag, err := s.Storage.Put(ctx, key, body, int64(len(body)), rpc.PutOptions{ChunkIndex: 0})
	if err != nil {
		writeError(w, r, err, false)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.Cache.PutSmallObject(key, body, contentType, etag)

	w.Header().Set("ETag", rpc.ObjectMetadata{Checksum: etag}.ETagHex())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLargePut(w http.ResponseWriter, r *http.Request, key string) {
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	_ = s.Cache.Store.Delete(key)

	uploadID := uuid.NewString()
	w.Header().Set("X-Upload-Id", uploadID)
	slog.Info("chunked upload started", "upload_id", uploadID, "key", key, "content_length", r.ContentLength)

	session := upload.Open(s.Storage, s.Cache.Store, key)

	chunkLen := s.Config.ChunkedObjLen
	if chunkLen <= 0 {
		chunkLen = 5 << 20
	}

	buf := make([]byte, chunkLen)
	total := 0
	received := int64(0)

	for {
		n, readErr := io.ReadFull(r.Body, buf)
		if n > 0 {
			total++
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if putErr := session.PutChunk(ctx, total, chunk); putErr != nil {
				session.Rollback(ctx, total)
				writeError(w, r, gwerr.Internal("gateway.handleLargePut", putErr), false)
				return
			}
			received += int64(n)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			session.Rollback(ctx, total)
			writeError(w, r, gwerr.Internal("gateway.handleLargePut", readErr), false)
			return
		}
	}

	sum, err := session.Commit()
	if err != nil {
		session.Rollback(ctx, total)
		slog.Warn("chunked upload rolled back", "upload_id", uploadID, "key", key, "chunks", total)
		writeError(w, r, err, false)
		return
	}

	if received != r.ContentLength {
		session.Rollback(ctx, total)
		writeError(w, r, gwerr.Internal("gateway.handleLargePut", nil), false)
		return
	}

	_, err = s.Storage.Put(ctx, key, nil, received, rpc.PutOptions{
		Manifest:    true,
		ChunkIndex:  int(chunkLen),
		TotalChunks: total,
		Digest:      sum[:],
	})
	if err != nil {
		session.Rollback(ctx, total)
		slog.Warn("chunked upload rolled back", "upload_id", uploadID, "key", key, "chunks", total)
		writeError(w, r, err, false)
		return
	}

	slog.Info("chunked upload committed", "upload_id", uploadID, "key", key, "chunks", total, "bytes", received)
	w.Header().Set("ETag", digest.ETagHex(sum))
	w.WriteHeader(http.StatusOK)
}

// handleGet implements the internal-mode inline GET path. In interceptor
// mode this handler is wrapped by edgecache.Cache.Wrap and never consults
// the cache itself — it is the "origin" the interceptor fronts.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		s.handleRangedGet(ctx, w, r, key, rangeHeader)
		return
	}

	if s.Mode == edgecache.ModeInternal {
		_, err := s.Cache.ServeGet(ctx, w, r, key, s.Storage)
		if err != nil {
			writeError(w, r, err, false)
		}
		return
	}

	s.serveOrigin(ctx, w, r, key)
}

func (s *Server) serveOrigin(ctx context.Context, w http.ResponseWriter, r *http.Request, key string) {
	meta, err := s.Storage.Head(ctx, key)
	if err != nil {
		writeError(w, r, err, false)
		return
	}

	w.Header().Set("ETag", meta.ETagHex())
	w.Header().Set("Last-Modified", meta.Timestamp.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(meta.DSize, 10))

	if meta.CNumber > 0 {
		w.WriteHeader(http.StatusOK)
		streamer := stream.New(s.Storage, s.Cache.Store)
		_ = streamer.StreamAll(ctx, key, meta.CNumber, w)
		return
	}

	_, body, err := s.Storage.Get(ctx, key)
	if err != nil {
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleRangedGet honors exactly one Range spec (multi-range requests
// collapse to their first spec), per the single-range-only decision.
func (s *Server) handleRangedGet(ctx context.Context, w http.ResponseWriter, r *http.Request, key, rangeHeader string) {
	start, end, err := parseFirstRange(rangeHeader)
	if err != nil {
		writeError(w, r, gwerr.BadRange("gateway.handleRangedGet", err), false)
		return
	}

	meta, err := s.Storage.Head(ctx, key)
	if err != nil {
		writeError(w, r, err, false)
		return
	}

	start, end = stream.NormalizeRange(start, end, meta.DSize)
	if start < 0 || end >= meta.DSize || start > end {
		writeError(w, r, gwerr.BadRange("gateway.handleRangedGet", nil), false)
		return
	}

	w.Header().Set("ETag", meta.ETagHex())

	if meta.CNumber == 0 {
		_, body, err := s.Storage.GetRange(ctx, key, start, end)
		if err != nil {
			writeError(w, r, err, false)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	w.WriteHeader(http.StatusOK)

	streamer := stream.New(s.Storage, s.Cache.Store)
	_ = streamer.StreamRange(ctx, key, meta.CNumber, start, end, w)
}

// parseFirstRange parses "bytes=start-end" (or "bytes=-suffixLen"),
// returning only the first range spec when several are comma-separated.
func parseFirstRange(header string) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, gwerr.BadRequest("parseFirstRange", nil)
	}

	spec := strings.SplitN(header[len(prefix):], ",", 2)[0]
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, gwerr.BadRequest("parseFirstRange", nil)
	}

	if parts[0] == "" {
		suffix, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil {
			return 0, 0, convErr
		}
		return 0, -suffix, nil
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}

	if parts[1] == "" {
		return start, stream.OpenEnded, nil
	}

	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	meta, err := s.Storage.Head(ctx, key)
	if err != nil {
		writeError(w, r, err, false)
		return
	}

	w.Header().Set("ETag", meta.ETagHex())
	w.Header().Set("Last-Modified", meta.Timestamp.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.FormatInt(meta.DSize, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	_ = s.Cache.Store.Delete(key)

	if err := s.Storage.Delete(ctx, key); err != nil {
		writeError(w, r, err, true)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
