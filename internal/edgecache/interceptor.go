package edgecache

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/digest"
)

// KeyFunc derives a cache key from an inbound request. The dispatcher
// supplies its own (typically the request path).
type KeyFunc func(r *http.Request) string

// OnRequest is the interceptor-mode pre-handler hook. For GET requests it
// consults the cache and, on a fresh hit, writes the response itself and
// reports handled=true so the caller must not invoke the normal handler.
// Ranged requests always pass through to the origin: the cache stores only
// full bodies, and serving one under a Range header would silently ignore
// the requested span.
func (c *Cache) OnRequest(w http.ResponseWriter, r *http.Request, keyFn KeyFunc) (handled bool) {
	if r.Method != http.MethodGet || r.Header.Get("Range") != "" {
		return false
	}

	key := keyFn(r)
	entry, ok, _ := c.Store.Get(key)
	if !ok {
		return false
	}

	age := time.Since(entry.MTime)
	if age > c.Policy.Expire {
		_ = c.Store.Delete(key)
		return false
	}

	w.Header().Set("ETag", entry.ETagHex())
	WriteCacheHeaders(w, entry, c.Policy.Expire)

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && t.Unix() == entry.MTime.Unix() {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Body)
	return true
}

// recordingWriter captures a handler's response so onResponse can inspect
// it before deciding whether to cache it and before the real bytes reach
// the client.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	header http.Header
}

func newRecordingWriter(w http.ResponseWriter) *recordingWriter {
	return &recordingWriter{ResponseWriter: w, header: make(http.Header)}
}

func (rw *recordingWriter) Header() http.Header {
	return rw.header
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.status = status
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.body.Write(b)
}

// Wrap adapts handler into one that runs OnRequest before it and OnResponse
// after it, implementing the full interceptor-mode request lifecycle.
func (c *Cache) Wrap(handler http.Handler, keyFn KeyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.OnRequest(w, r, keyFn) {
			return
		}

		rec := newRecordingWriter(w)
		handler.ServeHTTP(rec, r)

		c.onResponse(rec, w, r, keyFn)
	})
}

// onResponse applies the three cachability predicates to a completed
// handler response and either commits it to the cache (rewriting headers)
// or lets it flow through unchanged. A ranged request's partial body is
// never cached under the full object's key — doing so would poison later
// full GETs with a truncated body.
func (c *Cache) onResponse(rec *recordingWriter, w http.ResponseWriter, r *http.Request, keyFn KeyFunc) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}

	if r.Method != http.MethodGet || status != http.StatusOK || r.Header.Get("Range") != "" {
		flushThrough(w, rec)
		return
	}

	noCacheControlHeader := rec.header.Get("Cache-Control") == "" && r.Header.Get("Cache-Control") == ""
	body := rec.body.Bytes()
	key := keyFn(r)
	contentType := rec.header.Get("Content-Type")

	if noCacheControlHeader && c.Policy.Cacheable(key, contentType, len(body)) {
		sum := digest.Sum(body)
		entry := cachestore.CachedEntry{
			MTime:       time.Now(),
			ETag:        sum[:],
			ContentType: contentType,
			Body:        body,
			Size:        int64(len(body)),
		}

		_ = c.Store.Put(key, entry)

		copyHeaders(w.Header(), rec.header)
		w.Header().Set("Last-Modified", entry.MTime.UTC().Format(http.TimeFormat))
		w.Header().Set("Cache-Control", "max-age="+formatSeconds(c.Policy.Expire))
		w.Header().Set("ETag", entry.ETagHex())
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	flushThrough(w, rec)
}

func flushThrough(w http.ResponseWriter, rec *recordingWriter) {
	copyHeaders(w.Header(), rec.header)
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.Copy(w, &rec.body)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
