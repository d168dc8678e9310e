package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...ConfigOption) *Server {
	t.Helper()
	base := []ConfigOption{
		WithDataDir(t.TempDir()),
	}
	cfg := NewConfig(append(base, opts...)...)
	srv, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	return srv
}

func TestSmallObjectPutThenGet(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := []byte("hello gateway")
	req := httptest.NewRequest(http.MethodPut, "/obj", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/obj", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, body, getW.Body.Bytes())
	require.Equal(t, "True/via memory", getW.Header().Get("X-From-Cache"))
}

func TestLargeObjectPutThenGet(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ThresholdObjLen = 10
		cfg.ChunkedObjLen = 4
		cfg.MaxLenForObj = 1 << 30
	})
	handler := srv.Handler()

	body := bytes.Repeat([]byte("A"), 40)
	req := httptest.NewRequest(http.MethodPut, "/big", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	wantETag := fmt.Sprintf("%x", md5.Sum(body))
	require.Equal(t, wantETag, w.Header().Get("ETag"))

	getReq := httptest.NewRequest(http.MethodGet, "/big", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, body, getW.Body.Bytes())
}

func TestRangedGetOnLargeObject(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ThresholdObjLen = 10
		cfg.ChunkedObjLen = 4
		cfg.MaxLenForObj = 1 << 30
	})
	handler := srv.Handler()

	body := []byte("0123456789ABCDEFGHIJ")
	req := httptest.NewRequest(http.MethodPut, "/ranged", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/ranged", nil)
	getReq.Header.Set("Range", "bytes=5-9")
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, "56789", getW.Body.String())
}

func TestRangedGetSingleByteNotConfusedWithOpenEnded(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ThresholdObjLen = 10
		cfg.ChunkedObjLen = 4
		cfg.MaxLenForObj = 1 << 30
	})
	handler := srv.Handler()

	body := []byte("0123456789ABCDEFGHIJ")
	req := httptest.NewRequest(http.MethodPut, "/zerobyte", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/zerobyte", nil)
	getReq.Header.Set("Range", "bytes=0-0")
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, "0", getW.Body.String())
}

func TestRangedGetOnSmallObject(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := []byte("0123456789ABCDEFGHIJ")
	req := httptest.NewRequest(http.MethodPut, "/smallranged", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/smallranged", nil)
	getReq.Header.Set("Range", "bytes=5-9")
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, "56789", getW.Body.String())
}

func TestContentLengthSetOnSmallObjectGet(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := []byte("hello gateway")
	putReq := httptest.NewRequest(http.MethodPut, "/clsmall", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	// The internal-mode PUT already cached the object, so both GETs are
	// memory-cache hits. Both must carry an accurate Content-Length.
	for i := 0; i < 2; i++ {
		getReq := httptest.NewRequest(http.MethodGet, "/clsmall", nil)
		getW := httptest.NewRecorder()
		handler.ServeHTTP(getW, getReq)
		require.Equal(t, http.StatusOK, getW.Code)
		require.Equal(t, fmt.Sprintf("%d", len(body)), getW.Header().Get("Content-Length"))
	}
}

func TestContentLengthSetOnLargeObjectGet(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ThresholdObjLen = 10
		cfg.ChunkedObjLen = 4
		cfg.MaxLenForObj = 1 << 30
	})
	handler := srv.Handler()

	body := bytes.Repeat([]byte("A"), 40)
	putReq := httptest.NewRequest(http.MethodPut, "/cllarge", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	getReq := httptest.NewRequest(http.MethodGet, "/cllarge", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, fmt.Sprintf("%d", len(body)), getW.Header().Get("Content-Length"))
}

func TestContentLengthSetOnInterceptorModeOrigin(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.CacheMethod = "interceptor"
		cfg.CacheMaxContentLen = 1024
	})
	handler := srv.Handler()

	body := []byte("interceptor content length")
	putReq := httptest.NewRequest(http.MethodPut, "/clicept", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	getReq := httptest.NewRequest(http.MethodGet, "/clicept", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, fmt.Sprintf("%d", len(body)), getW.Header().Get("Content-Length"))
}

func TestDeleteThenGetNotFound(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := []byte("x")
	putReq := httptest.NewRequest(http.MethodPut, "/doomed", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	delReq := httptest.NewRequest(http.MethodDelete, "/doomed", nil)
	delW := httptest.NewRecorder()
	handler.ServeHTTP(delW, delReq)
	require.Equal(t, http.StatusNoContent, delW.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/doomed", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusNotFound, getW.Code)
}

func TestInterceptorModeCachesSecondGet(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.CacheMethod = "interceptor"
		cfg.CacheMaxContentLen = 1024
	})
	handler := srv.Handler()

	body := []byte("interceptor body")
	putReq := httptest.NewRequest(http.MethodPut, "/icept", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	// The PUT must not have pre-populated the cache (interceptor mode
	// populates only via onResponse), so the first GET is an origin miss:
	// no Age header, because WriteCacheHeaders is only reached once
	// onResponse decides to cache the response.
	getReq1 := httptest.NewRequest(http.MethodGet, "/icept", nil)
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, getReq1)
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, body, w1.Body.Bytes())
	require.Empty(t, w1.Header().Get("Age"), "first GET must be an origin miss, not pre-cached by the PUT")

	// The second GET is served from the cache onResponse just populated.
	getReq2 := httptest.NewRequest(http.MethodGet, "/icept", nil)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, getReq2)
	require.Equal(t, http.StatusOK, w2.Code)
	require.Equal(t, body, w2.Body.Bytes())
	require.NotEmpty(t, w2.Header().Get("Age"))
}

func TestInterceptorModeIfModifiedSinceReturns304(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.CacheMethod = "interceptor"
		cfg.CacheMaxContentLen = 1024
	})
	handler := srv.Handler()

	body := []byte("interceptor body")
	putReq := httptest.NewRequest(http.MethodPut, "/icept304", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	// Prime the cache.
	getReq1 := httptest.NewRequest(http.MethodGet, "/icept304", nil)
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, getReq1)
	require.Equal(t, http.StatusOK, w1.Code)

	lastModified := w1.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	getReq2 := httptest.NewRequest(http.MethodGet, "/icept304", nil)
	getReq2.Header.Set("If-Modified-Since", lastModified)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, getReq2)
	require.Equal(t, http.StatusNotModified, w2.Code)
	require.Empty(t, w2.Body.Bytes())
}

func TestInterceptorModeRejectsNonMatchingPathPattern(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.CacheMethod = "interceptor"
		cfg.CacheMaxContentLen = 1024
		cfg.CachablePathPatterns = []string{`^/img/`}
	})
	handler := srv.Handler()

	body := []byte("not an image path")
	putReq := httptest.NewRequest(http.MethodPut, "/docs/readme", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	// Neither GET should ever be cached, since the key never matches the
	// configured cachable_path_pattern.
	for i := 0; i < 2; i++ {
		getReq := httptest.NewRequest(http.MethodGet, "/docs/readme", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, getReq)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, body, w.Body.Bytes())
		require.Empty(t, w.Header().Get("Age"))
	}
}

func TestInterceptorModeRangedGetBypassesCache(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.CacheMethod = "interceptor"
		cfg.CacheMaxContentLen = 1024
		cfg.ThresholdObjLen = 10
		cfg.ChunkedObjLen = 4
		cfg.MaxLenForObj = 1 << 30
	})
	handler := srv.Handler()

	body := []byte("0123456789ABCDEFGHIJ")
	putReq := httptest.NewRequest(http.MethodPut, "/icranged", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	handler.ServeHTTP(httptest.NewRecorder(), putReq)

	rangedReq := httptest.NewRequest(http.MethodGet, "/icranged", nil)
	rangedReq.Header.Set("Range", "bytes=5-9")
	rangedW := httptest.NewRecorder()
	handler.ServeHTTP(rangedW, rangedReq)
	require.Equal(t, http.StatusOK, rangedW.Code)
	require.Equal(t, "56789", rangedW.Body.String())

	// The ranged response must not have poisoned the cache under the full
	// object's key: a subsequent full GET must still return the whole body.
	fullReq := httptest.NewRequest(http.MethodGet, "/icranged", nil)
	fullW := httptest.NewRecorder()
	handler.ServeHTTP(fullW, fullReq)
	require.Equal(t, http.StatusOK, fullW.Code)
	require.Equal(t, body, fullW.Body.Bytes())
}

func TestServerHeaderAlwaysSet(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	getReq := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.NotEmpty(t, getW.Header().Get("Server"))
}

func TestKeyContainingSeparatorBypassesCache(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body := []byte("x")
	putReq := httptest.NewRequest(http.MethodPut, "/weird%0Akey", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	putW := httptest.NewRecorder()
	handler.ServeHTTP(putW, putReq)
	require.Equal(t, http.StatusOK, putW.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/weird%0Akey", nil)
	getW := httptest.NewRecorder()
	handler.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, body, getW.Body.Bytes())
	require.Empty(t, getW.Header().Get("X-From-Cache"))
}
