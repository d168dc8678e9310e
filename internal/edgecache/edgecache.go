// Package edgecache implements the gateway's two cache integration modes:
// internal (inline cache consult/populate inside the GET handler) and
// interceptor (on_request/on_response hooks evaluated around the handler,
// reverse-proxy style). Both modes share the same cachestore.CacheStore
// contract; they differ only in when and how they invoke it.
package edgecache

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/chunkkey"
)

// Mode selects how the cache is wired into the request path.
type Mode int

const (
	// ModeInternal consults and populates the cache from inside the GET
	// handler itself.
	ModeInternal Mode = iota
	// ModeInterceptor wraps every GET with on_request/on_response hooks,
	// independent of the handler's own logic.
	ModeInterceptor
)

// ParseMode maps the cache_method configuration value to a Mode:
// "inner" selects ModeInternal, anything else selects ModeInterceptor.
func ParseMode(cacheMethod string) Mode {
	if cacheMethod == "inner" {
		return ModeInternal
	}
	return ModeInterceptor
}

// Policy carries the cachability configuration shared by both modes.
type Policy struct {
	Expire        time.Duration
	MaxContentLen int64
	ContentTypes  []string
	PathPatterns  []*regexp.Regexp
}

// CompilePolicy builds a Policy from raw configuration values, compiling
// each path pattern. It returns the first regexp compilation error, if any.
func CompilePolicy(expire time.Duration, maxContentLen int64, contentTypes, pathPatterns []string) (Policy, error) {
	p := Policy{Expire: expire, MaxContentLen: maxContentLen, ContentTypes: contentTypes}
	for _, pat := range pathPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return Policy{}, err
		}
		p.PathPatterns = append(p.PathPatterns, re)
	}
	return p, nil
}

// Cacheable reports whether a key/content-type/body triple produced by a
// 200 OK GET with no Cache-Control header passes every configured
// cachability predicate.
func (p Policy) Cacheable(key, contentType string, bodyLen int) bool {
	if bodyLen == 0 || int64(bodyLen) >= p.MaxContentLen {
		return false
	}

	if len(p.PathPatterns) > 0 {
		matched := false
		for _, re := range p.PathPatterns {
			if re.MatchString(key) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(p.ContentTypes) > 0 {
		allowed := false
		for _, ct := range p.ContentTypes {
			if ct == contentType {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// Cache bundles a CacheStore with the policy governing whether small-object
// PUTs and interceptor responses are eligible for it, and the Mode that
// decides which caller gets to populate it.
type Cache struct {
	Store  cachestore.CacheStore
	Policy Policy
	Mode   Mode
}

// New returns a Cache wrapping store under policy, integrated per mode.
func New(store cachestore.CacheStore, policy Policy, mode Mode) *Cache {
	return &Cache{Store: store, Policy: policy, Mode: mode}
}

// PutSmallObject caches a freshly-PUT small object's body. It is a no-op
// unless internal caching is enabled: in interceptor mode the cache is
// populated exclusively by onResponse, behind the three cachability
// predicates, so a small PUT must never pre-populate it. It also skips keys
// containing the chunk key separator byte, which would collide with the
// chunk key namespace.
func (c *Cache) PutSmallObject(key string, body []byte, contentType string, etag []byte) {
	if c.Mode != ModeInternal {
		return
	}
	if chunkkey.ContainsSeparatorString(key) {
		return
	}
	_ = c.Store.Put(key, cachestore.CachedEntry{
		MTime:       time.Now(),
		ETag:        etag,
		ContentType: contentType,
		Body:        body,
		Size:        int64(len(body)),
	})
}

// WriteCacheHeaders sets the headers an interceptor-mode cache hit carries:
// Last-Modified, Content-Type, Age, and Cache-Control.
func WriteCacheHeaders(w http.ResponseWriter, entry cachestore.CachedEntry, expire time.Duration) {
	w.Header().Set("Last-Modified", entry.MTime.UTC().Format(http.TimeFormat))
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	age := time.Since(entry.MTime)
	if age < 0 {
		age = 0
	}
	w.Header().Set("Age", formatSeconds(age))
	w.Header().Set("Cache-Control", "max-age="+formatSeconds(expire))
}

func formatSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}
