// Package digest implements the rolling content hash used to compute a
// large object's ETag across a sequence of chunk bodies. The digest is
// plain MD5, advanced incrementally as each chunk commits, and rendered as
// the lowercase 32-hex-character ETag clients expect.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
)

// Rolling accumulates an MD5 digest across a sequence of byte slices,
// committed one at a time in ascending chunk order.
type Rolling struct {
	h hash.Hash
}

// New returns a fresh Rolling digest with no bytes committed.
func New() *Rolling {
	return &Rolling{h: md5.New()}
}

// Update folds body into the running digest. It must be called only after
// the corresponding chunk has been durably stored — the digest must never
// be advanced speculatively, or the "digest = MD5(committed bytes)"
// invariant breaks.
func (r *Rolling) Update(body []byte) {
	r.h.Write(body)
}

// Sum returns the current 16-byte MD5 sum without mutating the digest.
func (r *Rolling) Sum() [16]byte {
	var out [16]byte
	copy(out[:], r.h.Sum(nil))
	return out
}

// ETagHex renders a 16-byte digest as the lowercase 32-hex-character ETag
// format clients expect ("%032x" of the 128-bit value).
func ETagHex(sum [16]byte) string {
	return hex.EncodeToString(sum[:])
}

// Sum computes the MD5 digest of a single byte slice in one call, useful
// for small-object ETags and interceptor-mode cache bodies.
func Sum(body []byte) [16]byte {
	var out [16]byte
	sum := md5.Sum(body)
	copy(out[:], sum[:])
	return out
}
