// Package chunkkey derives per-chunk storage keys from a parent object key
// and a 1-based chunk index, per the wire format used to address chunks of a
// large object inside the storage cluster.
package chunkkey

import (
	"bytes"
	"strconv"
)

// Separator is the fixed byte inserted between a parent key and the
// ASCII-decimal chunk index. A key containing this byte cannot be safely
// cached (see ContainsSeparator) because it would collide with the chunk key
// namespace.
const Separator = 0x0A

// Make returns the storage key for chunk index i (1-based) of parent.
// The result is parent || 0x0A || ascii(i), with i rendered without leading
// zeros.
func Make(parent []byte, index int) []byte {
	suffix := strconv.Itoa(index)
	out := make([]byte, 0, len(parent)+1+len(suffix))
	out = append(out, parent...)
	out = append(out, Separator)
	out = append(out, suffix...)
	return out
}

// MakeString is the string-keyed convenience form of Make.
func MakeString(parent string, index int) string {
	return string(Make([]byte(parent), index))
}

// ContainsSeparator reports whether key already contains the chunk
// separator byte, meaning it must not be cached under CacheStore (it could
// collide with a genuine chunk key).
func ContainsSeparator(key []byte) bool {
	return bytes.IndexByte(key, Separator) >= 0
}

// ContainsSeparatorString is the string-keyed form of ContainsSeparator.
func ContainsSeparatorString(key string) bool {
	return ContainsSeparator([]byte(key))
}

// Split parses a chunk key back into its parent key and 1-based index. It
// returns ok=false if key does not contain exactly the expected shape (no
// separator, or a non-numeric/zero-leading suffix).
func Split(key []byte) (parent []byte, index int, ok bool) {
	i := bytes.LastIndexByte(key, Separator)
	if i < 0 || i == len(key)-1 {
		return nil, 0, false
	}

	suffix := string(key[i+1:])
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 || strconv.Itoa(n) != suffix {
		return nil, 0, false
	}

	return key[:i], n, true
}
