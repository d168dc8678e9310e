// Package memstore implements cachestore.CacheStore as an in-memory map. It
// is the default edge-cache backend: always fast, never survives a gateway
// restart, and never writes to disk (CachedEntry.FilePath is always empty).
package memstore

import (
	"sync"

	"github.com/objectgw/gateway/internal/cachestore"
)

// Store is a mutex-guarded in-memory CacheStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]cachestore.CachedEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]cachestore.CachedEntry)}
}

// Get implements cachestore.CacheStore.
func (s *Store) Get(key string) (cachestore.CachedEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Put implements cachestore.CacheStore.
func (s *Store) Put(key string, entry cachestore.CachedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	return nil
}

// Delete implements cachestore.CacheStore.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
