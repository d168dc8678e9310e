// Package localrpc implements rpc.StorageRpc against the local filesystem,
// adapted from a content-addressed local object store: records are laid out
// under a sharded directory keyed by a hash of the record's own key (not its
// content, since chunk bodies are opaque and may repeat), with a JSON
// sidecar carrying ObjectMetadata. It needs no external service and backs
// both the default gateway binary and the test suite.
package localrpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/objectgw/gateway/internal/digest"
	"github.com/objectgw/gateway/internal/gwerr"
	"github.com/objectgw/gateway/internal/rpc"
)

// Store is a StorageRpc backend rooted at a directory on the local
// filesystem.
type Store struct {
	dataDir string

	// mu serializes every Put and Delete, across all keys; the filesystem
	// itself has no atomic read-modify-write primitive for the JSON
	// sidecar.
	mu sync.Mutex
}

// New creates a Store rooted at dataDir, creating it if absent.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, gwerr.Internal("localrpc.New", err)
	}
	return &Store{dataDir: dataDir}, nil
}

type sidecar struct {
	Checksum  string `json:"checksum"`
	Timestamp int64  `json:"timestamp"`
	DSize     int64  `json:"dsize"`
	CNumber   int    `json:"cnumber"`
	Del       bool   `json:"del"`
}

func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) recordPath(key string) string {
	h := keyHash(key)
	return filepath.Join(s.dataDir, h[:2], h)
}

func (s *Store) bodyPath(key string) string {
	return s.recordPath(key) + ".body"
}

func (s *Store) metaPath(key string) string {
	return s.recordPath(key) + ".meta"
}

func (s *Store) readMeta(key string) (rpc.ObjectMetadata, error) {
	raw, err := os.ReadFile(s.metaPath(key))
	if os.IsNotExist(err) {
		return rpc.ObjectMetadata{}, gwerr.NotFound("localrpc.readMeta", err)
	}
	if err != nil {
		return rpc.ObjectMetadata{}, gwerr.Internal("localrpc.readMeta", err)
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return rpc.ObjectMetadata{}, gwerr.Internal("localrpc.readMeta", err)
	}

	checksum, err := hex.DecodeString(sc.Checksum)
	if err != nil {
		return rpc.ObjectMetadata{}, gwerr.Internal("localrpc.readMeta", err)
	}

	return rpc.ObjectMetadata{
		Checksum:  checksum,
		Timestamp: time.Unix(sc.Timestamp, 0),
		DSize:     sc.DSize,
		CNumber:   sc.CNumber,
		Del:       sc.Del,
	}, nil
}

func (s *Store) writeMeta(key string, meta rpc.ObjectMetadata) error {
	if err := os.MkdirAll(filepath.Dir(s.metaPath(key)), 0o755); err != nil {
		return gwerr.Internal("localrpc.writeMeta", err)
	}

	sc := sidecar{
		Checksum:  hex.EncodeToString(meta.Checksum),
		Timestamp: meta.Timestamp.Unix(),
		DSize:     meta.DSize,
		CNumber:   meta.CNumber,
		Del:       meta.Del,
	}

	raw, err := json.Marshal(sc)
	if err != nil {
		return gwerr.Internal("localrpc.writeMeta", err)
	}

	return os.WriteFile(s.metaPath(key), raw, 0o644)
}

// Get implements rpc.StorageRpc.
func (s *Store) Get(_ context.Context, key string) (rpc.ObjectMetadata, []byte, error) {
	meta, err := s.readMeta(key)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, err
	}

	if meta.CNumber > 0 {
		return meta, nil, nil
	}

	body, err := os.ReadFile(s.bodyPath(key))
	if os.IsNotExist(err) {
		return rpc.ObjectMetadata{}, nil, gwerr.NotFound("localrpc.Get", err)
	}
	if err != nil {
		return rpc.ObjectMetadata{}, nil, gwerr.Internal("localrpc.Get", err)
	}

	return meta, body, nil
}

// GetWithETagHint implements rpc.StorageRpc.
func (s *Store) GetWithETagHint(ctx context.Context, key string, etagHint []byte) (rpc.ObjectMetadata, []byte, bool, error) {
	meta, err := s.readMeta(key)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, false, err
	}

	if string(meta.Checksum) == string(etagHint) {
		return rpc.ObjectMetadata{}, nil, true, nil
	}

	meta, body, err := s.Get(ctx, key)
	return meta, body, false, err
}

// GetRange implements rpc.StorageRpc.
func (s *Store) GetRange(_ context.Context, key string, start, end int64) (rpc.ObjectMetadata, []byte, error) {
	meta, err := s.readMeta(key)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, err
	}

	if start < 0 || end < start {
		return rpc.ObjectMetadata{}, nil, gwerr.BadRange("localrpc.GetRange", nil)
	}

	f, err := os.Open(s.bodyPath(key))
	if os.IsNotExist(err) {
		return rpc.ObjectMetadata{}, nil, gwerr.NotFound("localrpc.GetRange", err)
	}
	if err != nil {
		return rpc.ObjectMetadata{}, nil, gwerr.Internal("localrpc.GetRange", err)
	}
	defer f.Close()

	length := end - start + 1
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return rpc.ObjectMetadata{}, nil, gwerr.Internal("localrpc.GetRange", err)
	}

	return meta, buf[:n], nil
}

// Head implements rpc.StorageRpc.
func (s *Store) Head(_ context.Context, key string) (rpc.ObjectMetadata, error) {
	return s.readMeta(key)
}

// Put implements rpc.StorageRpc.
func (s *Store) Put(_ context.Context, key string, body []byte, size int64, opts rpc.PutOptions) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta rpc.ObjectMetadata
	meta.Timestamp = time.Now()
	meta.DSize = size

	if opts.Manifest {
		meta.CNumber = opts.TotalChunks
		meta.Checksum = opts.Digest
	} else {
		meta.CNumber = 0
		sum := digest.Sum(body)
		meta.Checksum = sum[:]

		if err := os.MkdirAll(filepath.Dir(s.bodyPath(key)), 0o755); err != nil {
			return nil, gwerr.Internal("localrpc.Put", err)
		}
		if err := os.WriteFile(s.bodyPath(key), body, 0o644); err != nil {
			return nil, gwerr.Internal("localrpc.Put", err)
		}
	}

	if err := s.writeMeta(key, meta); err != nil {
		return nil, err
	}

	return meta.Checksum, nil
}

// Delete implements rpc.StorageRpc. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.bodyPath(key)); err != nil && !os.IsNotExist(err) {
		return gwerr.Internal("localrpc.Delete", err)
	}
	if err := os.Remove(s.metaPath(key)); err != nil && !os.IsNotExist(err) {
		return gwerr.Internal("localrpc.Delete", err)
	}
	return nil
}
