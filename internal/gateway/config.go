// Package gateway wires the chunk-key, digest, upload, streamer, and
// edge-cache components behind a single HTTP handler, mirroring the shape
// of the teacher's Server/Config/Handler split.
package gateway

import (
	"context"
	"time"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/cachestore/memstore"
	"github.com/objectgw/gateway/internal/cachestore/sqlitestore"
	"github.com/objectgw/gateway/internal/rpc"
	"github.com/objectgw/gateway/internal/rpc/localrpc"
	"github.com/objectgw/gateway/internal/rpc/minioproxy"
)

// Config holds every knob the http_options table names, plus the
// domain-stack additions that select a real cluster backend.
type Config struct {
	Port        string
	SSLPort     string
	SSLCertFile string
	SSLKeyFile  string

	NumAcceptors int
	MaxKeepAlive int

	CacheMethod          string
	CacheExpire          time.Duration
	CacheMaxContentLen   int64
	CachableContentTypes []string
	CachablePathPatterns []string

	ThresholdObjLen int64
	ChunkedObjLen   int64
	MaxLenForObj    int64

	// ClusterEndpoint, when non-empty, selects the minioproxy StorageRpc
	// backend over a real S3-compatible cluster instead of localrpc.
	ClusterEndpoint  string
	ClusterAccessKey string
	ClusterSecretKey string
	ClusterBucket    string

	// CacheBackend is "memory" (default) or "sqlite".
	CacheBackend       string
	CacheDir           string
	CacheDiskThreshold int64

	// DataDir roots the localrpc backend when ClusterEndpoint is unset.
	DataDir string

	// RPCTimeout bounds every call into StorageRpc. Defaults to 30s.
	RPCTimeout time.Duration

	// Storage and Cache let callers (notably tests) inject backends
	// directly instead of having NewServer construct them from the
	// fields above.
	Storage rpc.StorageRpc
	Cache   cachestore.CacheStore
}

// ConfigOption mutates a Config during construction, mirroring the
// teacher's functional-options pattern.
type ConfigOption func(*Config)

// WithStorage overrides the StorageRpc backend NewServer would otherwise
// construct from Config's cluster/data-dir fields.
func WithStorage(storage rpc.StorageRpc) ConfigOption {
	return func(cfg *Config) { cfg.Storage = storage }
}

// WithCache overrides the CacheStore backend NewServer would otherwise
// construct from Config's cache fields.
func WithCache(cache cachestore.CacheStore) ConfigOption {
	return func(cfg *Config) { cfg.Cache = cache }
}

// WithDataDir sets the directory the default localrpc backend is rooted at.
func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) { cfg.DataDir = dataDir }
}

// WithClusterEndpoint points the gateway at a real storage cluster,
// selecting the minioproxy backend.
func WithClusterEndpoint(endpoint, accessKey, secretKey, bucket string) ConfigOption {
	return func(cfg *Config) {
		cfg.ClusterEndpoint = endpoint
		cfg.ClusterAccessKey = accessKey
		cfg.ClusterSecretKey = secretKey
		cfg.ClusterBucket = bucket
	}
}

// NewConfig applies defaults matching the http_options table, then opts in
// order.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Port:               "9000",
		NumAcceptors:       1,
		MaxKeepAlive:       100,
		CacheMethod:        "inner",
		CacheExpire:        60 * time.Second,
		CacheMaxContentLen: 1 << 20,
		ThresholdObjLen:    5 << 20,
		ChunkedObjLen:      5 << 20,
		MaxLenForObj:       5 << 30,
		CacheBackend:       "memory",
		CacheDiskThreshold: 64 << 10,
		DataDir:            "./data",
		RPCTimeout:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg Config) newStorage(ctx context.Context) (rpc.StorageRpc, error) {
	if cfg.Storage != nil {
		return cfg.Storage, nil
	}

	if cfg.ClusterEndpoint != "" {
		return minioproxy.New(ctx, minioproxy.Config{
			Endpoint:  cfg.ClusterEndpoint,
			AccessKey: cfg.ClusterAccessKey,
			SecretKey: cfg.ClusterSecretKey,
			Bucket:    cfg.ClusterBucket,
		})
	}

	return localrpc.New(cfg.DataDir)
}

func (cfg Config) newCache() (cachestore.CacheStore, error) {
	if cfg.Cache != nil {
		return cfg.Cache, nil
	}

	switch cfg.CacheBackend {
	case "", "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlitestore.Open(cfg.CacheDir, cfg.CacheDiskThreshold)
	default:
		return memstore.New(), nil
	}
}
