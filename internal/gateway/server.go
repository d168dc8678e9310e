package gateway

import (
	"context"
	"fmt"

	"github.com/objectgw/gateway/internal/edgecache"
	"github.com/objectgw/gateway/internal/rpc"
)

// Server holds the resolved collaborators a gateway request dispatcher
// needs: the Config it was built from, the StorageRpc backend, and the
// CacheStore-backed edge cache.
type Server struct {
	Config  Config
	Storage rpc.StorageRpc
	Cache   *edgecache.Cache
	Mode    edgecache.Mode
}

// NewServer wires a Server from cfg, falling back to localrpc/memstore
// exactly as the teacher's NewServer falls back to LocalFileStorage when no
// engine is configured.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: construct storage backend: %w", err)
	}

	store, err := cfg.newCache()
	if err != nil {
		return nil, fmt.Errorf("gateway: construct cache backend: %w", err)
	}

	policy, err := edgecache.CompilePolicy(cfg.CacheExpire, cfg.CacheMaxContentLen, cfg.CachableContentTypes, cfg.CachablePathPatterns)
	if err != nil {
		return nil, fmt.Errorf("gateway: compile cache policy: %w", err)
	}

	mode := edgecache.ParseMode(cfg.CacheMethod)

	return &Server{
		Config:  cfg,
		Storage: storage,
		Cache:   edgecache.New(store, policy, mode),
		Mode:    mode,
	}, nil
}
