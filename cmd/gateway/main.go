package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/objectgw/gateway/internal/gateway"
)

func run(ctx context.Context) error {
	port := flag.String("listen", "9000", "HTTP listen address")
	sslPort := flag.String("ssl-listen", "9443", "HTTPS listen address")
	sslCertFile := flag.String("ssl-certfile", "", "TLS certificate file; HTTPS is skipped if unset")
	sslKeyFile := flag.String("ssl-keyfile", "", "TLS key file; HTTPS is skipped if unset")
	dataDir := flag.String("data-dir", "./data", "directory to store object and chunk data")
	cacheMethod := flag.String("cache-method", "inner", `"inner" for internal caching, anything else for interceptor mode`)
	cacheBackend := flag.String("cache-backend", "memory", `"memory" or "sqlite"`)
	cacheDir := flag.String("cache-dir", "./cache", "directory for the sqlite cache backend")
	clusterEndpoint := flag.String("cluster-endpoint", "", "S3-compatible cluster endpoint; selects the cluster backend when set")
	clusterAccessKey := flag.String("cluster-access-key", "", "cluster access key")
	clusterSecretKey := flag.String("cluster-secret-key", "", "cluster secret key")
	clusterBucket := flag.String("cluster-bucket", "gateway", "cluster bucket every gateway key maps into")

	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
	slog.SetDefault(slog.New(handler))

	absDataDir, err := filepath.Abs(*dataDir)
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}

	opts := []gateway.ConfigOption{
		gateway.WithDataDir(absDataDir),
		func(c *gateway.Config) {
			c.Port = *port
			c.SSLPort = *sslPort
			c.SSLCertFile = *sslCertFile
			c.SSLKeyFile = *sslKeyFile
			c.CacheMethod = *cacheMethod
			c.CacheBackend = *cacheBackend
			c.CacheDir = *cacheDir
		},
	}
	if *clusterEndpoint != "" {
		opts = append(opts, gateway.WithClusterEndpoint(*clusterEndpoint, *clusterAccessKey, *clusterSecretKey, *clusterBucket))
	}

	cfg := gateway.NewConfig(opts...)

	srv, err := gateway.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create gateway server: %w", err)
	}

	router := srv.Handler()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Addr:              ":" + cfg.SSLPort,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		<-ctx.Done()
		return httpsServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		if cfg.SSLCertFile == "" || cfg.SSLKeyFile == "" {
			slog.Debug("skipping HTTPS listener because no certificate was provided")
			return nil
		}

		slog.Info("starting gateway HTTPS listener", "port", cfg.SSLPort)
		err := httpsServer.ListenAndServeTLS(cfg.SSLCertFile, cfg.SSLKeyFile)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		slog.Info("starting gateway HTTP listener", "port", cfg.Port)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	slog.Info("gateway started")
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}
