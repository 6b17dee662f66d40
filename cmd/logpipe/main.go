// Package main runs logpipe as an HTTP service: it loads the YAML config,
// builds the chain and serves the log API with failure handling installed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/chain"
	"github.com/afikmenashe/logpipe/internal/config"
	"github.com/afikmenashe/logpipe/internal/display"
	internalmetrics "github.com/afikmenashe/logpipe/internal/metrics"
	"github.com/afikmenashe/logpipe/internal/server"
	"github.com/afikmenashe/logpipe/internal/setup"
	"github.com/afikmenashe/logpipe/pkg/metrics"
	"github.com/afikmenashe/logpipe/pkg/shared"
)

func main() {
	configPath := flag.String("config", shared.GetEnvOrDefault("LOGPIPE_CONFIG", "logpipe.yaml"), "Path to the YAML configuration file")
	addr := flag.String("addr", shared.GetEnvOrDefault("HTTP_ADDR", ":8080"), "HTTP listen address")
	flag.Parse()

	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting logpipe",
		"application", cfg.General.Application,
		"environment", cfg.General.Environment,
		"addr", *addr,
		"cache_backend", cfg.Cache.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		slog.Info("Connecting to Redis", "addr", cfg.Cache.RedisAddr)
		redisClient, err = shared.ConnectRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	store, closeStore, err := openCache(ctx, cfg.Cache, redisClient)
	if err != nil {
		slog.Error("Failed to open cache", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if collector, ok := cache.CollectorOf(store); ok {
		maintenance, err := cache.NewMaintenance(cfg.Cache.GCSchedule, collector)
		if err != nil {
			slog.Error("Failed to schedule cache maintenance", "error", err)
			os.Exit(1)
		}
		maintenance.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			maintenance.Stop(stopCtx)
		}()
	}

	var recorders internalmetrics.Multi
	var promHandler http.Handler
	if cfg.Metrics.Prometheus {
		prom := internalmetrics.NewPrometheus()
		recorders = append(recorders, prom)
		promHandler = prom.Handler()
	}
	var reader *metrics.Reader
	if cfg.Metrics.RedisReport && redisClient != nil {
		instance := cfg.Metrics.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		collector := metrics.NewCollector(instance, redisClient)
		collector.Start(ctx)
		defer collector.Stop()
		recorders = append(recorders, internalmetrics.NewCollectorAdapter(collector))
		reader = metrics.NewReader(redisClient)
	}

	logChain, err := chain.Build(ctx, cfg, chain.Deps{
		Cache:    store,
		Recorder: recorders,
	})
	if err != nil {
		slog.Error("Failed to build log chain", "error", err)
		os.Exit(1)
	}
	defer logChain.Close()
	events := logChain.Slog(slog.LevelInfo)

	failures := setup.New(logChain.Logger, logChain.UID, display.Select(cfg.General))
	if err := failures.Register(); err != nil {
		slog.Error("Failed to register failure handling", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(*addr, server.NewHandlers(logChain, reader, promHandler), failures.Middleware)

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", *addr)
		events.Info("Logpipe started", "addr", *addr, "chain", chain.Describe(logChain.Logger))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error shutting down server", "error", err)
		}
		slog.Info("HTTP server stopped")
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	events.Info("Logpipe stopped")
	slog.Info("Logpipe stopped")
}

// openCache selects the configured backend. The returned func releases it.
func openCache(ctx context.Context, cfg config.Cache, redisClient *redis.Client) (cache.Cache, func(), error) {
	switch cfg.Backend {
	case config.CacheMemory:
		return cache.NewMemoryCache(), func() {}, nil

	case config.CacheRedis:
		return cache.NewRedisCache(redisClient, cfg.RedisPrefix), func() {}, nil

	case config.CachePostgres:
		slog.Info("Connecting to PostgreSQL cache", "dsn", shared.MaskDSN(cfg.PostgresDSN))
		db, err := cache.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := cache.NewPostgresCache(db, cfg.PostgresTable)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { db.Close() }, nil

	default:
		dir := cfg.Dir
		if dir == "" {
			dir = cache.DefaultDir()
		}
		return cache.NewFileCache(dir, cache.WithGCProbability(cfg.GCProbability)), func() {}, nil
	}
}
