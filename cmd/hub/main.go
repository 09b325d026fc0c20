package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/modelhub/internal/api"
	"github.com/nidhogg/modelhub/internal/config"
	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/hub"
	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"github.com/nidhogg/modelhub/internal/watcher"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/hub.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Providers
	registry := provider.NewRegistry(logger)
	for _, pc := range cfg.Providers {
		p, err := provider.New(pc.Provider(), logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(err))
			continue
		}
		registry.Register(p)
	}
	available := registry.Available()
	if len(available) == 0 {
		logger.Warn("no providers have API keys; chat requests will fail until one is configured")
	}
	logger.Info("Providers registered",
		zap.Int("total", len(registry.List())),
		zap.Strings("available", available))

	classifier := router.NewClassifier(cfg.Routing.Categories)
	queryRouter := router.New(classifier, cfg.Routing.PriorityMap(), registry.Descriptors(), logger)

	// Knowledge base
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder, err := embedding.New(cfg.Embedding.Embedder(), logger)
	if err != nil {
		logger.Fatal("failed to create embedder", zap.Error(err))
	}
	index, closeIndex, err := openIndex(ctx, cfg.Storage, embedder, logger)
	if err != nil {
		logger.Fatal("failed to open vector index", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer closeIndex()
	engine := rag.NewEngine(index, cfg.RAG, logger)

	if cfg.Watch.Dir != "" {
		w := watcher.New(cfg.Watch.Dir, cfg.Watch.Extensions, engine, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("directory watcher stopped", zap.Error(err))
			}
		}()
	}

	svc := hub.New(registry, queryRouter, engine, logger)
	handler := api.NewHandler(svc, engine, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8000"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ModelHub listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ModelHub...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// openIndex builds the vector index for the configured storage backend. The
// returned func releases backend connections.
func openIndex(ctx context.Context, sc config.StorageConfig, embedder embedding.Provider, logger *zap.Logger) (vectorstore.Index, func(), error) {
	noop := func() {}
	switch sc.Backend {
	case config.BackendFile, "":
		snap, err := vectorstore.NewFileSnapshot(sc.Path)
		if err != nil {
			return nil, noop, err
		}
		idx, err := vectorstore.NewMemoryIndex(ctx, embedder, snap, logger)
		return idx, noop, err

	case config.BackendRedis:
		snap, err := vectorstore.NewRedisSnapshot(ctx, sc.Redis.URL, sc.Redis.Key)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() { snap.Close() }
		idx, err := vectorstore.NewMemoryIndex(ctx, embedder, snap, logger)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		return idx, closeFn, nil

	case config.BackendPostgres:
		snap, err := vectorstore.NewPostgresSnapshot(ctx, sc.Postgres.DSN, sc.Postgres.Name, logger)
		if err != nil {
			return nil, noop, err
		}
		idx, err := vectorstore.NewMemoryIndex(ctx, embedder, snap, logger)
		if err != nil {
			snap.Close()
			return nil, noop, err
		}
		return idx, snap.Close, nil

	case config.BackendQdrant:
		client, err := vectorstore.NewClient(sc.Qdrant)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() { client.Close() }
		idx, err := vectorstore.NewQdrantIndex(ctx, client, sc.Qdrant.Collection, embedder, logger)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		return idx, closeFn, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}
