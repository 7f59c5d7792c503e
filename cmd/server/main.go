package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "urlwarden/internal/adapters/http"
	"urlwarden/internal/config"
	"urlwarden/internal/logging"
	"urlwarden/internal/ports"
	"urlwarden/internal/services/analysis"
	"urlwarden/internal/services/cache"
	"urlwarden/internal/services/catalog"
	"urlwarden/internal/services/classifier"
	"urlwarden/internal/services/entitlement"
	"urlwarden/internal/services/fetcher"
	"urlwarden/internal/storage"
	"urlwarden/internal/workers/batchrunner"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err != nil {
		logger.Warn("config", "warning", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialization order: persistence tier, then cache/entitlement gate,
	// then the batch coordinator.
	store, err := storage.Open(ctx, storage.Config{
		DatabaseURL: cfg.DatabaseURL,
		Dir:         cfg.StorageDir,
		PreferLocal: cfg.PreferLocal,
	}, logger.With("component", "storage"))
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if err := cat.Load(cfg.CatalogPath); err != nil {
			logger.Error("catalog load failed", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("signature catalog ready", "version", cat.Version())

	fetch := fetcher.New(fetcher.Config{
		Timeout:      cfg.FetchTimeout,
		MaxRedirects: cfg.MaxRedirects,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	classify := classifier.New(cat)
	resultCache := cache.New(store, store, cfg.CacheTTL, logger.With("component", "cache"))
	gate := entitlement.New(store, store)

	engine := analysis.New(gate, fetch, classify, resultCache, store, logger.With("component", "analysis"))
	var _ ports.Analyzer = engine
	var _ ports.Pipeline = engine
	var _ ports.Gate = gate

	batch := batchrunner.New(batchrunner.Config{Workers: cfg.ScanWorkers}, engine, gate, logger.With("component", "batch"))

	srv := httpadapter.New(engine, batch, store, logger.With("component", "http"))
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	logger.Info("listening", "addr", cfg.ListenAddr, "workers", cfg.ScanWorkers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
