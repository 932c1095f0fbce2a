package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/access"
	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	corpusmcp "github.com/fyrsmithlabs/corpusd/internal/mcp"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/processor"
	"github.com/fyrsmithlabs/corpusd/internal/queue"
	"github.com/fyrsmithlabs/corpusd/internal/scanner"
	"github.com/fyrsmithlabs/corpusd/internal/search"
	"github.com/fyrsmithlabs/corpusd/internal/server"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

// app bundles the wired services so serve and stdio modes share one setup
// path.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	marks  *watermark.Store
	store  vectorstore.Gateway
	embed  embeddings.Provider
	engine *search.Engine
	sync   *orchestrator.SyncService
}

// buildApp wires the full pipeline from configuration. On success the sync
// service is started and the caller owns shutdown via app.close.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	marks, err := watermark.Open(expandPath(cfg.Watermark.Path))
	if err != nil {
		return nil, fmt.Errorf("open watermark store: %w", err)
	}

	embed, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		BaseURL:       cfg.Embeddings.BaseURL,
		CacheDir:      expandPath(cfg.Embeddings.CacheDir),
		RatePerSecond: cfg.Embeddings.RatePerSecond,
	})
	if err != nil {
		marks.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	vectorSize := cfg.Qdrant.VectorSize
	if dim := embed.Dimension(); dim > 0 && uint64(dim) != vectorSize {
		logger.Warn(ctx, "qdrant vector_size overridden by embedding model",
			zap.Uint64("configured", vectorSize), zap.Int("model", dim))
		vectorSize = uint64(dim)
	}

	store, err := vectorstore.NewQdrantGateway(vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		VectorSize: vectorSize,
		UseTLS:     cfg.Qdrant.UseTLS,
		MaxRetries: cfg.Qdrant.MaxRetries,
	})
	if err != nil {
		embed.Close()
		marks.Close()
		return nil, fmt.Errorf("create qdrant gateway: %w", err)
	}
	if err := store.EnsureReady(ctx); err != nil {
		store.Close()
		embed.Close()
		marks.Close()
		return nil, fmt.Errorf("prepare qdrant collection: %w", err)
	}

	clients := make(map[document.Type]source.Client)
	if cfg.Sources.FileRoot != "" {
		dir, err := source.NewDirClient(expandPath(cfg.Sources.FileRoot))
		if err != nil {
			store.Close()
			embed.Close()
			marks.Close()
			return nil, fmt.Errorf("create file source: %w", err)
		}
		clients[document.TypeFile] = dir
	}
	reg := source.NewRegistry(clients)
	if len(clients) == 0 {
		logger.Warn(ctx, "no source clients registered, scans will find nothing")
	}

	enc := embeddings.NewSparseEncoder(embeddings.SparseEncoderConfig{})
	chunks, err := chunker.New(chunker.Config{
		Size:    cfg.Sync.ChunkSize,
		Overlap: cfg.Sync.ChunkOverlap,
	})
	if err != nil {
		store.Close()
		embed.Close()
		marks.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	verifier := access.NewVerifier(reg, access.Config{
		TTL:       cfg.Access.CacheTTL.Duration(),
		CacheSize: cfg.Access.CacheSize,
		BatchSize: cfg.Access.BatchSize,
	}, logger)

	engine := search.NewEngine(store, embed, enc, verifier, search.Config{
		Overfetch:           cfg.Search.Overfetch,
		RRFRankConst:        cfg.Search.RRFRankConst,
		DefaultLimit:        cfg.Search.DefaultLimit,
		MaxLimit:            cfg.Search.MaxLimit,
		ScoreThresholdRatio: cfg.Search.ScoreThresholdRatio,
		AccessCheckTimeout:  cfg.Search.AccessCheckTimeout.Duration(),
	}, logger)

	proc := processor.New(reg, marks, store, embed, enc, chunks,
		processor.Config{
			Workers:          cfg.Sync.Workers,
			MaxRetries:       cfg.Sync.MaxRetries,
			RetryBackoff:     cfg.Sync.RetryBackoff.Duration(),
			RateLimitBackoff: cfg.Sync.RateLimitBackoff.Duration(),
		}, logger)

	tasks := queue.New(cfg.Sync.QueueCapacity)
	scan := scanner.New(reg, marks, store,
		func(ctx context.Context, task document.Task) error { return tasks.Enqueue(ctx, task) },
		scanner.Config{
			Interval:        cfg.Sync.ScanInterval.Duration(),
			StalenessCycles: cfg.Sync.StalenessCycles,
		}, logger)

	syncSvc := orchestrator.New(orchestrator.Config{
		ScanInterval:   cfg.Sync.ScanInterval.Duration(),
		DebounceWindow: cfg.Sync.DebounceWindow.Duration(),
		Users:          cfg.Sync.Users,
	}, tasks, scan, proc, marks, logger)
	syncSvc.Start()

	return &app{
		cfg:    cfg,
		logger: logger,
		marks:  marks,
		store:  store,
		embed:  embed,
		engine: engine,
		sync:   syncSvc,
	}, nil
}

// close drains the pipeline and releases resources. Draining is bounded by
// the configured shutdown timeout.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(),
		a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.sync.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "sync shutdown incomplete", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn(ctx, "vector store close failed", zap.Error(err))
	}
	if err := a.embed.Close(); err != nil {
		a.logger.Warn(ctx, "embedding provider close failed", zap.Error(err))
	}
	if err := a.marks.Close(); err != nil {
		a.logger.Warn(ctx, "watermark store close failed", zap.Error(err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting corpusd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("users", cfg.Sync.Users),
	)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := server.NewServer(a.engine, a.sync, logger, server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
	}
	return nil
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr" // stdout carries the MCP protocol
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting corpusd in mcp stdio mode", zap.String("version", version))

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	mcpSrv, err := corpusmcp.NewServer(corpusmcp.Config{Version: version},
		a.engine, a.sync, logger)
	if err != nil {
		return err
	}
	if err := mcpSrv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// expandPath resolves a leading "~/" against the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
