package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohits-web03/clipdrop/internal/api"
	"github.com/rohits-web03/clipdrop/internal/api/handlers"
	"github.com/rohits-web03/clipdrop/internal/api/middleware"
	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/chunker"
	"github.com/rohits-web03/clipdrop/internal/clipboard"
	"github.com/rohits-web03/clipdrop/internal/config"
	"github.com/rohits-web03/clipdrop/internal/hub"
	"github.com/rohits-web03/clipdrop/internal/ledger"
	"github.com/rohits-web03/clipdrop/internal/logging"
	"github.com/rohits-web03/clipdrop/internal/sweeper"
)

const shutdownTimeout = 15 * time.Second

// @title Clipdrop API
// @version 1.0
// @description Temporary cross-device clipboard with chunked uploads and live progress.
// @BasePath /
func main() {
	cfg := config.Envs
	logger := logging.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func newStore(cfg config.Config, logger *slog.Logger) (blobstore.Store, error) {
	switch cfg.BlobStore.Backend {
	case "r2":
		return blobstore.NewR2Store(blobstore.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			Region:          cfg.R2.Region,
			Logger:          logger,
		})
	case "http", "":
		return blobstore.NewClient(blobstore.ClientOptions{
			BaseURL:  cfg.BlobStore.URL,
			APIKey:   cfg.BlobStore.APIKey,
			Timeout:  cfg.BlobStore.Timeout,
			RetryMax: cfg.BlobStore.Retries,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobStore.Backend)
	}
}

func newLedger(cfg config.Config, logger *slog.Logger) (ledger.Ledger, func() error, error) {
	if cfg.DB_URL == "" {
		logger.Warn("DB_URL not set, keeping clipboard metadata in memory")
		return ledger.NewMemory(), func() error { return nil }, nil
	}
	g, err := ledger.Open(cfg.DB_URL, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Database connected and migrated")
	return g, g.Close, nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	l, closeLedger, err := newLedger(cfg, logger)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer func() {
		if err := closeLedger(); err != nil {
			logger.Warn("Closing ledger failed", "error", err)
		}
	}()

	engine := chunker.New(store, chunker.Options{
		ChunkSize:         cfg.Upload.ChunkSize,
		FallbackRetention: cfg.Upload.FallbackRetention,
		Logger:            logger,
	})
	svc := clipboard.NewService(store, engine, l, clipboard.Options{
		PublicURL:     cfg.PublicURL,
		MaxUploadSize: cfg.Upload.MaxUploadSize,
		Wait:          cfg.Upload.Wait,
		PollInterval:  cfg.Upload.PollInterval,
		Retention: clipboard.RetentionPolicy{
			DefaultTTLDays: cfg.Upload.DefaultTTLDays,
			MaxTTLDays:     cfg.Upload.MaxTTLDays,
			Min:            cfg.Upload.MinRetention,
		},
		Logger: logger,
	})
	progress := hub.New(store, hub.Options{
		PollInterval: cfg.Hub.PollInterval,
		Grace:        cfg.Hub.Grace,
		Logger:       logger,
	})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Burst, cfg.RateLimit.TrustedProxies, logger)
	defer limiter.Stop()

	sweep, err := sweeper.New(l, cfg.SweepSchedule, logger)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}

	handler := api.SetupRouter(api.Deps{
		Clipboard:   handlers.NewClipboard(svc, cfg.Upload.MaxUploadSize, logger),
		Progress:    progress,
		RateLimiter: limiter,
		Cors:        cfg.CorsConfig,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: handler,
		// Timeouts prevent resource exhaustion from slow clients. Writes cover
		// the upload wait window plus chunked reassembly.
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.Upload.Wait + 60*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Clipdrop server", "port", cfg.Port, "env", cfg.Environment, "backend", cfg.BlobStore.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		sweep.Start()
		<-gctx.Done()

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := progress.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Progress hub shutdown incomplete", "error", err)
		}
		if err := sweep.Stop(shutdownCtx); err != nil {
			logger.Warn("Sweeper shutdown incomplete", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
