package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectos/fieldsync/internal/api"
	"github.com/inspectos/fieldsync/internal/config"
	"github.com/inspectos/fieldsync/internal/engine"
	"github.com/inspectos/fieldsync/internal/media"
	"github.com/inspectos/fieldsync/internal/remote"
	"github.com/inspectos/fieldsync/internal/store"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "FieldSync - offline-first sync agent for field inspection data",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("configuration loaded")

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.AccessToken,
		remote.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Remote.Timeout)}),
		remote.WithRetry(uint64(cfg.Sync.RetryMaxAttempts), time.Duration(cfg.Sync.RetryBaseDelay)))

	uploader, err := media.NewUploader(cfg.Media, client)
	if err != nil {
		return err
	}
	var signer media.Signer
	if !cfg.Media.Disabled && cfg.Media.S3.Bucket == "" {
		signer = client
	}
	pipeline := media.NewPipeline(db, uploader, signer,
		cfg.Media.BatchSize, cfg.Media.MaxAttempts, logger)

	eng := engine.New(db, client, pipeline, cfg.Sync, logger)
	monitor := engine.NewMonitor(client, eng,
		time.Duration(cfg.Sync.ProbeInterval), logger)

	handler := api.NewHandler(eng, db, cfg.Sync.MaxAttempts)
	srv := &http.Server{
		Addr:         cfg.Status.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "sync-engine", eng.Run)
	startWorker(ctx, &wg, "connectivity-monitor", monitor.Run)

	go func() {
		slog.Info("status server starting", "address", cfg.Status.Addr)
		// ErrServerClosed is the expected error on graceful Shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
