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

	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/database"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/extract"
	"github.com/nikhilbhutani/docingest/internal/integrity"
	"github.com/nikhilbhutani/docingest/internal/observability"
	"github.com/nikhilbhutani/docingest/internal/queue"
	"github.com/nikhilbhutani/docingest/internal/queue/workers"
	"github.com/nikhilbhutani/docingest/internal/retry"
	"github.com/nikhilbhutani/docingest/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := run(cfg); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	broker, err := queue.New(cfg.Queue, cfg.Redis, cfg.Worker.Concurrency)
	if err != nil {
		return err
	}
	defer broker.Close()

	engine, err := extract.NewDefaultEngine(cfg.Extract)
	if err != nil {
		return err
	}
	if !extract.NewOCRService(cfg.Extract.TesseractCmd).IsAvailable() {
		slog.Warn("tesseract not available, local OCR fallback will yield no text", "cmd", cfg.Extract.TesseractCmd)
	}

	reporter, err := observability.NewReporter(cfg.Telemetry.SentryDSN, cfg.Telemetry.Environment)
	if err != nil {
		return err
	}
	defer reporter.Close()

	metrics := observability.NewMetrics()
	store := document.NewPostgresStore(db)
	quarantine := integrity.NewQuarantiner(objects, cfg.Storage.QuarantineBucket, cfg.Worker.QuarantineCopyTry)
	policy := retry.NewPolicy(cfg.Worker.MinContentLength)
	opts := workers.Options{
		MaxRetries:     cfg.Worker.MaxRetries,
		ClassifyPages:  cfg.Worker.ClassifyPages,
		ReceiveTimeout: cfg.Queue.ReceiveTimeout,
		FetchTimeout:   cfg.Storage.FetchTimeout,
		ClassifyTime:   cfg.Extract.LocalTextTimeout,
		DBTimeout:      cfg.Worker.DBTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Worker.Concurrency; i++ {
		w := workers.NewDocumentWorker(fmt.Sprintf("worker-%d", i+1),
			store, objects, broker, engine, policy, quarantine, metrics, reporter, opts)
		g.Go(func() error { return w.Run(gctx) })
	}

	srv := &http.Server{
		Addr:              cfg.Telemetry.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("starting workers",
		"concurrency", cfg.Worker.Concurrency,
		"queue_backend", cfg.Queue.Backend,
		"queue", cfg.Queue.Name,
	)
	err = g.Wait()
	slog.Info("workers stopped")
	return err
}
