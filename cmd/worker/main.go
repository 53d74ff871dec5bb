package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mediadl/dl-gateway/internal/config"
	"github.com/mediadl/dl-gateway/internal/engine"
	"github.com/mediadl/dl-gateway/internal/events"
	"github.com/mediadl/dl-gateway/internal/jobs"
	"github.com/mediadl/dl-gateway/internal/metrics"
	"github.com/mediadl/dl-gateway/internal/progress"
	"github.com/mediadl/dl-gateway/internal/queue"
	"github.com/mediadl/dl-gateway/internal/storage"
	"github.com/mediadl/dl-gateway/internal/worker"
	redisclient "github.com/mediadl/dl-gateway/pkg/client/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)
	slog.Info("Starting download worker",
		"queueBackend", cfg.QueueBackend,
		"maxConcurrent", cfg.MaxConcurrentDownloads,
		"downloadsDir", cfg.DownloadsDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redis, err := redisclient.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	var repo jobs.Repository
	if cfg.DatabaseURL != "" {
		slog.Info("Using PostgreSQL job repository")
		pgRepo, err := jobs.NewPgRepository(ctx, cfg.DatabaseURL, cfg.JobTTL)
		if err != nil {
			slog.Error("Failed to create PostgreSQL repository", "error", err)
			os.Exit(1)
		}
		repo = pgRepo
	} else {
		slog.Info("Using Redis job repository", "ttl", cfg.JobTTL)
		repo = jobs.NewRedisRepository(redis, cfg.JobTTL)
	}
	defer repo.Close()

	files, err := storage.NewStore(cfg.DownloadsDir)
	if err != nil {
		slog.Error("Failed to prepare downloads directory", "error", err)
		os.Exit(1)
	}

	consumer, err := newConsumer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create task consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	w := worker.New(
		repo,
		progress.NewRedisSnapshotStore(redis, cfg.ProgressTTL),
		events.NewRedisBus(redis),
		engine.NewYtdlpEngine(),
		files.Dir(),
		worker.Options{
			ThrottleInterval:          cfg.ThrottleInterval,
			PreserveProgressOnFailure: cfg.PreserveProgressOnFailure,
		},
	)

	// Metrics on a separate listener so the worker exposes nothing else.
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
	go func() {
		slog.Info("Metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- consumer.Consume(ctx, w.Handle)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, initiating shutdown", "signal", sig)
		cancel()
		// Let in-flight downloads settle before exiting.
		select {
		case <-consumeDone:
		case <-time.After(30 * time.Second):
			slog.Warn("Timed out waiting for in-flight tasks")
		}
	case err := <-consumeDone:
		if err != nil {
			slog.Error("Consumer stopped", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	slog.Info("Worker shutdown complete")
}

func newConsumer(ctx context.Context, cfg *config.Config) (queue.Consumer, error) {
	switch cfg.QueueBackend {
	case config.BackendSQS:
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL, cfg.MaxConcurrentDownloads)
	default:
		return queue.NewRabbitMQClient(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.TaskQueue, cfg.MaxConcurrentDownloads)
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func setupLogging(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
