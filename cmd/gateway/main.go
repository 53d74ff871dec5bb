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

	"github.com/gin-gonic/gin"

	"github.com/mediadl/dl-gateway/internal/api"
	"github.com/mediadl/dl-gateway/internal/config"
	"github.com/mediadl/dl-gateway/internal/engine"
	"github.com/mediadl/dl-gateway/internal/events"
	"github.com/mediadl/dl-gateway/internal/jobs"
	"github.com/mediadl/dl-gateway/internal/progress"
	"github.com/mediadl/dl-gateway/internal/queue"
	"github.com/mediadl/dl-gateway/internal/storage"
	redisclient "github.com/mediadl/dl-gateway/pkg/client/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)
	slog.Info("Starting download gateway", "addr", cfg.ListenAddr, "logLevel", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redis, err := redisclient.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	// Job records live in PostgreSQL when a database URL is configured,
	// otherwise in Redis with TTL-based expiry.
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

	snaps := progress.NewRedisSnapshotStore(redis, cfg.ProgressTTL)
	bus := events.NewRedisBus(redis)

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create task publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	files, err := storage.NewStore(cfg.DownloadsDir)
	if err != nil {
		slog.Error("Failed to prepare downloads directory", "error", err)
		os.Exit(1)
	}

	svc := jobs.NewService(repo, publisher)
	server := api.NewServer(svc, repo, snaps, bus, engine.NewYtdlpEngine(), files, api.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		CleanupOnServe:    cfg.CleanupOnServe,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	server.Register(router)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		slog.Info("Server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, initiating shutdown", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	slog.Info("Gateway shutdown complete")
}

func newPublisher(ctx context.Context, cfg *config.Config) (queue.Publisher, error) {
	switch cfg.QueueBackend {
	case config.BackendSQS:
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL, cfg.MaxConcurrentDownloads)
	default:
		return queue.NewRabbitMQClient(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.TaskQueue, cfg.MaxConcurrentDownloads)
	}
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
