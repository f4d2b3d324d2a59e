package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/common/otel"
	"clientdesk.app/identity/core/config"
	"clientdesk.app/identity/internal/audit"
	"clientdesk.app/identity/internal/queue"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeAudit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "identity audit starting",
		"env", cfg.Env,
		"consumer_group", cfg.Audit.Group,
		"consumer_name", cfg.Audit.Consumer)

	// Different node ID than the server.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Audit.Group,
		Consumer:     cfg.Audit.Consumer,
		DLQStream:    cfg.Audit.DLQStream,
		BatchSize:    50,
		Block:        5 * time.Second,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	tailer := audit.NewTailer(consumer, audit.NewLogSink(slog.Default()), audit.Config{
		MaxAttempts: cfg.Audit.MaxAttempts,
	})

	reclaimer := audit.NewReclaimer(redisClient, audit.ReclaimerConfig{
		Stream:        cfg.Redis.Stream,
		Group:         cfg.Audit.Group,
		Consumer:      cfg.Audit.Consumer + "-reclaimer",
		MinIdle:       cfg.Audit.MinIdle,
		Interval:      time.Minute,
		BatchSize:     10,
		// A tailer that keeps crashing on an entry stops getting it back.
		MaxDeliveries: int64(cfg.Audit.MaxAttempts) * 2,
	}, consumer, tailer.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- tailer.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "audit tailer running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down audit tailer...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	tailer.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "audit tailer error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "audit shutdown complete")
}

const banner = `
    _   _   _ ____ ___ _____
   / \ | | | |  _ \_ _|_   _|
  / _ \| | | | | | | |  | |
 / ___ \ |_| | |_| | |  | |
/_/   \_\___/|____/___| |_|
`
