package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/common/otel"
	"clientdesk.app/identity/core/config"
	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/auth"
	"clientdesk.app/identity/internal/billing"
	"clientdesk.app/identity/internal/http/middleware"
	httprouter "clientdesk.app/identity/internal/http/router"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/service"
	"clientdesk.app/identity/internal/signature"
	"clientdesk.app/identity/internal/store"
	"clientdesk.app/identity/internal/store/memstore"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "identity starting", "env", cfg.Env, "service", cfg.OTel.ServiceName, "store", cfg.StoreDriver)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	stores, txRunner, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	eventProducer, err := openProducer(ctx, cfg.Redis)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer eventProducer.Close()

	tokens, err := auth.NewJWKSVerifier(cfg.WorkOS.JWKSURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load jwks", "error", err, "url", cfg.WorkOS.JWKSURL)
		os.Exit(1)
	}
	defer tokens.Close()

	var webhooks *signature.Verifier
	if cfg.WorkOS.WebhooksEnabled() {
		webhooks = signature.NewVerifier(cfg.WorkOS.WebhookSecret, cfg.Webhook.Tolerance)
	} else {
		slog.WarnContext(ctx, "WORKOS_WEBHOOK_SECRET not set, webhook deliveries will be rejected")
	}

	services := service.NewServices(service.ServicesConfig{
		Stores:     stores,
		TxRunner:   txRunner,
		Provider:   idp.NewWorkOS(cfg.WorkOS),
		Limits:     billing.NewPlanLimits(cfg.Plan),
		Producer:   eventProducer,
		ExpiryDays: cfg.Invitations.ExpiryDays,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, httprouter.RouterConfig{Tokens: tokens, Webhooks: webhooks})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// openStore connects the configured store driver. The memory driver keeps
// everything in process and is meant for local runs and demos.
func openStore(ctx context.Context, cfg config.Config) (service.StoreProvider, service.TxRunner, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.WarnContext(ctx, "using in-memory store, data is lost on restart")
		mem := memstore.New()
		return mem, service.NewMemoryTxRunner(mem), func() {}, nil
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return store.NewStores(database.Conn()), service.NewTxRunner(database), database.Close, nil
}

// openProducer publishes identity events to Redis when REDIS_URL is set and
// drops them otherwise.
func openProducer(ctx context.Context, cfg config.RedisConfig) (queue.Producer, error) {
	if !cfg.Enabled() {
		slog.InfoContext(ctx, "redis disabled, identity events will not be published")
		return queue.NewNoopProducer(), nil
	}

	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Stream)

	return queue.NewRedisProducer(redisClient, cfg.Stream, slog.Default()), nil
}

func setupRouter(cfg config.Config, services *service.Services, routes httprouter.RouterConfig) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → RequestID tags logs → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, routes)

	return router
}

const banner = `
 ___ ____  _____ _   _ _____ ___ _______   __
|_ _|  _ \| ____| \ | |_   _|_ _|_   _\ \ / /
 | || | | |  _| |  \| | | |  | |  | |  \ V /
 | || |_| | |___| |\  | | |  | |  | |   | |
|___|____/|_____|_| \_| |_| |___| |_|   |_|
`
