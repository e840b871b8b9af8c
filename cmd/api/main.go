package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/adapter/blobstore"
	"github.com/user/webhook-ingest/internal/adapter/memory"
	"github.com/user/webhook-ingest/internal/adapter/postgres"
	redis_adapter "github.com/user/webhook-ingest/internal/adapter/redis"
	"github.com/user/webhook-ingest/internal/delivery/http/handler"
	"github.com/user/webhook-ingest/internal/delivery/http/router"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/internal/usecase"
	"github.com/user/webhook-ingest/pkg/config"
	"github.com/user/webhook-ingest/pkg/logger"
)

type repositories struct {
	rawEvents repository.RawEventRepository
	requests  repository.ScrapeRequestRepository
	posts     repository.PostRepository
	folders   repository.FolderRepository
}

func main() {
	// --- Configuration ---
	envErr := godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("could not build logger", zap.Error(err))
	}
	defer log.Sync()
	log.Info("logger initialized", zap.String("level", cfg.LogLevel))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("could not load .env file", zap.Error(envErr))
	}

	ctx := context.Background()
	healthChecks := map[string]handler.HealthCheck{}

	// --- Datastore ---
	var repos repositories
	var dbpool *pgxpool.Pool
	switch cfg.StoreBackend {
	case "postgres":
		dbpool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal("unable to connect to database", zap.Error(err))
		}
		defer dbpool.Close()
		if err := postgres.InitSchema(ctx, dbpool); err != nil {
			log.Fatal("unable to initialize schema", zap.Error(err))
		}
		repos = repositories{
			rawEvents: postgres.NewRawEventRepo(dbpool),
			requests:  postgres.NewScrapeRequestRepo(dbpool),
			posts:     postgres.NewPostRepo(dbpool),
			folders:   postgres.NewFolderRepo(dbpool),
		}
		healthChecks["postgres"] = dbpool.Ping
		log.Info("PostgreSQL connection pool established")
	case "memory":
		repos = repositories{
			rawEvents: memory.NewRawEventRepo(),
			requests:  memory.NewScrapeRequestRepo(),
			posts:     memory.NewPostRepo(),
			folders:   memory.NewFolderRepo(),
		}
		log.Warn("using in-memory store; data is lost on restart")
	}

	// --- Locks ---
	var locker repository.Locker
	switch cfg.LockBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatal("unable to connect to Redis", zap.Error(err))
		}
		locker = redis_adapter.NewLocker(rdb, cfg.LockTTL())
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("Redis connection established")
	case "postgres":
		pgLocker := postgres.NewLocker(dbpool)
		defer pgLocker.Close()
		locker = pgLocker
	case "memory":
		locker = memory.NewLocker()
		log.Warn("using in-process locks; run a single instance only")
	}

	// --- Raw archive ---
	opts := handler.Options{
		MaxBodyBytes:      cfg.MaxBodyBytes,
		ProcessingTimeout: cfg.ProcessingTimeout(),
		HealthChecks:      healthChecks,
	}
	if cfg.RawArchiveAccount != "" {
		archive, err := blobstore.NewArchive(ctx, cfg.RawArchiveAccount, cfg.RawArchiveContainer, log)
		if err != nil {
			log.Fatal("unable to initialize raw archive", zap.Error(err))
		}
		opts.Archive = archive
		log.Info("raw archive enabled", zap.String("account", cfg.RawArchiveAccount), zap.String("container", cfg.RawArchiveContainer))
	}

	// --- Use Cases ---
	machine := usecase.NewStateMachine(repos.requests, log)
	ingestion := usecase.NewIngestionUseCase(
		repos.rawEvents,
		repos.requests,
		locker,
		usecase.NewCorrelationResolver(repos.requests, cfg.CorrelationFallbackEnabled, log),
		usecase.NewPostStore(repos.posts, log),
		machine,
		usecase.NewFolderAssigner(repos.folders, locker, machine, cfg.UnassignedFolderLabel, log),
		cfg.DefaultPlatform(),
		log,
	)

	// --- HTTP Server ---
	auth, err := handler.NewAuthenticator(cfg.WebhookAuthToken, cfg.WebhookIPAllowlist)
	if err != nil {
		log.Fatal("invalid webhook authentication settings", zap.Error(err))
	}
	if cfg.WebhookAuthToken == "" && len(cfg.WebhookIPAllowlist) == 0 {
		log.Warn("webhook authentication disabled: set WEBHOOK_AUTH_TOKEN or WEBHOOK_IP_ALLOWLIST")
	}
	apiHandler := handler.NewHandler(ingestion, repos.rawEvents, auth, opts, log)
	httpRouter := router.New(apiHandler, cfg.TrustForwardedFor, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProcessingTimeout() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeout()+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
