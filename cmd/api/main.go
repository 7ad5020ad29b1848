package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/config"
	"github.com/hdcopilot/ticket-enrich-back/internal/enrich"
	"github.com/hdcopilot/ticket-enrich-back/internal/gateway"
	httpserver "github.com/hdcopilot/ticket-enrich-back/internal/http"
	"github.com/hdcopilot/ticket-enrich-back/internal/http/handlers"
	"github.com/hdcopilot/ticket-enrich-back/internal/logging"
	"github.com/hdcopilot/ticket-enrich-back/internal/queue"
	"github.com/hdcopilot/ticket-enrich-back/internal/repository"
	"github.com/hdcopilot/ticket-enrich-back/internal/service"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
	"github.com/hdcopilot/ticket-enrich-back/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		panic(err)
	}
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		Service:     cfg.Service,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AdminDatabaseURL != "" {
		maintenance, err := repository.NewMaintenance(ctx, cfg.AdminDatabaseURL)
		if err != nil {
			logger.Fatal("admin database unavailable", zap.Error(err))
		}
		if err := maintenance.Migrate(ctx); err != nil {
			maintenance.Close()
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		maintenance.Close()
		logger.Info("schema migration applied")
	}

	repo, registry, repoCloser := setupStore(ctx, cfg, logger)
	defer repoCloser()

	guard := tenant.NewGuard(registry)

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	gatewayClient := gateway.NewClient(gateway.Config{
		MaxAttempts:  cfg.GatewayMaxAttempts,
		BackoffBase:  time.Duration(cfg.GatewayBackoffBaseMS) * time.Millisecond,
		TotalTimeout: time.Duration(cfg.GatewayTotalTimeoutMS) * time.Millisecond,
	}, logger)
	enricher := enrich.NewStaticEnricher()

	intake := service.NewIntakeService(guard, repo, producer, logger)
	api := handlers.NewAPI(intake)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		pool := worker.NewPool(func(workerID string) *worker.Processor {
			return worker.NewProcessor(consumer, guard, repo, enricher, gatewayClient, logger, worker.Config{
				WorkerID:       workerID,
				DequeueTimeout: time.Duration(cfg.WorkerDequeueTimeout) * time.Second,
				DrainGrace:     time.Duration(cfg.WorkerDrainGraceSecs) * time.Second,
			})
		}, cfg.WorkerPoolSize, logger)
		go func() {
			defer close(workerDone)
			if err := pool.Run(ctx); err != nil {
				logger.Error("worker pool stopped", zap.Error(err))
			}
		}()
		logger.Info("worker pool started", zap.Int("size", cfg.WorkerPoolSize))
	} else {
		close(workerDone)
		logger.Info("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("port", cfg.Port))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight jobs reach a terminal state before the process exits.
	drainTimer := time.NewTimer(time.Duration(cfg.WorkerDrainGraceSecs) * time.Second)
	defer drainTimer.Stop()
	select {
	case <-workerDone:
	case <-drainTimer.C:
		logger.Warn("worker drain grace elapsed, exiting")
	}
}

func setupStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (repository.OutcomesRepository, tenant.Registry, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not configured, using in-memory store")
		return repository.NewMemoryOutcomesRepository(), staticRegistry(cfg, logger), func() {}
	}

	pgRepo, err := repository.NewPostgresOutcomesRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("postgres store unavailable, fallback to memory", zap.Error(err))
		return repository.NewMemoryOutcomesRepository(), staticRegistry(cfg, logger), func() {}
	}
	logger.Info("postgres store initialized")
	return pgRepo, tenant.NewPostgresRegistry(pgRepo.Pool()), func() {
		pgRepo.Close()
	}
}

// staticRegistry parses STATIC_TENANTS entries of the form
// "id|name|base_url|authtoken" joined by ";".
func staticRegistry(cfg config.Config, logger *zap.Logger) *tenant.StaticRegistry {
	registry := tenant.NewStaticRegistry()
	for _, entry := range strings.Split(cfg.StaticTenants, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 4 {
			logger.Warn("skipping malformed static tenant entry")
			continue
		}
		registry.Register(tenant.Tenant{
			ID:                 strings.TrimSpace(parts[0]),
			Name:               strings.TrimSpace(parts[1]),
			TicketingBaseURL:   strings.TrimSpace(parts[2]),
			TicketingAuthToken: strings.TrimSpace(parts[3]),
			Active:             true,
		})
	}
	return registry
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(cfg.LocalQueueBufferSize)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		Stream:     cfg.RedisStream,
		DLQStream:  cfg.RedisDLQ,
		Group:      cfg.RedisGroup,
		Consumer:   cfg.RedisConsumer,
		Visibility: time.Duration(cfg.QueueVisibilitySecs) * time.Second,
	})
	if err != nil {
		logger.Warn("redis streams queue unavailable, fallback to local", zap.Error(err))
		local := queue.NewLocalQueue(cfg.LocalQueueBufferSize)
		return local, local, func() {}
	}

	logger.Info("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}
