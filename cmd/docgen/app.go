package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/docgen/internal/application/documents"
	"github.com/aescanero/docgen/internal/application/orchestrator"
	"github.com/aescanero/docgen/internal/application/workers"
	"github.com/aescanero/docgen/internal/config"
	eventsmemory "github.com/aescanero/docgen/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/docgen/pkg/adapters/events/redis"
	"github.com/aescanero/docgen/pkg/adapters/llm"
	promcollector "github.com/aescanero/docgen/pkg/adapters/metrics/prometheus"
	badgerstorage "github.com/aescanero/docgen/pkg/adapters/storage/badger"
	memorystorage "github.com/aescanero/docgen/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/docgen/pkg/adapters/storage/redis"
	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired orchestrator components
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *promcollector.Collector
	store     ports.StateStore
	documents ports.DocumentStore
	eventBus  ports.EventBus
	pool      *workers.Pool
	manager   *orchestrator.Manager

	closers []func() error
}

// newApp builds and starts every component selected by cfg. Metrics are
// registered on reg.
func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		logger:  logger,
		metrics: promcollector.NewCollectorWith(reg),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	var redisClient *goredis.Client
	if cfg.Store.Backend == "redis" || cfg.Store.EventsBackend == "redis" {
		redisClient, err = connectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
	}

	switch cfg.Store.Backend {
	case "redis":
		a.store = redisstorage.NewStateStore(redisClient, cfg.Store.RunTTL, logger)
		a.documents = redisstorage.NewDocumentStore(redisClient, logger)
	case "badger":
		db, err := badgerstorage.Open(cfg.Badger.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.store = badgerstorage.NewStateStore(db, logger)
		a.documents = badgerstorage.NewDocumentStore(db, logger)
	default:
		a.store = memorystorage.NewStateStore()
		a.documents = memorystorage.NewDocumentStore()
	}

	switch cfg.Store.EventsBackend {
	case "redis":
		a.eventBus = eventsredis.NewStreamsEventBus(redisClient, cfg.Redis.StreamMaxLen, logger)
	default:
		a.eventBus = eventsmemory.NewEventBus(logger)
	}
	// Close the bus before the redis client it reads from
	a.closers = append(a.closers, a.eventBus.Close)

	invoker, err := llm.NewInvoker(&llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.DefaultModel,
		MaxTokens:         cfg.LLM.DefaultMaxTokens,
		Temperature:       cfg.LLM.DefaultTemperature,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Metrics:           a.metrics,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM invoker: %w", err)
	}

	overrides, err := config.LoadPolicies(cfg.Engine.PolicyFile)
	if err != nil {
		return nil, err
	}

	registry := orchestrator.NewRegistry(orchestrator.NewValidator(), orchestrator.RegistryConfig{
		Defaults: domain.NodePolicy{
			Timeout:     cfg.Engine.NodeTimeout,
			MaxRetries:  cfg.Engine.MaxRetries,
			BackoffBase: cfg.Engine.BackoffBase,
			MaxBackoff:  cfg.Engine.MaxBackoff,
		},
		DefaultMaxInFlight: cfg.Engine.MaxInFlight,
		Overrides:          overrides,
	}, logger)

	docCfg := documents.DefaultConfig()
	docCfg.SummaryLimit = cfg.Documents.SummaryLimit
	docCfg.Concurrency = cfg.Documents.Concurrency
	if err := registry.Register(documents.NewWorkflow(invoker, a.documents, docCfg, logger)); err != nil {
		return nil, fmt.Errorf("failed to register workflow: %w", err)
	}

	a.pool = workers.NewPool(cfg.Workers.PoolSize, a.metrics, logger, cfg.Workers.HealthCheckInterval)
	if err := a.pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	engine := orchestrator.NewEngine(
		a.store,
		a.pool,
		a.eventBus,
		a.metrics,
		orchestrator.NewAssembler(logger),
		logger,
		cfg.Engine.MaxInFlight,
	)

	a.manager = orchestrator.NewManager(
		registry,
		engine,
		a.store,
		a.eventBus,
		a.metrics,
		logger,
		cfg.Timeouts.RunTimeout,
	)

	return a, nil
}

// shutdown cancels active runs, drains the worker pool and releases
// backends
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator shutdown: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// closeResources runs the closers in reverse order of acquisition
func (a *app) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Addr))
	return client, nil
}
