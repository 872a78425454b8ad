package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/grocery-oms/internal/health"
	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/memory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	users           domain.UserDirectory
	catalog         domain.ProductCatalog
	stock           domain.StockStore
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	transactor      domain.Transactor
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		return initMemoryDependencies(cfg, logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(cfg Config, logger *log.Entry) *runtimeDependencies {
	catalog := memory.NewCatalog()
	users := memory.NewUserDirectory()
	if cfg.SeedDemoData {
		memory.SeedDemoData(catalog, users)
		logger.Info("in-memory storage seeded with demo catalog")
	}

	logger.WithField("driver", StorageDriverMemory).Info("storage initialized")
	return &runtimeDependencies{
		users:           users,
		catalog:         catalog,
		stock:           catalog,
		repo:            memory.NewOrderRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		transactor:      memory.NewTransactor(),
		storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
			return nil
		}),
		closeFn: func() error { return nil },
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres storage requires dsn")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	catalog := postgres.NewCatalog(store)
	logger.WithField("driver", StorageDriverPostgres).Info("storage initialized")
	return &runtimeDependencies{
		users:           postgres.NewUserDirectory(store),
		catalog:         catalog,
		stock:           catalog,
		repo:            postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		transactor:      store,
		storageChecker:  healthcheck.NewPingChecker("storage", store),
		closeFn:         store.Close,
	}, nil
}
