package app

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/grocery-oms/internal/health"
	"github.com/vladislavdragonenkov/grocery-oms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/grocery-oms/internal/service/grpc"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/idempotency"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/notification"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/outbox"
	"github.com/vladislavdragonenkov/grocery-oms/internal/version"
)

const (
	notificationQueueThreshold = 0.8
	outboxBacklogLimit         = 1000
	outboxBacklogMaxAge        = 5 * time.Minute
)

// Dependencies содержит все собранные компоненты приложения.
type Dependencies struct {
	Storage      *runtimeDependencies
	Producer     *kafka.Producer
	Dispatcher   *notification.Dispatcher
	Orders       *ordering.Service
	OrderService *grpcsvc.OrderService
	RateLimiter  *grpcsvc.RateLimiter
	OutboxWorker *outbox.Worker
	Cleanup      *idempotency.CleanupWorker
	Health       *healthcheck.Handler
	Logger       *log.Entry
}

// NewDependencies создаёт и связывает все зависимости приложения.
// Без Kafka уведомления только логируются, а outbox копится до появления брокера.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	storage, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Ошибка уже залогирована, сервис работает без Kafka.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)

	orderMetrics := metrics.NewOrderMetrics()

	deliverers := []notification.Deliverer{
		notification.NewLogDeliverer(logger.WithField("component", "notification-log")),
	}
	if producer != nil {
		deliverers = append(deliverers, notification.NewKafkaDeliverer(producer))
	}
	dispatcher := notification.NewDispatcher(deliverers,
		notification.WithQueueSize(cfg.NotifyQueueSize),
		notification.WithWorkers(cfg.NotifyWorkers),
		notification.WithLogger(logger.WithField("component", "notification-dispatcher")),
		notification.WithMetrics(orderMetrics),
	)

	orders, err := createOrchestrator(cfg, storage, createSettlementGateway(cfg, logger), dispatcher, orderMetrics, logger)
	if err != nil {
		closeKafkaProducer(producer, logger)
		_ = storage.closeFn()
		return nil, err
	}

	orderService := grpcsvc.NewOrderService(orders, storage.idempotencyRepo,
		logger.WithField("component", "grpc-order-service"),
		grpcsvc.WithIdempotencyTTL(cfg.IdempotencyTTL),
	)
	limiter := grpcsvc.NewRateLimiter(grpcsvc.RateLimitConfig{
		RPS:         cfg.RateLimitRPS,
		Burst:       cfg.RateLimitBurst,
		StrictRPS:   cfg.RateLimitStrictRPS,
		StrictBurst: strictBurst(cfg.RateLimitStrictRPS),
	}, logger.WithField("component", "grpc-rate-limiter"))
	cleanup := idempotency.NewCleanupWorker(storage.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	deps := &Dependencies{
		Storage:      storage,
		Producer:     producer,
		Dispatcher:   dispatcher,
		Orders:       orders,
		OrderService: orderService,
		RateLimiter:  limiter,
		Cleanup:      cleanup,
		Health:       healthcheck.NewHandler(version.GetVersion()),
		Logger:       logger,
	}

	if producer != nil {
		deps.OutboxWorker = outbox.NewWorker(storage.outboxRepo,
			kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	}

	deps.Health.RegisterChecker("storage", storage.storageChecker)
	deps.Health.RegisterChecker("notifications", healthcheck.NewQueueChecker("notifications",
		dispatcher.QueueDepth, dispatcher.QueueCapacity(), notificationQueueThreshold))
	if deps.OutboxWorker != nil {
		deps.Health.RegisterChecker("outbox", newOutboxChecker(storage.outboxRepo, outboxBacklogLimit, outboxBacklogMaxAge))
	}

	return deps, nil
}

// Close освобождает внешние ресурсы. Воркеры к этому моменту должны быть остановлены.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	closeKafkaProducer(d.Producer, d.Logger)
	if d.Storage != nil && d.Storage.closeFn != nil {
		if err := d.Storage.closeFn(); err != nil {
			d.Logger.WithError(err).Warn("failed to close storage")
		}
	}
}

// strictBurst — запас строгого лимита: две секунды разрешённой скорости.
func strictBurst(rps float64) int {
	if rps <= 0 {
		return 0
	}
	return int(math.Ceil(rps * 2))
}

// outboxChecker сообщает degraded, когда outbox не разгребается.
type outboxChecker struct {
	repo   domain.OutboxRepository
	limit  int
	maxAge time.Duration
	now    func() time.Time
}

func newOutboxChecker(repo domain.OutboxRepository, limit int, maxAge time.Duration) *outboxChecker {
	return &outboxChecker{repo: repo, limit: limit, maxAge: maxAge, now: time.Now}
}

func (c *outboxChecker) Check(ctx context.Context) healthcheck.Check {
	start := time.Now()
	check := healthcheck.Check{Name: "outbox", Status: healthcheck.StatusHealthy}

	stats, err := c.repo.Stats(ctx)
	check.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		check.Status = healthcheck.StatusUnhealthy
		check.Message = err.Error()
		return check
	}

	check.Message = fmt.Sprintf("%d pending", stats.PendingCount)
	if stats.PendingCount > c.limit {
		check.Status = healthcheck.StatusDegraded
	}
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() && c.now().Sub(stats.OldestPendingAt) > c.maxAge {
		check.Status = healthcheck.StatusDegraded
	}
	return check
}
