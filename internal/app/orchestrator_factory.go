package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

// createSettlementGateway собирает симулятор платёжного шлюза за circuit breaker.
func createSettlementGateway(cfg Config, logger *log.Entry) domain.SettlementGateway {
	simulated := payment.NewSimulatedGateway(
		payment.WithDelay(cfg.SettlementDelay),
		payment.WithFailureRate(cfg.SettlementFailureRate),
	)
	if cfg.BreakerMaxFailures <= 0 {
		return simulated
	}
	breaker := payment.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("component", "payment-breaker"))
	return payment.NewBreakingGateway(simulated, breaker)
}

// createOrchestrator собирает оркестратор заказов со всеми коллабораторами.
func createOrchestrator(
	cfg Config,
	deps *runtimeDependencies,
	gateway domain.SettlementGateway,
	notifier domain.NotificationSink,
	orderMetrics *metrics.OrderMetrics,
	logger *log.Entry,
) (*ordering.Service, error) {
	pricingCfg, err := cfg.Pricing()
	if err != nil {
		return nil, err
	}

	ledger := inventory.NewLedger(deps.stock,
		inventory.WithMode(inventory.Mode(cfg.ReservationMode)),
		inventory.WithRestoreAvailability(cfg.RestoreAvailabilityOnRelease),
		inventory.WithLogger(logger.WithField("component", "inventory-ledger")),
		inventory.WithMetrics(orderMetrics),
	)
	processor := payment.NewProcessor(gateway,
		payment.WithLogger(logger.WithField("component", "payment-processor")),
		payment.WithMetrics(orderMetrics),
	)

	return ordering.NewService(ordering.Dependencies{
		Users:      deps.users,
		Catalog:    deps.catalog,
		Ledger:     ledger,
		Orders:     deps.repo,
		Timeline:   deps.timelineRepo,
		Outbox:     deps.outboxRepo,
		Transactor: deps.transactor,
		Notifier:   notifier,
		Payments:   processor,
	},
		ordering.WithLogger(logger.WithField("component", "order-orchestrator")),
		ordering.WithMetrics(orderMetrics),
		ordering.WithPricing(pricingCfg),
	), nil
}
