package ordering

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
	"github.com/vladislavdragonenkov/grocery-oms/internal/pricing"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

// Типы доменных событий в outbox.
const (
	EventOrderPlaced          = "order.placed"
	EventOrderStatusChanged   = "order.status_changed"
	EventOrderCancelled       = "order.cancelled"
	EventOrderPaymentRecorded = "order.payment_recorded"
	EventOrderRated           = "order.rated"
	EventOrderDelayReported   = "order.delay_reported"
)

const (
	initialDeliveryWindow  = 2 * time.Hour
	outForDeliveryWindow   = 45 * time.Minute
	orderNumberPrefix      = "ORD-"
	aggregateTypeOrder     = "order"
	maxSaveAttempts        = 3
	baseConflictRetryDelay = 10 * time.Millisecond
)

// Имена операций для метрики длительности.
const (
	opCreateOrder       = "create_order"
	opCancelOrder       = "cancel_order"
	opUpdateStatus      = "update_status"
	opProcessPayment    = "process_payment"
	opRateOrder         = "rate_order"
	opAssignPartner     = "assign_delivery_partner"
	opReportDelay       = "report_delay"
	opReportLocation    = "report_location"
	opReportPreparation = "report_preparation"
)

// Dependencies — коллабораторы оркестратора. Все поля, кроме Notifier, обязательны.
type Dependencies struct {
	Users      domain.UserDirectory
	Catalog    domain.ProductCatalog
	Ledger     *inventory.Ledger
	Orders     domain.OrderRepository
	Timeline   domain.TimelineRepository
	Outbox     domain.OutboxRepository
	Transactor domain.Transactor
	Notifier   domain.NotificationSink
	Payments   *payment.Processor
}

// Options описывает необязательные параметры оркестратора.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.OrderMetrics
	Pricing pricing.Config
	Clock   func() time.Time
}

// Option настраивает оркестратор.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics задаёт метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithPricing задаёт параметры доставки и налога.
func WithPricing(cfg pricing.Config) Option {
	return func(o *Options) {
		o.Pricing = cfg
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// Service — оркестратор жизненного цикла заказа.
// Все мутации одного заказа сериализуются, платёжный шлюз вызывается вне блокировок.
type Service struct {
	users      domain.UserDirectory
	catalog    domain.ProductCatalog
	ledger     *inventory.Ledger
	orders     domain.OrderRepository
	timeline   domain.TimelineRepository
	outbox     domain.OutboxRepository
	transactor domain.Transactor
	notifier   domain.NotificationSink
	payments   *payment.Processor

	pricing pricing.Config
	clock   func() time.Time
	logger  *log.Entry
	metrics *metrics.OrderMetrics

	locks *keyedMutex
}

// NewService собирает оркестратор.
func NewService(deps Dependencies, options ...Option) *Service {
	opts := Options{
		Pricing: pricing.DefaultConfig(),
		Clock:   time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-orchestrator")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Service{
		users:      deps.Users,
		catalog:    deps.Catalog,
		ledger:     deps.Ledger,
		orders:     deps.Orders,
		timeline:   deps.Timeline,
		outbox:     deps.Outbox,
		transactor: deps.Transactor,
		notifier:   notifier,
		payments:   deps.Payments,
		pricing:    opts.Pricing,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		locks:      newKeyedMutex(),
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.RecordOperationDuration(operation, time.Since(start))
}

type noopNotifier struct{}

func (noopNotifier) Notify(domain.Notification) {}
