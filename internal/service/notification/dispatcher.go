package notification

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
)

const (
	defaultQueueSize       = 256
	defaultWorkers         = 4
	defaultDeliveryTimeout = 5 * time.Second
)

// Deliverer доставляет уведомление в конкретный транспорт.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, n domain.Notification) error
}

// Options описывает параметры dispatcher.
type Options struct {
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
	Logger          *log.Entry
	Metrics         *metrics.OrderMetrics
}

// Option настраивает dispatcher.
type Option func(*Options)

// WithQueueSize задаёт ёмкость очереди.
func WithQueueSize(size int) Option {
	return func(o *Options) {
		o.QueueSize = size
	}
}

// WithWorkers задаёт количество воркеров доставки.
func WithWorkers(workers int) Option {
	return func(o *Options) {
		o.Workers = workers
	}
}

// WithDeliveryTimeout ограничивает время одной доставки.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.DeliveryTimeout = timeout
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// Dispatcher — ограниченная асинхронная очередь уведомлений.
// Notify никогда не блокирует вызывающего: при переполнении уведомление отбрасывается.
type Dispatcher struct {
	deliverers []Deliverer
	queue      chan domain.Notification
	workers    int
	timeout    time.Duration
	logger     *log.Entry
	metrics    *metrics.OrderMetrics

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewDispatcher создаёт dispatcher поверх набора транспортов.
func NewDispatcher(deliverers []Deliverer, options ...Option) *Dispatcher {
	opts := Options{
		QueueSize:       defaultQueueSize,
		Workers:         defaultWorkers,
		DeliveryTimeout: defaultDeliveryTimeout,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "notification-dispatcher")
	}

	return &Dispatcher{
		deliverers: deliverers,
		queue:      make(chan domain.Notification, opts.QueueSize),
		workers:    opts.Workers,
		timeout:    opts.DeliveryTimeout,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Notify ставит уведомление в очередь без ожидания.
func (d *Dispatcher) Notify(n domain.Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}

	select {
	case d.queue <- n:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n domain.Notification, reason string) {
	d.metrics.RecordNotification(string(n.Kind), metrics.ResultDropped)
	d.logger.WithFields(log.Fields{
		"order_id": n.OrderID,
		"kind":     n.Kind,
		"channel":  n.Channel,
		"reason":   reason,
	}).Warn("notification dropped")
}

// Run запускает воркеров и блокируется до отмены ctx.
// После отмены очередь закрывается, уже принятые уведомления дочитываются.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.WithField("workers", d.workers).Info("notification dispatcher started")

	deliveryCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(deliveryCtx)
	}

	<-ctx.Done()
	d.Close()
	d.wg.Wait()

	d.logger.Info("notification dispatcher stopped")
	return nil
}

// Close закрывает очередь. Повторный вызов безопасен.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// QueueDepth — текущее количество уведомлений в очереди.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// QueueCapacity — ёмкость очереди.
func (d *Dispatcher) QueueCapacity() int {
	return cap(d.queue)
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.metrics.SetQueueDepth(len(d.queue))
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	for _, deliverer := range d.deliverers {
		deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := deliverer.Deliver(deliverCtx, n)
		cancel()

		if err != nil {
			d.metrics.RecordNotification(string(n.Kind), metrics.ResultFailure)
			d.logger.WithError(err).WithFields(log.Fields{
				"order_id":  n.OrderID,
				"kind":      n.Kind,
				"channel":   n.Channel,
				"deliverer": deliverer.Name(),
			}).Error("notification delivery failed")
			continue
		}
		d.metrics.RecordNotification(string(n.Kind), metrics.ResultSuccess)
	}
}

var _ domain.NotificationSink = (*Dispatcher)(nil)
