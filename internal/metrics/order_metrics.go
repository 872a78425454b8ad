package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для меток result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
// Методы безопасны на nil-получателе: компоненты могут работать без метрик.
type OrderMetrics struct {
	// Счётчики заказов
	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	transitions     *prometheus.CounterVec

	payments *prometheus.CounterVec

	// Остатки
	reservationFailures prometheus.Counter
	compensations       prometheus.Counter

	operationDuration *prometheus.HistogramVec

	notifications *prometheus.CounterVec
	queueDepth    prometheus.Gauge

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики в реестре по умолчанию.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном реестре.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_orders_created_total",
			Help: "Total number of orders placed",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grocery_order_transitions_total",
			Help: "Order status transitions by source and target status",
		}, []string{"from", "to"}),
		payments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grocery_payments_total",
			Help: "Payment attempts by method and result",
		}, []string{"method", "result"}),
		reservationFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_stock_reservation_failures_total",
			Help: "Total number of stock reservations rejected for insufficient stock",
		}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_stock_compensations_total",
			Help: "Total number of reserved lines released to compensate a failed order",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "grocery_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grocery_notifications_total",
			Help: "Notifications by kind and delivery result",
		}, []string{"kind", "result"}),
		queueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "grocery_notification_queue_depth",
			Help: "Number of notifications waiting in the dispatcher queue",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grocery_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик оформленных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordTransition учитывает переход статуса.
func (m *OrderMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordPayment учитывает попытку оплаты.
func (m *OrderMetrics) RecordPayment(method, result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, result).Inc()
}

// RecordReservationFailure учитывает отказ в резерве.
func (m *OrderMetrics) RecordReservationFailure() {
	if m == nil {
		return
	}
	m.reservationFailures.Inc()
}

// RecordCompensation учитывает освобождение позиции при откате резерва.
func (m *OrderMetrics) RecordCompensation() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

// RecordOperationDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNotification учитывает уведомление с результатом доставки.
func (m *OrderMetrics) RecordNotification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// SetQueueDepth обновляет глубину очереди уведомлений.
func (m *OrderMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
