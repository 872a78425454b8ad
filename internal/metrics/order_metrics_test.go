package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value читает текущее значение счётчика или gauge.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	if metric.Counter != nil {
		return metric.GetCounter().GetValue()
	}
	return metric.GetGauge().GetValue()
}

func TestNewOrderMetricsWithRegisterer_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	assert.Equal(t, 2.0, value(t, first.ordersCreated))
	assert.Same(t, first.transitions, second.transitions)
}

func TestOrderMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordOrderCancelled()
	m.RecordTransition("PENDING", "CONFIRMED")
	m.RecordTransition("PENDING", "CONFIRMED")
	m.RecordPayment("CARD", ResultSuccess)
	m.RecordReservationFailure()
	m.RecordCompensation()
	m.RecordCompensation()
	m.RecordNotification("ORDER_PLACED", ResultDropped)
	m.SetQueueDepth(7)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
	m.RecordOperationDuration("create_order", 15*time.Millisecond)

	assert.Equal(t, 1.0, value(t, m.ordersCancelled))
	assert.Equal(t, 2.0, value(t, m.transitions.WithLabelValues("PENDING", "CONFIRMED")))
	assert.Equal(t, 1.0, value(t, m.payments.WithLabelValues("CARD", ResultSuccess)))
	assert.Equal(t, 1.0, value(t, m.reservationFailures))
	assert.Equal(t, 2.0, value(t, m.compensations))
	assert.Equal(t, 1.0, value(t, m.notifications.WithLabelValues("ORDER_PLACED", ResultDropped)))
	assert.Equal(t, 7.0, value(t, m.queueDepth))
	assert.Equal(t, 1.0, value(t, m.timelineEvents))
	assert.Equal(t, 1.0, value(t, m.outboxEvents))

	observer, err := m.operationDuration.GetMetricWithLabelValues("create_order")
	require.NoError(t, err)
	metric := &dto.Metric{}
	require.NoError(t, observer.(prometheus.Histogram).Write(metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestOrderMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.RecordOrderCreated()
		m.RecordTransition("a", "b")
		m.SetQueueDepth(3)
		m.RecordOperationDuration("x", time.Second)
	})
}
