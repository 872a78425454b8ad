package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

func TestOutboxRepository_EnqueueKeepsTopic(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOutboxRepository(store)

	mock.ExpectExec(`INSERT INTO outbox_messages`).
		WithArgs(sqlmock.AnyArg(), "order", "order-1", "order.placed", "grocery.custom", []byte(`{}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.placed",
		Topic:         "grocery.custom",
		Payload:       []byte(`{}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}

func TestOutboxRepository_PullPendingAndStats(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOutboxRepository(store)
	oldest := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, aggregate_type, aggregate_id, event_type, topic, payload FROM outbox_messages WHERE status = 'pending'`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "topic", "payload"}).
			AddRow("evt-1", "order", "order-1", "order.placed", "", []byte(`{"a":1}`)))
	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(created_at\) FROM outbox_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(1, oldest))

	pending, err := repo.PullPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].Topic)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, oldest, stats.OldestPendingAt)
}

func TestOutboxRepository_MarkUnknown(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOutboxRepository(store)

	mock.ExpectExec(`UPDATE outbox_messages`).
		WithArgs("evt-404", "sent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.MarkSent(context.Background(), "evt-404"), domain.ErrOutboxPublish)
}

func TestTimelineRepository_ListPreservesOrder(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewTimelineRepository(store)
	at := time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM timeline_events WHERE order_id = \$1 ORDER BY occurred ASC, id ASC`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "type", "status", "description", "location", "reason", "occurred"}).
			AddRow("order-1", domain.TimelineOrderPlaced, "PENDING", "Order placed", "", "", at).
			AddRow("order-1", domain.TimelineLocationUpdate, "OUT_FOR_DELIVERY", "Location updated", "Main St", "", at.Add(time.Hour)))

	events, err := repo.List(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.OrderStatusOutForDelivery, events[1].Status)
	assert.Equal(t, "Main St", events[1].Location)
	assert.True(t, events[1].IsTracking())
}
