package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

var orderColumnNames = []string{
	"id", "order_number", "user_id", "delivery_address", "delivery_instructions",
	"payment_method", "payment_status", "payment_transaction_id", "paid_at",
	"status", "delivery_charge", "tax_amount", "total_amount",
	"estimated_delivery_at", "actual_delivery_at",
	"rating", "feedback", "cancellation_reason", "cancelled_at",
	"delivery_partner_name", "delivery_partner_phone",
	"version", "created_at", "updated_at",
}

var lineColumnNames = []string{
	"id", "product_id", "product_name", "unit", "image_url", "quantity", "price_at_time", "discount_at_time",
}

func sampleOrder(now time.Time) domain.Order {
	eta := now.Add(2 * time.Hour)
	order := domain.Order{
		ID:                  "order-1",
		OrderNumber:         "ORD-1A2B3C4D",
		UserID:              "user-1",
		DeliveryAddress:     "12 Market Street",
		PaymentMethod:       domain.PaymentMethodCard,
		PaymentStatus:       domain.PaymentStatusPending,
		Status:              domain.OrderStatusPending,
		DeliveryCharge:      money("40"),
		TaxAmount:           money("12"),
		EstimatedDeliveryAt: &eta,
		Lines: []domain.OrderLine{{
			ID:             "line-1",
			ProductID:      "fresh-apples",
			ProductName:    "Fresh Apples",
			Unit:           "kg",
			Quantity:       2,
			PriceAtTime:    money("120"),
			DiscountAtTime: money("0"),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.Recalculate()
	return order
}

func orderRow(order domain.Order) *sqlmock.Rows {
	return sqlmock.NewRows(orderColumnNames).AddRow(
		order.ID, order.OrderNumber, order.UserID, order.DeliveryAddress, order.DeliveryInstructions,
		string(order.PaymentMethod), string(order.PaymentStatus), order.PaymentTransactionID, nil,
		string(order.Status), order.DeliveryCharge.String(), order.TaxAmount.String(), order.TotalAmount.String(),
		*order.EstimatedDeliveryAt, nil,
		0, "", "", nil,
		"", "",
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
}

func TestOrderRepository_CreateWritesOrderAndLinesInTx(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	order := sampleOrder(time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WithArgs("line-1", "order-1", 0, "fresh-apples", "Fresh Apples", "kg", "", 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), order))
}

func TestOrderRepository_CreateDuplicateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	order := sampleOrder(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), order)
	assert.ErrorIs(t, err, domain.ErrOrderVersionConflict)
}

func TestOrderRepository_CreateJoinsOuterTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	timeline := NewTimelineRepository(store)
	order := sampleOrder(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_lines`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO timeline_events`).
		WithArgs("order-1", domain.TimelineOrderPlaced, "PENDING", "Order placed", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		return timeline.Append(ctx, domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelineOrderPlaced,
			Status:      domain.OrderStatusPending,
			Description: "Order placed",
		})
	})
	require.NoError(t, err)
}

func TestOrderRepository_GetLoadsLinesAndNullableTimes(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	order := sampleOrder(time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
		WithArgs("order-1").
		WillReturnRows(orderRow(order))
	mock.ExpectQuery(`FROM order_lines WHERE order_id = \$1 ORDER BY position ASC`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(lineColumnNames).
			AddRow("line-1", "fresh-apples", "Fresh Apples", "kg", "", 2, "120.00", "0"))

	got, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Nil(t, got.PaidAt)
	require.NotNil(t, got.EstimatedDeliveryAt)
	assert.True(t, got.TotalAmount.Equal(money("292")))
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].Subtotal().Equal(money("240")))
	assert.Empty(t, got.ValidateInvariants())
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)

	mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderColumnNames))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_ListByUserSortsAndPages(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	order := sampleOrder(time.Now().UTC())

	q, err := domain.ParseListQuery(1, 2, "totalAmount", "desc")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM orders WHERE user_id = \$1 ORDER BY total_amount DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("user-1", 2, 2).
		WillReturnRows(orderRow(order))
	mock.ExpectQuery(`FROM order_lines`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(lineColumnNames).
			AddRow("line-1", "fresh-apples", "Fresh Apples", "kg", "", 2, "120.00", "0"))

	page, err := repo.ListByUser(context.Background(), "user-1", q)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Orders, 1)
	assert.Len(t, page.Orders[0].Lines, 1)
}

func TestOrderRepository_ListByStatusEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)

	q, err := domain.ParseListQuery(0, 0, "", "")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE status = \$1`).
		WithArgs("CONFIRMED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	page, err := repo.ListByStatus(context.Background(), domain.OrderStatusConfirmed, q)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Orders)
	assert.Equal(t, domain.DefaultPageSize, page.Size)
}

func TestOrderRepository_SaveChecksVersion(t *testing.T) {
	order := sampleOrder(time.Now().UTC())
	order.Version = 3

	t.Run("updated", func(t *testing.T) {
		store, mock := newMockStore(t)
		repo := NewOrderRepository(store)

		mock.ExpectExec(`UPDATE orders SET .* version = version \+ 1, .* WHERE id = \$20 AND version = \$21`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Save(context.Background(), order))
	})

	t.Run("conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		repo := NewOrderRepository(store)

		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id FROM orders WHERE id = \$1`).
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("order-1"))

		err := repo.Save(context.Background(), order)
		assert.True(t, domain.IsVersionConflict(err))
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		repo := NewOrderRepository(store)

		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id FROM orders WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := repo.Save(context.Background(), order)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}
