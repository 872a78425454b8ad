package ordering_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/memory"
)

var fixedNow = time.Date(2026, time.April, 20, 10, 0, 0, 0, time.UTC)

const (
	ownerID    = "user-1"
	strangerID = "user-2"
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (s *recordingSink) Notify(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) kinds() []domain.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]domain.NotificationKind, 0, len(s.notifications))
	for _, n := range s.notifications {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (s *recordingSink) on(channel domain.NotificationChannel) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Notification
	for _, n := range s.notifications {
		if n.Channel == channel {
			result = append(result, n)
		}
	}
	return result
}

type stubGateway struct {
	mu    sync.Mutex
	txn   string
	err   error
	calls int
}

func (g *stubGateway) Settle(context.Context, domain.Order, domain.PaymentMethod) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.txn, g.err
}

type harness struct {
	svc      *ordering.Service
	catalog  *memory.Catalog
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   *memory.OutboxRepository
	sink     *recordingSink
	gateway  *stubGateway
}

type harnessConfig struct {
	mode   inventory.Mode
	orders domain.OrderRepository
}

type harnessOption func(*harnessConfig)

func withMode(mode inventory.Mode) harnessOption {
	return func(c *harnessConfig) { c.mode = mode }
}

func withOrders(orders domain.OrderRepository) harnessOption {
	return func(c *harnessConfig) { c.orders = orders }
}

func product(id, price string, stock int, discount string) domain.Product {
	p := domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Available: stock > 0,
		Unit:      "kg",
	}
	if discount != "" {
		p.DiscountPercentage = decimal.NewNullDecimal(decimal.RequireFromString(discount))
	}
	return p
}

func newHarness(t *testing.T, products []domain.Product, options ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{mode: inventory.ModeAtomic, orders: memory.NewOrderRepository()}
	for _, option := range options {
		option(&cfg)
	}

	catalog := memory.NewCatalog(products...)
	users := memory.NewUserDirectory(
		domain.User{ID: ownerID, Username: "owner", Email: "owner@example.com", Phone: "+100"},
		domain.User{ID: strangerID, Username: "stranger", Email: "stranger@example.com"},
	)
	gateway := &stubGateway{txn: "TXN-OK000001"}
	sink := &recordingSink{}
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	clock := func() time.Time { return fixedNow }

	svc := ordering.NewService(ordering.Dependencies{
		Users:      users,
		Catalog:    catalog,
		Ledger:     inventory.NewLedger(catalog, inventory.WithMode(cfg.mode)),
		Orders:     cfg.orders,
		Timeline:   timeline,
		Outbox:     outbox,
		Transactor: memory.NewTransactor(),
		Notifier:   sink,
		Payments:   payment.NewProcessor(gateway, payment.WithClock(clock)),
	}, ordering.WithClock(clock))

	return &harness{
		svc:      svc,
		catalog:  catalog,
		orders:   cfg.orders,
		timeline: timeline,
		outbox:   outbox,
		sink:     sink,
		gateway:  gateway,
	}
}

func (h *harness) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := h.catalog.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (h *harness) place(t *testing.T, lines ...ordering.LineInput) ordering.OrderView {
	t.Helper()
	view, err := h.svc.CreateOrder(context.Background(), createInput(lines...))
	require.NoError(t, err)
	return view
}

func (h *harness) advance(t *testing.T, orderID string, statuses ...domain.OrderStatus) ordering.OrderView {
	t.Helper()
	var view ordering.OrderView
	for _, status := range statuses {
		var err error
		view, err = h.svc.UpdateStatus(context.Background(), orderID, status)
		require.NoError(t, err, "transition to %s", status)
	}
	return view
}

func (h *harness) outboxTypes() []string {
	var types []string
	for _, msg := range h.outbox.AllPending() {
		types = append(types, msg.EventType)
	}
	return types
}

func createInput(lines ...ordering.LineInput) ordering.CreateOrderInput {
	return ordering.CreateOrderInput{
		UserID:          ownerID,
		Lines:           lines,
		DeliveryAddress: "12 Market Street",
		PaymentMethod:   "card",
	}
}

func line(productID string, qty int) ordering.LineInput {
	return ordering.LineInput{ProductID: productID, Quantity: qty}
}

func validCard() domain.CardDetails {
	return domain.CardDetails{Number: "4111111111111111", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123", HolderName: "Owner"}
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
