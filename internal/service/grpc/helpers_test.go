package grpcsvc_test

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/grocery-oms/internal/service/grpc"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/memory"
)

const (
	bufSize    = 1024 * 1024
	ownerID    = "user-1"
	strangerID = "user-2"
)

type stubGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGateway) Settle(context.Context, domain.Order, domain.PaymentMethod) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return "TXN-OK000001", nil
}

func (g *stubGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testEnv struct {
	client  *grpcsvc.Client
	catalog *memory.Catalog
	gateway *stubGateway
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func newTestEnv(t *testing.T, serverOpts ...grpc.ServerOption) *testEnv {
	t.Helper()

	logger := loggerForTests()
	catalog := memory.NewCatalog(
		domain.Product{ID: "milk", Name: "Milk", Price: decimal.NewFromInt(60), Stock: 20, Available: true, Unit: "l"},
		domain.Product{ID: "bread", Name: "Bread", Price: decimal.NewFromInt(45), Stock: 5, Available: true, Unit: "pc"},
	)
	users := memory.NewUserDirectory(
		domain.User{ID: ownerID, Username: "owner", Email: "owner@example.com"},
		domain.User{ID: strangerID, Username: "stranger", Email: "stranger@example.com"},
	)
	gateway := &stubGateway{}

	orders := ordering.NewService(ordering.Dependencies{
		Users:      users,
		Catalog:    catalog,
		Ledger:     inventory.NewLedger(catalog),
		Orders:     memory.NewOrderRepository(),
		Timeline:   memory.NewTimelineRepository(),
		Outbox:     memory.NewOutboxRepository(),
		Transactor: memory.NewTransactor(),
		Payments:   payment.NewProcessor(gateway),
	}, ordering.WithLogger(logger))
	service := grpcsvc.NewOrderService(orders, memory.NewIdempotencyRepository(), logger)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(serverOpts...)
	grpcsvc.RegisterOrderServiceServer(server, service)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: grpcsvc.NewClient(conn), catalog: catalog, gateway: gateway}
}

func owner() context.Context {
	return grpcsvc.AsUser(context.Background(), ownerID)
}

func (e *testEnv) call(t *testing.T, ctx context.Context, method string, fields map[string]any) map[string]any {
	t.Helper()
	resp, err := e.client.Call(ctx, method, fields)
	require.NoError(t, err, method)
	return resp
}

func (e *testEnv) placeOrder(t *testing.T, items ...any) map[string]any {
	t.Helper()
	return e.call(t, owner(), grpcsvc.MethodCreateOrder, map[string]any{
		"items":            items,
		"delivery_address": "12 Market Street",
		"payment_method":   "card",
	})
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.catalog.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func item(productID string, qty int) map[string]any {
	return map[string]any{"product_id": productID, "quantity": qty}
}

func card() map[string]any {
	return map[string]any{
		"number":       "4111111111111111",
		"expiry_month": "12",
		"expiry_year":  "2030",
		"cvv":          "123",
		"holder_name":  "Owner",
	}
}

func requireCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected grpc status, got %v", err)
	require.Equal(t, want, st.Code(), st.Message())
}
