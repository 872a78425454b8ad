package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

var now = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

func testOrder() domain.Order {
	order := domain.Order{
		ID:              "order-1",
		OrderNumber:     "ORD-ABCDEF12",
		UserID:          "testuser",
		DeliveryAddress: "123 Test Street",
		Lines: []domain.OrderLine{
			{ProductID: "fresh-apples", ProductName: "Fresh Apples", Quantity: 2, PriceAtTime: decimal.NewFromInt(120)},
		},
		DeliveryCharge: decimal.NewFromInt(40),
		TaxAmount:      decimal.NewFromInt(12),
	}
	order.Recalculate()
	return order
}

var testUser = domain.User{ID: "testuser", Username: "testuser", Email: "test@example.com"}

type countingGateway struct {
	calls int
	txn   string
	err   error
}

func (g *countingGateway) Settle(context.Context, domain.Order, domain.PaymentMethod) (string, error) {
	g.calls++
	return g.txn, g.err
}

func newProcessor(gw domain.SettlementGateway) *payment.Processor {
	return payment.NewProcessor(gw,
		payment.WithClock(func() time.Time { return now }),
		payment.WithCODTransactionIDs(func() string { return "TXN-COD00001" }),
	)
}

func TestProcessor_CardSuccessBuildsBill(t *testing.T) {
	gw := &countingGateway{txn: "TXN-CARD0001"}

	res, err := newProcessor(gw).Process(context.Background(), testOrder(), testUser, domain.CardDetails{
		Number: "4111111111111111", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, "TXN-CARD0001", res.TransactionID)
	assert.Equal(t, now, res.PaidAt)
	assert.Equal(t, "BILL-TXN-CARD0001", res.Bill.BillNumber)
	assert.Equal(t, "ORD-ABCDEF12", res.Bill.OrderNumber)
	assert.True(t, res.Bill.Total.Equal(decimal.RequireFromString("292")))
	assert.True(t, res.Bill.Subtotal.Equal(decimal.NewFromInt(240)))
	assert.Equal(t, "test@example.com", res.Bill.CustomerEmail)
	require.Len(t, res.Bill.Items, 1)
	assert.Equal(t, "Fresh Apples", res.Bill.Items[0].Name)
}

func TestProcessor_InvalidCardNeverReachesGateway(t *testing.T) {
	gw := &countingGateway{txn: "TXN-UNUSED"}

	_, err := newProcessor(gw).Process(context.Background(), testOrder(), testUser, domain.CardDetails{
		Number: "123", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCard)
	assert.Zero(t, gw.calls)
}

func TestProcessor_InvalidUPI(t *testing.T) {
	gw := &countingGateway{}
	_, err := newProcessor(gw).Process(context.Background(), testOrder(), testUser, domain.UPIDetails{ID: "not-an-upi"})
	require.ErrorIs(t, err, domain.ErrInvalidUpi)
	assert.Zero(t, gw.calls)
}

func TestProcessor_GatewayFailurePropagatesTransactionID(t *testing.T) {
	gw := &countingGateway{err: domain.NewPaymentError(domain.ErrGatewayError, "TXN-DECLINED", "Payment processing failed")}

	_, err := newProcessor(gw).Process(context.Background(), testOrder(), testUser, domain.UPIDetails{ID: "user@bank"})
	pe, ok := domain.AsPaymentError(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, domain.ErrGatewayError)
	assert.Equal(t, "TXN-DECLINED", pe.TransactionID)
}

func TestProcessor_CashOnDeliverySkipsGateway(t *testing.T) {
	gw := &countingGateway{}

	res, err := newProcessor(gw).Process(context.Background(), testOrder(), testUser, domain.CashOnDelivery{})
	require.NoError(t, err)
	assert.Zero(t, gw.calls)
	assert.Equal(t, "TXN-COD00001", res.TransactionID)
	assert.Equal(t, domain.PaymentMethodCOD, res.Bill.PaymentMethod)
}

func TestProcessor_NilInstrument(t *testing.T) {
	_, err := newProcessor(&countingGateway{}).Process(context.Background(), testOrder(), testUser, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
}

func TestGenerateDigitalBill_Deterministic(t *testing.T) {
	order := testOrder()
	first := payment.GenerateDigitalBill(order, testUser, "TXN-1", domain.PaymentMethodCard, now)
	second := payment.GenerateDigitalBill(order, testUser, "TXN-1", domain.PaymentMethodCard, now)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^SIG-[0-9A-F-]{36}$`, first.Signature)

	other := payment.GenerateDigitalBill(order, testUser, "TXN-2", domain.PaymentMethodCard, now)
	assert.NotEqual(t, first.Signature, other.Signature)
}
