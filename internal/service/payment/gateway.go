package payment

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

const (
	defaultSettlementDelay = 2 * time.Second
	defaultFailureRate     = 0.10
)

// NewTransactionID генерирует идентификатор вида TXN-XXXXXXXX.
func NewTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}

// GatewayOption настраивает SimulatedGateway.
type GatewayOption func(*SimulatedGateway)

// WithDelay задаёт задержку обработки платежа.
func WithDelay(delay time.Duration) GatewayOption {
	return func(g *SimulatedGateway) {
		g.delay = delay
	}
}

// WithFailureRate задаёт долю отказов шлюза в диапазоне [0,1].
func WithFailureRate(rate float64) GatewayOption {
	return func(g *SimulatedGateway) {
		g.failureRate = rate
	}
}

// WithRandom подменяет источник случайности (для тестов).
func WithRandom(random func() float64) GatewayOption {
	return func(g *SimulatedGateway) {
		g.random = random
	}
}

// WithTransactionIDs подменяет генератор transaction id.
func WithTransactionIDs(next func() string) GatewayOption {
	return func(g *SimulatedGateway) {
		g.newTxnID = next
	}
}

// SimulatedGateway имитирует внешний платёжный шлюз: задержка и случайные отказы.
type SimulatedGateway struct {
	delay       time.Duration
	failureRate float64
	random      func() float64
	newTxnID    func() string
}

// NewSimulatedGateway создаёт шлюз с задержкой 2s и 10% отказов по умолчанию.
func NewSimulatedGateway(options ...GatewayOption) *SimulatedGateway {
	g := &SimulatedGateway{
		delay:       defaultSettlementDelay,
		failureRate: defaultFailureRate,
		random:      rand.Float64,
		newTxnID:    NewTransactionID,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Settle выдаёт transaction id до обращения к "шлюзу", чтобы отказ тоже его нёс.
func (g *SimulatedGateway) Settle(ctx context.Context, _ domain.Order, _ domain.PaymentMethod) (string, error) {
	txnID := g.newTxnID()

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", domain.NewPaymentError(domain.ErrGatewayError, txnID, "Payment processing was interrupted")
		case <-timer.C:
		}
	}

	if g.random() < g.failureRate {
		return "", domain.NewPaymentError(domain.ErrGatewayError, txnID, "Payment processing failed")
	}
	return txnID, nil
}

var _ domain.SettlementGateway = (*SimulatedGateway)(nil)
