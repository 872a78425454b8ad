package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// ErrCircuitOpen возвращается, пока breaker не пропускает вызовы.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через circuit breaker.
// fn вызывается без удержания мьютекса: долгий вызов шлюза не блокирует остальных.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("Circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("Circuit breaker opened")
		}

		return err
	}

	// Успешное выполнение - сбрасываем счётчик
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("Circuit breaker closed")
	}
	cb.failures = 0

	return nil
}

// BreakingGateway защищает SettlementGateway circuit breaker'ом.
type BreakingGateway struct {
	next    domain.SettlementGateway
	breaker *CircuitBreaker
}

// NewBreakingGateway оборачивает шлюз.
func NewBreakingGateway(next domain.SettlementGateway, breaker *CircuitBreaker) *BreakingGateway {
	return &BreakingGateway{next: next, breaker: breaker}
}

// Settle пропускает вызов через breaker; при открытом breaker сразу отдаёт GatewayError.
func (g *BreakingGateway) Settle(ctx context.Context, order domain.Order, method domain.PaymentMethod) (string, error) {
	var txnID string
	err := g.breaker.Execute("settle", func() error {
		var settleErr error
		txnID, settleErr = g.next.Settle(ctx, order, method)
		return settleErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", domain.NewPaymentError(domain.ErrGatewayError, "", "payment gateway is temporarily unavailable")
	}
	return txnID, err
}

var _ domain.SettlementGateway = (*BreakingGateway)(nil)
