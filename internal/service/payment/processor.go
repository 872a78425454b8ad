package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
)

// Result — успешный исход оплаты.
type Result struct {
	Method        domain.PaymentMethod
	TransactionID string
	PaidAt        time.Time
	Bill          domain.DigitalBill
}

// ProcessorOption настраивает Processor.
type ProcessorOption func(*Processor)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics задаёт метрики платежей.
func WithMetrics(m *metrics.OrderMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.clock = clock
	}
}

// WithCODTransactionIDs подменяет генератор transaction id для оплаты при получении.
func WithCODTransactionIDs(next func() string) ProcessorOption {
	return func(p *Processor) {
		p.newTxnID = next
	}
}

// Processor валидирует платёжный инструмент, проводит списание и строит квитанцию.
// Статус заказа процессор не трогает: исход фиксирует оркестратор.
type Processor struct {
	gateway  domain.SettlementGateway
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	clock    func() time.Time
	newTxnID func() string
}

// NewProcessor создаёт процессор поверх шлюза.
func NewProcessor(gateway domain.SettlementGateway, options ...ProcessorOption) *Processor {
	p := &Processor{
		gateway:  gateway,
		clock:    time.Now,
		newTxnID: NewTransactionID,
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "payment-processor")
	}
	return p
}

// Process проводит оплату заказа выбранным инструментом.
// Ошибки имеют тип *domain.PaymentError; TransactionID заполнен, если отказ случился в шлюзе.
func (p *Processor) Process(ctx context.Context, order domain.Order, user domain.User, instrument domain.PaymentInstrument) (Result, error) {
	if instrument == nil {
		return Result{}, p.fail("", domain.NewPaymentError(domain.ErrUnsupportedMethod, "", "payment instrument is required"), order)
	}
	method := instrument.Method()
	logger := p.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"method":   method,
	})

	var (
		txnID string
		err   error
	)
	switch inst := instrument.(type) {
	case domain.CardDetails:
		if err = ValidateCardDetails(inst, p.clock()); err == nil {
			txnID, err = p.gateway.Settle(ctx, order, method)
		}
	case domain.UPIDetails:
		if err = VerifyUPI(inst.ID); err == nil {
			txnID, err = p.gateway.Settle(ctx, order, method)
		}
	case domain.CashOnDelivery:
		// Деньги получит курьер, шлюз не участвует.
		txnID = p.newTxnID()
	default:
		err = domain.NewPaymentError(domain.ErrUnsupportedMethod, "", string(method))
	}
	if err != nil {
		return Result{}, p.fail(method, err, order)
	}

	paidAt := p.clock().UTC()
	p.metrics.RecordPayment(string(method), metrics.ResultSuccess)
	logger.WithField("transaction_id", txnID).Info("payment processed")

	return Result{
		Method:        method,
		TransactionID: txnID,
		PaidAt:        paidAt,
		Bill:          GenerateDigitalBill(order, user, txnID, method, paidAt),
	}, nil
}

func (p *Processor) fail(method domain.PaymentMethod, err error, order domain.Order) error {
	p.metrics.RecordPayment(string(method), metrics.ResultFailure)

	entry := p.logger.WithError(err).WithFields(log.Fields{
		"order_id": order.ID,
		"method":   method,
	})
	if pe, ok := domain.AsPaymentError(err); ok {
		entry.WithField("transaction_id", pe.TransactionID).Warn("payment rejected")
		return err
	}
	entry.Error("payment failed with unexpected error")
	return domain.NewPaymentError(domain.ErrGatewayError, "", err.Error())
}
