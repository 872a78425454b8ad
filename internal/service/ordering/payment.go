package ordering

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

// ProcessPayment проводит оплату заказа владельца. Шлюз вызывается без блокировок;
// исход (PAID или FAILED) фиксируется под блокировкой заказа. Статус заказа не меняется.
func (s *Service) ProcessPayment(ctx context.Context, orderID, userID string, instrument domain.PaymentInstrument) (PaymentOutcome, error) {
	defer s.observe(opProcessPayment, time.Now())

	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if err := payable(order); err != nil {
		return PaymentOutcome{}, err
	}

	user := s.customer(ctx, order.UserID)
	logger := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})

	result, payErr := s.payments.Process(ctx, order, user, instrument)
	if payErr != nil {
		pe, ok := domain.AsPaymentError(payErr)
		if !ok {
			return PaymentOutcome{}, payErr
		}
		// Отказ фиксируется даже если запрос уже отменён.
		if _, err := s.recordPaymentFailure(context.WithoutCancel(ctx), order.ID, instrument, pe); err != nil {
			logger.WithError(err).Error("failed to record payment failure")
		}
		return PaymentOutcome{}, payErr
	}

	updated, err := s.recordPaymentSuccess(ctx, order.ID, result)
	if err != nil {
		logger.WithError(err).WithField("transaction_id", result.TransactionID).Error("payment settled but outcome was not recorded")
		return PaymentOutcome{}, err
	}

	view, err := s.view(ctx, updated)
	if err != nil {
		return PaymentOutcome{}, err
	}
	return PaymentOutcome{Order: view, Bill: result.Bill}, nil
}

func payable(order domain.Order) error {
	if order.IsTerminal() {
		return fmt.Errorf("%w: order in status %s cannot be paid", domain.ErrInvalidTransition, order.Status)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return domain.ErrAlreadyPaid
	}
	return nil
}

func (s *Service) recordPaymentSuccess(ctx context.Context, orderID string, result payment.Result) (domain.Order, error) {
	return s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if order.PaymentStatus == domain.PaymentStatusPaid {
			return fmt.Errorf("%w: concurrent payment already recorded as %s", domain.ErrAlreadyPaid, order.PaymentTransactionID)
		}

		paidAt := result.PaidAt
		order.PaymentMethod = result.Method
		order.PaymentTransactionID = result.TransactionID
		order.PaidAt = &paidAt
		order.PaymentStatus = domain.PaymentStatusPaid
		// Заказ отменили, пока шёл платёж: деньги списаны, возврат должен быть.
		if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded {
			order.PaymentStatus = domain.PaymentStatusRefundDue
		}

		m.recordTimeline(domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelinePaymentRecorded,
			Status:      order.Status,
			Description: "Payment received via " + string(result.Method),
			Occurred:    paidAt,
		})
		m.emit(EventOrderPaymentRecorded, nil)
		m.notifyAll(s.notification(domain.NotificationPaymentConfirmed, domain.ChannelUser, order,
			"Payment received for order "+order.OrderNumber,
			map[string]any{
				"transaction_id": result.TransactionID,
				"bill_number":    result.Bill.BillNumber,
				"total":          order.TotalAmount.StringFixed(2),
			},
		))
		return nil
	})
}

func (s *Service) recordPaymentFailure(ctx context.Context, orderID string, instrument domain.PaymentInstrument, pe *domain.PaymentError) (domain.Order, error) {
	return s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		// Успешная оплата параллельного запроса важнее этого отказа.
		if order.PaymentStatus == domain.PaymentStatusPaid || order.PaymentStatus == domain.PaymentStatusRefundDue {
			m.skip = true
			return nil
		}

		if instrument != nil {
			order.PaymentMethod = instrument.Method()
		}
		order.PaymentStatus = domain.PaymentStatusFailed
		order.PaymentTransactionID = pe.TransactionID

		m.recordTimeline(domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelinePaymentRecorded,
			Status:      order.Status,
			Description: "Payment failed",
			Reason:      pe.Error(),
			Occurred:    s.now(),
		})
		m.emit(EventOrderPaymentRecorded, func(p *orderEventPayload) {
			p.Reason = pe.Error()
		})
		return nil
	})
}
