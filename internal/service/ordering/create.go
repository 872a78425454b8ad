package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/pricing"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
)

// LineInput — запрошенная позиция.
type LineInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput — запрос на оформление заказа.
type CreateOrderInput struct {
	UserID               string
	Lines                []LineInput
	DeliveryAddress      string
	DeliveryInstructions string
	PaymentMethod        string
}

// NewOrderNumber генерирует номер заказа вида ORD-XXXXXXXX.
// Коллизии не проверяются: вероятность пренебрежимо мала.
func NewOrderNumber() string {
	return orderNumberPrefix + strings.ToUpper(uuid.NewString()[:8])
}

func (in CreateOrderInput) validate() (domain.PaymentMethod, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", domain.InvalidArgument("user id is required")
	}
	if len(in.Lines) == 0 {
		return "", domain.InvalidArgument("order must contain at least one line")
	}
	for i, line := range in.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return "", domain.InvalidArgument("line %d: product id is required", i)
		}
		if line.Quantity <= 0 {
			return "", domain.InvalidArgument("line %d: quantity must be greater than zero", i)
		}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return "", domain.InvalidArgument("delivery address is required")
	}
	return domain.ParsePaymentMethod(in.PaymentMethod)
}

// CreateOrder оформляет заказ: резервирует остатки, фиксирует цены и сохраняет заказ
// вместе с записью таймлайна и событием outbox в одной транзакции.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	defer s.observe(opCreateOrder, time.Now())

	method, err := in.validate()
	if err != nil {
		return OrderView{}, err
	}

	logger := s.logger.WithField("user_id", in.UserID)

	user, err := s.users.GetUser(ctx, in.UserID)
	if err != nil {
		return OrderView{}, err
	}

	products := make([]domain.Product, 0, len(in.Lines))
	requests := make([]domain.StockRequest, 0, len(in.Lines))
	for _, line := range in.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return OrderView{}, fmt.Errorf("%w: %s", err, line.ProductID)
		}
		products = append(products, product)
		requests = append(requests, domain.StockRequest{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
		})
	}

	reservation, err := s.ledger.ReserveAll(ctx, requests)
	if err != nil {
		s.metrics.RecordReservationFailure()
		var partial *inventory.PartialReservationError
		if errors.As(err, &partial) {
			logger.WithField("reserved_lines", len(partial.Reserved)).Warn("order rejected, earlier reservations stay committed")
		} else {
			logger.WithError(err).Warn("order rejected by inventory")
		}
		return OrderView{}, err
	}

	order := s.buildOrder(user, in, method, products)

	m := &mutation{}
	m.recordTimeline(domain.TimelineEvent{
		OrderID:     order.ID,
		Type:        domain.TimelineOrderPlaced,
		Status:      order.Status,
		Description: "Order placed",
		Occurred:    order.CreatedAt,
	})
	m.emit(EventOrderPlaced, nil)
	m.notifyAll(s.notification(domain.NotificationOrderPlaced, domain.ChannelUser, &order,
		"Your order "+order.OrderNumber+" has been placed",
		map[string]any{"total": order.TotalAmount.StringFixed(2), "email": user.Email},
	))

	err = s.transactor.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Create(txCtx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.writeEffects(txCtx, order, m)
	})
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist order, releasing stock")
		if releaseErr := s.ledger.ReleaseAll(context.WithoutCancel(ctx), reservation); releaseErr != nil {
			logger.WithError(releaseErr).WithField("order_id", order.ID).Error("failed to release stock after persistence failure")
		}
		return OrderView{}, err
	}

	s.metrics.RecordOrderCreated()
	s.afterCommit(m)

	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("order placed")

	return s.view(ctx, order)
}

// buildOrder фиксирует цены и скидки каталога в позициях и считает суммы.
func (s *Service) buildOrder(user domain.User, in CreateOrderInput, method domain.PaymentMethod, products []domain.Product) domain.Order {
	now := s.now()
	eta := now.Add(initialDeliveryWindow)

	lines := make([]domain.OrderLine, 0, len(in.Lines))
	priced := make([]pricing.Line, 0, len(in.Lines))
	for i, line := range in.Lines {
		product := products[i]
		discount := pricing.DiscountAmount(product.Price, product.DiscountPercentage)
		lines = append(lines, domain.OrderLine{
			ID:             uuid.NewString(),
			ProductID:      product.ID,
			ProductName:    product.Name,
			Unit:           product.Unit,
			ImageURL:       product.ImageURL,
			Quantity:       line.Quantity,
			PriceAtTime:    product.Price,
			DiscountAtTime: discount,
		})
		priced = append(priced, pricing.Line{
			PriceAtTime:    product.Price,
			Quantity:       line.Quantity,
			DiscountAtTime: discount,
		})
	}

	quote := s.pricing.Quote(priced)

	order := domain.Order{
		ID:                   uuid.NewString(),
		OrderNumber:          NewOrderNumber(),
		UserID:               user.ID,
		Lines:                lines,
		DeliveryAddress:      strings.TrimSpace(in.DeliveryAddress),
		DeliveryInstructions: strings.TrimSpace(in.DeliveryInstructions),
		PaymentMethod:        method,
		PaymentStatus:        domain.PaymentStatusPending,
		Status:               domain.OrderStatusPending,
		DeliveryCharge:       quote.DeliveryCharge,
		TaxAmount:            quote.Tax,
		EstimatedDeliveryAt:  &eta,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	order.Recalculate()
	return order
}
