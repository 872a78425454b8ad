package ordering

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

// GetOrder возвращает заказ. Пустой requesterID означает публичное отслеживание
// и не проверяет владельца.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID string) (OrderView, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if requesterID != "" && requesterID != order.UserID {
		return OrderView{}, domain.ErrUnauthorized
	}
	return s.view(ctx, order)
}

// ListOrders возвращает страницу заказов пользователя.
func (s *Service) ListOrders(ctx context.Context, userID string, opts ListOptions) (OrderPage, error) {
	q, err := domain.ParseListQuery(opts.Page, opts.Size, opts.SortField, opts.SortDirection)
	if err != nil {
		return OrderPage{}, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return OrderPage{}, err
	}

	page, err := s.orders.ListByUser(ctx, user.ID, q)
	if err != nil {
		return OrderPage{}, fmt.Errorf("list orders: %w", err)
	}

	items := make([]OrderView, 0, len(page.Orders))
	for _, order := range page.Orders {
		items = append(items, newOrderView(order, user, nil))
	}
	return OrderPage{Items: items, Page: page.Page, Size: page.Size, Total: page.Total}, nil
}

// ListByStatus — административная очередь заказов в заданном статусе.
func (s *Service) ListByStatus(ctx context.Context, status domain.OrderStatus, opts ListOptions) (OrderPage, error) {
	if !status.Valid() {
		return OrderPage{}, domain.InvalidArgument("unknown order status %q", status)
	}
	q, err := domain.ParseListQuery(opts.Page, opts.Size, opts.SortField, opts.SortDirection)
	if err != nil {
		return OrderPage{}, err
	}

	page, err := s.orders.ListByStatus(ctx, status, q)
	if err != nil {
		return OrderPage{}, fmt.Errorf("list orders by status: %w", err)
	}

	users := make(map[string]domain.User)
	items := make([]OrderView, 0, len(page.Orders))
	for _, order := range page.Orders {
		user, ok := users[order.UserID]
		if !ok {
			user = s.customer(ctx, order.UserID)
			users[order.UserID] = user
		}
		items = append(items, newOrderView(order, user, nil))
	}
	return OrderPage{Items: items, Page: page.Page, Size: page.Size, Total: page.Total}, nil
}

// GetDigitalBill заново строит квитанцию оплаченного заказа.
func (s *Service) GetDigitalBill(ctx context.Context, orderID, userID string) (domain.DigitalBill, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return domain.DigitalBill{}, err
	}
	if order.PaymentStatus != domain.PaymentStatusPaid || order.PaidAt == nil {
		return domain.DigitalBill{}, fmt.Errorf("%w: bill not available for payment status %s", domain.ErrInvalidTransition, order.PaymentStatus)
	}

	user := s.customer(ctx, order.UserID)
	return payment.GenerateDigitalBill(order, user, order.PaymentTransactionID, order.PaymentMethod, *order.PaidAt), nil
}

// ownedOrder загружает заказ и проверяет, что его запрашивает владелец.
func (s *Service) ownedOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUnauthorized
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrUnauthorized
	}
	return order, nil
}
