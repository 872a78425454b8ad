package ordering

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// LineView — позиция заказа в ответе.
type LineView struct {
	ProductID   string
	ProductName string
	ImageURL    string
	Unit        string
	Quantity    int
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Subtotal    decimal.Decimal
}

// CustomerView — контактный снапшот покупателя.
type CustomerView struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// OrderView — полное представление заказа для транспортного слоя.
type OrderView struct {
	ID          string
	OrderNumber string
	UserID      string
	Lines       []LineView

	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal

	Status            domain.OrderStatus
	StatusDescription string
	Progress          int

	DeliveryAddress      string
	DeliveryInstructions string

	PaymentMethod        domain.PaymentMethod
	PaymentStatus        domain.PaymentStatus
	PaymentTransactionID string
	PaidAt               *time.Time

	EstimatedDeliveryAt *time.Time
	ActualDeliveryAt    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Customer CustomerView

	CancellationReason string
	CancelledAt        *time.Time
	Rating             int
	Feedback           string

	DeliveryPartnerName  string
	DeliveryPartnerPhone string

	Tracking []domain.TrackingEvent
	Version  int64
}

// OrderPage — страница представлений заказов.
type OrderPage struct {
	Items []OrderView
	Page  int
	Size  int
	Total int
}

// ListOptions — параметры постраничного списка в терминах запроса.
type ListOptions struct {
	Page          int
	Size          int
	SortField     string
	SortDirection string
}

// PaymentOutcome — результат успешной оплаты.
type PaymentOutcome struct {
	Order OrderView
	Bill  domain.DigitalBill
}

func newOrderView(order domain.Order, user domain.User, tracking []domain.TrackingEvent) OrderView {
	lines := make([]LineView, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, LineView{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			ImageURL:    l.ImageURL,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			Price:       l.PriceAtTime,
			Discount:    l.DiscountAtTime,
			Subtotal:    l.Subtotal(),
		})
	}

	return OrderView{
		ID:                   order.ID,
		OrderNumber:          order.OrderNumber,
		UserID:               order.UserID,
		Lines:                lines,
		Subtotal:             order.Subtotal(),
		DeliveryCharge:       order.DeliveryCharge,
		Tax:                  order.TaxAmount,
		Total:                order.TotalAmount,
		Status:               order.Status,
		StatusDescription:    order.Status.Description(),
		Progress:             order.Progress(),
		DeliveryAddress:      order.DeliveryAddress,
		DeliveryInstructions: order.DeliveryInstructions,
		PaymentMethod:        order.PaymentMethod,
		PaymentStatus:        order.PaymentStatus,
		PaymentTransactionID: order.PaymentTransactionID,
		PaidAt:               order.PaidAt,
		EstimatedDeliveryAt:  order.EstimatedDeliveryAt,
		ActualDeliveryAt:     order.ActualDeliveryAt,
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
		Customer: CustomerView{
			ID:    user.ID,
			Name:  user.Username,
			Email: user.Email,
			Phone: user.Phone,
		},
		CancellationReason:   order.CancellationReason,
		CancelledAt:          order.CancelledAt,
		Rating:               order.Rating,
		Feedback:             order.Feedback,
		DeliveryPartnerName:  order.DeliveryPartnerName,
		DeliveryPartnerPhone: order.DeliveryPartnerPhone,
		Tracking:             tracking,
		Version:              order.Version,
	}
}

// trackingLog строит журнал отслеживания из таймлайна в порядке событий.
func trackingLog(events []domain.TimelineEvent) []domain.TrackingEvent {
	tracking := make([]domain.TrackingEvent, 0, len(events))
	for _, e := range events {
		if !e.IsTracking() {
			continue
		}
		tracking = append(tracking, domain.TrackingEvent{
			Type:        e.Type,
			Status:      e.Status,
			Description: e.Description,
			Location:    e.Location,
			Occurred:    e.Occurred,
		})
	}
	return tracking
}

// view собирает представление с контактами покупателя и журналом отслеживания.
// Ошибка справочника пользователей не мешает отдать заказ.
func (s *Service) view(ctx context.Context, order domain.Order) (OrderView, error) {
	user := s.customer(ctx, order.UserID)

	events, err := s.timeline.List(ctx, order.ID)
	if err != nil {
		return OrderView{}, err
	}
	return newOrderView(order, user, trackingLog(events)), nil
}

func (s *Service) customer(ctx context.Context, userID string) domain.User {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("customer snapshot unavailable")
		return domain.User{ID: userID}
	}
	return user
}

