package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/grocery-oms/internal/pricing"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт подтверждения магазином.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed — магазин принял заказ.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusPreparing — заказ собирается.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusOutForDelivery — заказ передан курьеру.
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	// OrderStatusDelivered — заказ доставлен (терминальный).
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён (терминальный).
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded — административный возврат (терминальный).
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// AllOrderStatuses перечисляет статусы в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// transitions — разрешённые переходы. Терминальные статусы не имеют исходящих рёбер.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusRefunded},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusRefunded},
}

// ParseOrderStatus разбирает строку в статус из закрытого множества.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	for _, s := range AllOrderStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", InvalidArgument("unknown order status %q", raw)
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет ребро s -> to.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Description возвращает человекочитаемое описание статуса.
func (s OrderStatus) Description() string {
	switch s {
	case OrderStatusPending:
		return "Order is pending confirmation"
	case OrderStatusConfirmed:
		return "Order has been confirmed and is being processed"
	case OrderStatusPreparing:
		return "Your order is being prepared"
	case OrderStatusOutForDelivery:
		return "Your order is out for delivery"
	case OrderStatusDelivered:
		return "Order has been delivered successfully"
	case OrderStatusCancelled:
		return "Order has been cancelled"
	case OrderStatusRefunded:
		return "Order has been refunded"
	default:
		return "Unknown status"
	}
}

// Progress возвращает процент прогресса доставки для статуса.
func (s OrderStatus) Progress() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusConfirmed:
		return 25
	case OrderStatusPreparing:
		return 50
	case OrderStatusOutForDelivery:
		return 75
	case OrderStatusDelivered:
		return 100
	default:
		return 0
	}
}

// OrderLine — позиция заказа со снапшотом цены и скидки на момент создания.
type OrderLine struct {
	ID          string
	ProductID   string
	ProductName string
	Unit        string
	ImageURL    string
	Quantity    int
	// PriceAtTime — цена за единицу на момент заказа.
	PriceAtTime decimal.Decimal
	// DiscountAtTime — абсолютная скидка на позицию, уже переведённая из процента.
	DiscountAtTime decimal.Decimal
}

// Subtotal всегда пересчитывается из снапшот-полей.
func (l OrderLine) Subtotal() decimal.Decimal {
	return pricing.LineSubtotal(l.PriceAtTime, l.Quantity, l.DiscountAtTime)
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID                   string
	OrderNumber          string
	UserID               string
	Lines                []OrderLine
	DeliveryAddress      string
	DeliveryInstructions string

	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	PaymentTransactionID string
	PaidAt               *time.Time

	Status         OrderStatus
	DeliveryCharge decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal

	EstimatedDeliveryAt *time.Time
	ActualDeliveryAt    *time.Time

	// Rating == 0 означает, что оценки ещё нет.
	Rating             int
	Feedback           string
	CancellationReason string
	CancelledAt        *time.Time

	DeliveryPartnerName  string
	DeliveryPartnerPhone string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal суммирует подытоги позиций.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Recalculate заново выводит TotalAmount из позиций, доставки и налога.
func (o *Order) Recalculate() {
	o.TotalAmount = pricing.Total(o.Subtotal(), o.DeliveryCharge, o.TaxAmount)
}

// CanBeCancelled := status in {PENDING, CONFIRMED}.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// IsInProgress сообщает, что заказ собирается или уже в доставке.
func (o *Order) IsInProgress() bool {
	return o.Status == OrderStatusPreparing || o.Status == OrderStatusOutForDelivery
}

// IsTerminal сообщает, что заказ больше не принимает переходов.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// CanTransition проверяет переход из текущего статуса.
func (o *Order) CanTransition(to OrderStatus) bool {
	return o.Status.CanTransitionTo(to)
}

// CanBeRated: оценить можно только доставленный и ещё не оценённый заказ.
func (o *Order) CanBeRated() bool {
	return o.Status == OrderStatusDelivered && o.Rating == 0
}

// Progress возвращает процент прогресса доставки.
func (o *Order) Progress() int {
	return o.Status.Progress()
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.DeliveryAddress == "" {
		errs = append(errs, ErrDeliveryAddressRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	for _, l := range o.Lines {
		if l.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if l.PriceAtTime.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}
	if o.Rating < 0 || o.Rating > 5 {
		errs = append(errs, ErrRatingInvalid)
	}

	expected := pricing.Total(o.Subtotal(), o.DeliveryCharge, o.TaxAmount)
	if !expected.Equal(o.TotalAmount) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// Clone возвращает глубокую копию заказа, чтобы хранилища не делили слайсы и указатели.
func (o Order) Clone() Order {
	c := o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	c.PaidAt = cloneTime(o.PaidAt)
	c.EstimatedDeliveryAt = cloneTime(o.EstimatedDeliveryAt)
	c.ActualDeliveryAt = cloneTime(o.ActualDeliveryAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
