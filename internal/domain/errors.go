package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — общий корень для всех "не найдено".
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound возвращается, если пользователь не найден в справочнике.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrUnauthorized — заказ запрошен не владельцем.
	ErrUnauthorized = errors.New("order does not belong to requesting user")
	// ErrOutOfStock — товар недоступен или остатка не хватает.
	ErrOutOfStock = errors.New("insufficient stock")
	// ErrInvalidTransition — переход статуса запрещён машиной состояний.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidArgument — некорректные входные данные запроса.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrAlreadyPaid — повторная оплата уже оплаченного заказа.
	ErrAlreadyPaid = errors.New("order is already paid")

	// Платёжная таксономия. Конкретные ошибки приходят как *PaymentError.
	ErrInvalidCard       = errors.New("invalid card details")
	ErrInvalidUpi        = errors.New("invalid upi id")
	ErrGatewayError      = errors.New("payment gateway error")
	ErrUnsupportedMethod = errors.New("unsupported payment method")

	// Инварианты агрегата заказа.
	ErrUserRequired            = errors.New("user_id is required")
	ErrLinesRequired           = errors.New("order must contain at least one line")
	ErrLineQtyInvalid          = errors.New("line quantity must be greater than zero")
	ErrLinePriceInvalid        = errors.New("line price must be non-negative")
	ErrDeliveryAddressRequired = errors.New("delivery address is required")
	ErrTotalMismatch           = errors.New("order total does not match lines, delivery charge and tax")
	ErrRatingInvalid           = errors.New("rating must be between 1 and 5")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-хранилища.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// OutOfStockError несёт запрошенное и доступное количество.
type OutOfStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

// Is позволяет сопоставлять ошибку с ErrOutOfStock.
func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// PaymentError описывает отказ платёжного процессора.
// TransactionID пуст, если отказ случился до обращения к шлюзу.
type PaymentError struct {
	Kind          error
	TransactionID string
	Reason        string
}

func (e *PaymentError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

// Unwrap отдаёт sentinel вида ошибки.
func (e *PaymentError) Unwrap() error {
	return e.Kind
}

// NewPaymentError конструирует платёжную ошибку заданного вида.
func NewPaymentError(kind error, txnID, reason string) *PaymentError {
	return &PaymentError{Kind: kind, TransactionID: txnID, Reason: reason}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound покрывает пользователей, товары и заказы.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsPaymentError извлекает *PaymentError из цепочки.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// InvalidArgument оборачивает описание ошибки ввода.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
