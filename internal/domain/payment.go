package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ещё не проводилась или не завершилась.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusPaid — шлюз подтвердил списание.
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusFailed — валидация или шлюз отклонили платёж.
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusRefundDue — оплаченный заказ отменён, возврат подразумевается, но не автоматизирован.
	PaymentStatusRefundDue PaymentStatus = "REFUND_DUE"
)

// PaymentMethod — закрытое множество способов оплаты.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodUPI  PaymentMethod = "UPI"
	PaymentMethodCOD  PaymentMethod = "COD"
)

// ParsePaymentMethod разбирает строку без учёта регистра.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))) {
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	case PaymentMethodCOD:
		return PaymentMethodCOD, nil
	default:
		return "", NewPaymentError(ErrUnsupportedMethod, "", raw)
	}
}

// PaymentInstrument — данные конкретного способа оплаты.
// Реализации ограничены этим пакетом, поэтому type switch по ним исчерпывающий.
type PaymentInstrument interface {
	Method() PaymentMethod
	isPaymentInstrument()
}

// CardDetails — реквизиты банковской карты.
type CardDetails struct {
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
	HolderName  string
}

func (CardDetails) Method() PaymentMethod { return PaymentMethodCard }
func (CardDetails) isPaymentInstrument()  {}

// UPIDetails — UPI идентификатор вида user@bank.
type UPIDetails struct {
	ID string
}

func (UPIDetails) Method() PaymentMethod { return PaymentMethodUPI }
func (UPIDetails) isPaymentInstrument()  {}

// CashOnDelivery — оплата курьеру, без реквизитов.
type CashOnDelivery struct{}

func (CashOnDelivery) Method() PaymentMethod { return PaymentMethodCOD }
func (CashOnDelivery) isPaymentInstrument()  {}

// BillItem — строка цифрового чека.
type BillItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	Discount decimal.Decimal
	Subtotal decimal.Decimal
}

// DigitalBill — квитанция: проекция заказа и платёжных данных.
// Signature — косметическая метка, не средство защиты.
type DigitalBill struct {
	BillNumber      string
	OrderNumber     string
	IssuedAt        time.Time
	PaymentMethod   PaymentMethod
	TransactionID   string
	CustomerName    string
	CustomerEmail   string
	DeliveryAddress string
	Items           []BillItem
	Subtotal        decimal.Decimal
	DeliveryCharge  decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Signature       string
}
