package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// GenerateDigitalBill строит квитанцию из заказа и платёжных данных.
// Функция детерминирована: повторный вызов с теми же аргументами даёт ту же квитанцию.
func GenerateDigitalBill(order domain.Order, user domain.User, txnID string, method domain.PaymentMethod, issuedAt time.Time) domain.DigitalBill {
	billNumber := "BILL-" + txnID

	items := make([]domain.BillItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, domain.BillItem{
			Name:     line.ProductName,
			Quantity: line.Quantity,
			Price:    line.PriceAtTime,
			Discount: line.DiscountAtTime,
			Subtotal: line.Subtotal(),
		})
	}

	return domain.DigitalBill{
		BillNumber:      billNumber,
		OrderNumber:     order.OrderNumber,
		IssuedAt:        issuedAt,
		PaymentMethod:   method,
		TransactionID:   txnID,
		CustomerName:    user.Username,
		CustomerEmail:   user.Email,
		DeliveryAddress: order.DeliveryAddress,
		Items:           items,
		Subtotal:        order.Subtotal(),
		DeliveryCharge:  order.DeliveryCharge,
		Tax:             order.TaxAmount,
		Total:           order.TotalAmount,
		Signature:       signature(billNumber, order),
	}
}

// signature — метка квитанции на основе UUIDv5; не является криптографической подписью.
func signature(billNumber string, order domain.Order) string {
	name := billNumber + "|" + order.OrderNumber + "|" + order.TotalAmount.StringFixed(2)
	return "SIG-" + strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String())
}
