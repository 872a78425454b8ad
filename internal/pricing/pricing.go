// Пакет pricing содержит чистые функции расчёта стоимости заказа.
// Никакого I/O: все значения приходят снапшотами из каталога.
package pricing

import (
	"github.com/shopspring/decimal"
)

// moneyScale — количество знаков после запятой для денежных сумм.
const moneyScale = 2

var hundred = decimal.NewFromInt(100)

// Config задаёт параметры доставки и налога.
type Config struct {
	// DeliveryThreshold — порог подытога, начиная с которого доставка бесплатна.
	DeliveryThreshold decimal.Decimal
	// DeliveryCharge — фиксированная стоимость доставки ниже порога.
	DeliveryCharge decimal.Decimal
	// TaxRate — доля налога от подытога (0.05 = 5%).
	TaxRate decimal.Decimal
}

// DefaultConfig возвращает наблюдаемые значения: порог 500, доставка 40, налог 5%.
func DefaultConfig() Config {
	return Config{
		DeliveryThreshold: decimal.NewFromInt(500),
		DeliveryCharge:    decimal.NewFromInt(40),
		TaxRate:           decimal.RequireFromString("0.05"),
	}
}

// Line — минимальный снапшот позиции, достаточный для расчёта.
type Line struct {
	PriceAtTime    decimal.Decimal
	Quantity       int
	DiscountAtTime decimal.Decimal
}

// Breakdown — итоговая раскладка суммы заказа.
type Breakdown struct {
	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// DiscountAmount переводит процент скидки в абсолютную сумму: price * pct / 100.
// Пустой процент означает отсутствие скидки.
func DiscountAmount(price decimal.Decimal, pct decimal.NullDecimal) decimal.Decimal {
	if !pct.Valid || pct.Decimal.IsZero() {
		return decimal.Zero
	}
	return price.Mul(pct.Decimal).Div(hundred).Round(moneyScale)
}

// LineSubtotal = priceAtTime * quantity - discountAtTime.
// Скидка вычитается один раз на позицию, а не на единицу товара.
func LineSubtotal(priceAtTime decimal.Decimal, quantity int, discountAtTime decimal.Decimal) decimal.Decimal {
	return priceAtTime.Mul(decimal.NewFromInt(int64(quantity))).Sub(discountAtTime)
}

// Subtotal суммирует подытоги всех позиций.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineSubtotal(l.PriceAtTime, l.Quantity, l.DiscountAtTime))
	}
	return sum
}

// DeliveryChargeFor возвращает стоимость доставки для подытога строго ниже порога.
func (c Config) DeliveryChargeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(c.DeliveryThreshold) {
		return c.DeliveryCharge
	}
	return decimal.Zero
}

// TaxFor считает налог от подытога (до доставки).
func (c Config) TaxFor(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.TaxRate).Round(moneyScale)
}

// Total = subtotal + deliveryCharge + tax.
func Total(subtotal, deliveryCharge, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Add(deliveryCharge).Add(tax)
}

// Quote рассчитывает полную раскладку для набора позиций.
func (c Config) Quote(lines []Line) Breakdown {
	subtotal := Subtotal(lines)
	charge := c.DeliveryChargeFor(subtotal)
	tax := c.TaxFor(subtotal)
	return Breakdown{
		Subtotal:       subtotal,
		DeliveryCharge: charge,
		Tax:            tax,
		Total:          Total(subtotal, charge, tax),
	}
}
