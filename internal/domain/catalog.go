package domain

import (
	"github.com/shopspring/decimal"
)

// Product — товар каталога в том виде, в каком его видит ядро заказов.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// DiscountPercentage 0..100; NULL означает "без скидки".
	DiscountPercentage decimal.NullDecimal
	Stock              int
	Available          bool
	Unit               string
	ImageURL           string
}

// Purchasable проверяет и флаг доступности, и остаток.
func (p Product) Purchasable(qty int) bool {
	return p.Available && p.Stock >= qty
}

// StockLevel — состояние остатка после reserve/release.
type StockLevel struct {
	ProductID string
	Stock     int
	Available bool
}

// StockRequest — запрос на резерв одной позиции.
type StockRequest struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// User — снапшот пользователя из внешнего справочника.
type User struct {
	ID       string
	Username string
	Email    string
	Phone    string
}
