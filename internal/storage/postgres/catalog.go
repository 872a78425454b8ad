package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// Catalog — каталог товаров и хранилище остатков поверх таблицы products.
// Каждое изменение остатка делается одним условным UPDATE, поэтому проверка и списание атомарны.
type Catalog struct {
	store *Store
}

// NewCatalog создаёт PostgreSQL-каталог.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{store: store}
}

// GetProduct возвращает снапшот товара.
func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		p        domain.Product
		discount decimal.NullDecimal
	)
	err := c.store.executor(ctx).QueryRowContext(ctx, `
		SELECT id, name, price, discount_percentage, stock, available, unit, image_url
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &discount, &p.Stock, &p.Available, &p.Unit, &p.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	p.DiscountPercentage = discount
	return p, nil
}

// Reserve списывает qty, если товар доступен и остатка хватает.
// Флаг доступности снимается, когда остаток доходит до нуля.
func (c *Catalog) Reserve(ctx context.Context, productID string, qty int) (domain.StockLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	exec := c.store.executor(ctx)

	level := domain.StockLevel{ProductID: productID}
	err := exec.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2,
		    available = (stock - $2) > 0,
		    updated_at = NOW()
		WHERE id = $1
		  AND available
		  AND stock >= $2
		RETURNING stock, available
	`, productID, qty).Scan(&level.Stock, &level.Available)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{}, fmt.Errorf("reserve stock: %w", err)
	}

	// Условие не выполнилось: читаем текущий остаток для ошибки.
	var (
		name      string
		stock     int
		available bool
	)
	err = exec.QueryRowContext(ctx, `SELECT name, stock, available FROM products WHERE id = $1`, productID).
		Scan(&name, &stock, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, domain.ErrProductNotFound
		}
		return domain.StockLevel{}, fmt.Errorf("read stock level: %w", err)
	}
	if !available {
		stock = 0
	}
	return domain.StockLevel{}, &domain.OutOfStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   qty,
		Available:   stock,
	}
}

// Release возвращает qty на склад. restoreAvailability поднимает флаг доступности.
func (c *Catalog) Release(ctx context.Context, productID string, qty int, restoreAvailability bool) (domain.StockLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	level := domain.StockLevel{ProductID: productID}
	err := c.store.executor(ctx).QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    available = CASE WHEN $3 THEN TRUE ELSE available END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING stock, available
	`, productID, qty, restoreAvailability).Scan(&level.Stock, &level.Available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, domain.ErrProductNotFound
		}
		return domain.StockLevel{}, fmt.Errorf("release stock: %w", err)
	}
	return level, nil
}

var (
	_ domain.ProductCatalog = (*Catalog)(nil)
	_ domain.StockStore     = (*Catalog)(nil)
)
