package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// Catalog — in-memory каталог товаров с атомарными операциями над остатком.
// Реализует domain.ProductCatalog и domain.StockStore.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Upsert добавляет или заменяет товар.
func (c *Catalog) Upsert(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// GetProduct возвращает снапшот товара.
func (c *Catalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// Products возвращает все товары, отсортированные по ID.
func (c *Catalog) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Reserve проверяет доступность и остаток и уменьшает его одним шагом под блокировкой.
// Остаток, упавший до нуля, снимает товар с продажи.
func (c *Catalog) Reserve(_ context.Context, productID string, qty int) (domain.StockLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.StockLevel{}, domain.ErrProductNotFound
	}
	if !p.Purchasable(qty) {
		available := p.Stock
		if !p.Available {
			available = 0
		}
		return domain.StockLevel{}, &domain.OutOfStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   qty,
			Available:   available,
		}
	}

	p.Stock -= qty
	if p.Stock == 0 {
		p.Available = false
	}
	c.products[productID] = p
	return domain.StockLevel{ProductID: p.ID, Stock: p.Stock, Available: p.Available}, nil
}

// Release возвращает остаток. restoreAvailability поднимает флаг доступности, если остаток > 0.
func (c *Catalog) Release(_ context.Context, productID string, qty int, restoreAvailability bool) (domain.StockLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.StockLevel{}, domain.ErrProductNotFound
	}

	p.Stock += qty
	if restoreAvailability && p.Stock > 0 {
		p.Available = true
	}
	c.products[productID] = p
	return domain.StockLevel{ProductID: p.ID, Stock: p.Stock, Available: p.Available}, nil
}

var (
	_ domain.ProductCatalog = (*Catalog)(nil)
	_ domain.StockStore     = (*Catalog)(nil)
)
