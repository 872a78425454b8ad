package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrOrderVersionConflict)
	}
	// Храним копию, чтобы вызывающий не мутировал состояние хранилища.
	r.items[order.ID] = order.Clone()
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByUser возвращает страницу заказов пользователя.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, q domain.ListQuery) (domain.OrderPage, error) {
	return r.page(q, func(o domain.Order) bool { return o.UserID == userID }), nil
}

// ListByStatus возвращает страницу заказов в заданном статусе.
func (r *orderRepositoryInMemory) ListByStatus(_ context.Context, status domain.OrderStatus, q domain.ListQuery) (domain.OrderPage, error) {
	return r.page(q, func(o domain.Order) bool { return o.Status == status }), nil
}

func (r *orderRepositoryInMemory) page(q domain.ListQuery, match func(domain.Order) bool) domain.OrderPage {
	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if match(order) {
			matched = append(matched, order.Clone())
		}
	}
	r.mu.RUnlock()

	sortOrders(matched, q)

	result := domain.OrderPage{Page: q.Page, Size: q.Size, Total: len(matched)}
	from := q.Offset()
	if from >= len(matched) {
		result.Orders = []domain.Order{}
		return result
	}
	to := from + q.Size
	if to > len(matched) {
		to = len(matched)
	}
	result.Orders = matched[from:to]
	return result
}

// sortOrders упорядочивает заказы по полю запроса, при равенстве по ID.
func sortOrders(orders []domain.Order, q domain.ListQuery) {
	less := func(a, b domain.Order) int {
		switch q.SortField {
		case domain.SortByTotalAmount:
			return a.TotalAmount.Cmp(b.TotalAmount)
		case domain.SortByStatus:
			return compareStrings(string(a.Status), string(b.Status))
		case domain.SortByOrderNumber:
			return compareStrings(a.OrderNumber, b.OrderNumber)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		c := less(orders[i], orders[j])
		if c == 0 {
			c = compareStrings(orders[i].ID, orders[j].ID)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order = order.Clone()
	order.Version++
	r.items[order.ID] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
