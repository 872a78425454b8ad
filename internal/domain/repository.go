package domain

import (
	"context"
	"strings"
)

// OrderSortField — поле сортировки списка заказов.
type OrderSortField string

const (
	SortByCreatedAt   OrderSortField = "createdAt"
	SortByTotalAmount OrderSortField = "totalAmount"
	SortByStatus      OrderSortField = "status"
	SortByOrderNumber OrderSortField = "orderNumber"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery — параметры постраничной выборки. Page считается с нуля.
type ListQuery struct {
	Page      int
	Size      int
	SortField OrderSortField
	Desc      bool
}

// ParseListQuery нормализует пагинацию и сортировку.
// По умолчанию сортировка по createdAt, направление desc.
func ParseListQuery(page, size int, sortField, direction string) (ListQuery, error) {
	q := ListQuery{Page: page, Size: size, SortField: SortByCreatedAt, Desc: true}
	if q.Page < 0 {
		q.Page = 0
	}
	switch {
	case q.Size <= 0:
		q.Size = DefaultPageSize
	case q.Size > MaxPageSize:
		q.Size = MaxPageSize
	}

	switch OrderSortField(strings.TrimSpace(sortField)) {
	case "", SortByCreatedAt:
	case SortByTotalAmount:
		q.SortField = SortByTotalAmount
	case SortByStatus:
		q.SortField = SortByStatus
	case SortByOrderNumber:
		q.SortField = SortByOrderNumber
	default:
		return ListQuery{}, InvalidArgument("unsupported sort field %q", sortField)
	}

	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "", "desc":
	case "asc":
		q.Desc = false
	default:
		return ListQuery{}, InvalidArgument("unsupported sort direction %q", direction)
	}

	return q, nil
}

// Offset — смещение первой записи страницы.
func (q ListQuery) Offset() int {
	return q.Page * q.Size
}

// OrderPage — страница заказов и общее количество.
type OrderPage struct {
	Orders []Order
	Page   int
	Size   int
	Total  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает страницу заказов пользователя.
	ListByUser(ctx context.Context, userID string, q ListQuery) (OrderPage, error)
	// ListByStatus возвращает страницу заказов в заданном статусе.
	ListByStatus(ctx context.Context, status OrderStatus, q ListQuery) (OrderPage, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}
