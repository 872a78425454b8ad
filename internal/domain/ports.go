package domain

import (
	"context"
	"time"
)

// ProductCatalog — внешний каталог, поиск товара по идентификатору.
type ProductCatalog interface {
	// GetProduct возвращает снапшот товара или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
}

// StockStore — делегат изменения остатков. Может принадлежать каталогу,
// ядро вызывает его через Inventory Ledger.
type StockStore interface {
	// Reserve атомарно проверяет и уменьшает остаток, либо возвращает *OutOfStockError.
	Reserve(ctx context.Context, productID string, qty int) (StockLevel, error)
	// Release атомарно возвращает остаток; restoreAvailability поднимает флаг доступности.
	Release(ctx context.Context, productID string, qty int, restoreAvailability bool) (StockLevel, error)
}

// UserDirectory — внешний справочник пользователей.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// NotificationSink принимает события жизненного цикла.
// Вызов не блокирует и не возвращает ошибок: доставкой занимается сам sink.
type NotificationSink interface {
	Notify(n Notification)
}

// SettlementGateway проводит списание по уже провалидированному платежу.
type SettlementGateway interface {
	// Settle возвращает transaction id. При отказе возвращает *PaymentError(ErrGatewayError) с transaction id.
	Settle(ctx context.Context, order Order, method PaymentMethod) (string, error)
}

// Transactor задаёт границу "всё или ничего" для одной операции.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, code int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	// Пустой Topic: публикуем в топик по умолчанию.
	Topic   string
	Payload []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
