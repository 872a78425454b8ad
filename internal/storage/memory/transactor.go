package memory

import (
	"context"
	"sync"
)

// Transactor сериализует "транзакции" in-memory хранилища.
// Отката нет: репозитории не возвращают ошибок после первой успешной записи,
// а Save проверяет версию раньше остальных изменений.
type Transactor struct {
	mu sync.Mutex
}

// NewTransactor создаёт in-memory Transactor.
func NewTransactor() *Transactor {
	return &Transactor{}
}

type txKey struct{}

// WithinTx выполняет fn под общим мьютексом. Вложенный вызов переиспользует внешнюю "транзакцию".
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}
