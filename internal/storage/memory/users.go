package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// UserDirectory — in-memory справочник пользователей.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserDirectory создаёт справочник с начальным набором пользователей.
func NewUserDirectory(users ...domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Add добавляет или заменяет пользователя.
func (d *UserDirectory) Add(u domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *UserDirectory) GetUser(_ context.Context, id string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

var _ domain.UserDirectory = (*UserDirectory)(nil)
