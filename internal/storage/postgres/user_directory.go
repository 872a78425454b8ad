package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

type userDirectory struct {
	store *Store
}

// NewUserDirectory создаёт справочник пользователей поверх таблицы users.
func NewUserDirectory(store *Store) domain.UserDirectory {
	return &userDirectory{store: store}
}

func (d *userDirectory) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user domain.User
	err := d.store.executor(ctx).QueryRowContext(ctx, `
		SELECT id, username, email, phone
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.Email, &user.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

var _ domain.UserDirectory = (*userDirectory)(nil)
