package postgres

import (
	"context"
	"errors"

	"github.com/wayplan/collab-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository — единственное, что ядро хочет от users: превратить subject
// внешнего identity-провайдера во внутренний id.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// ResolveAuthID — внутренний id пользователя по subject провайдера идентичности.
// Гости (нет строки в users) дают domain.ErrUserNotFound.
func (r *UserRepository) ResolveAuthID(ctx context.Context, authID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE auth_id=$1`, authID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, err
	}
	return id, nil
}
