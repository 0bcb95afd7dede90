package postgres

import (
	"context"

	"github.com/wayplan/collab-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// todo: перенести query в queries.go

type CollaboratorRepository struct {
	db *pgxpool.Pool
}

func NewCollaboratorRepository(db *pgxpool.Pool) *CollaboratorRepository {
	return &CollaboratorRepository{db: db}
}

// Upsert — идемпотентная запись соавтора: повторная вставка по той же паре
// (trip_id, user_id) ничего не меняет.
func (r *CollaboratorRepository) Upsert(ctx context.Context, c domain.Collaborator) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO trip_collaborators (trip_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id, user_id) DO NOTHING
	`, c.TripID, c.UserID, c.Role, c.Status)

	return err
}

func (r *CollaboratorRepository) Exists(ctx context.Context, tripID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM trip_collaborators WHERE trip_id=$1 AND user_id=$2)`,
		tripID, userID).Scan(&exists)
	return exists, err
}
