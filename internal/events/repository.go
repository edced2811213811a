package events

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Append(ctx context.Context, e *StoredEvent) error
	ListRecent(ctx context.Context, limit int) ([]StoredEvent, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Append(ctx context.Context, e *StoredEvent) error {
	query := `
		INSERT INTO ledger_events (id, type, payload, created_at)
		VALUES (:id, :type, :payload, :created_at)`
	_, err := r.db.NamedExecContext(ctx, query, e)
	return err
}

func (r *postgresRepository) ListRecent(ctx context.Context, limit int) ([]StoredEvent, error) {
	var rows []StoredEvent
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM ledger_events ORDER BY created_at DESC LIMIT $1", limit)
	return rows, err
}
