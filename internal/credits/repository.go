package credits

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Repository journals credit lots to Postgres for restarts and read models.
type Repository interface {
	SaveCredit(ctx context.Context, credit *CarbonCredit) error
	UpdateCredit(ctx context.Context, credit *CarbonCredit) error
	LoadCredits(ctx context.Context) ([]CarbonCredit, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) SaveCredit(ctx context.Context, credit *CarbonCredit) error {
	query := `
		INSERT INTO carbon_credits (
			id, owner, amount, price_per_ton, certification_hash,
			project_details, retired, vintage, credit_type, status, created_at
		) VALUES (
			:id, :owner, :amount, :price_per_ton, :certification_hash,
			:project_details, :retired, :vintage, :credit_type, :status, :created_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, credit)
	return err
}

func (r *postgresRepository) UpdateCredit(ctx context.Context, credit *CarbonCredit) error {
	query := `
		UPDATE carbon_credits
		SET owner = :owner, amount = :amount, retired = :retired, status = :status
		WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, credit)
	return err
}

func (r *postgresRepository) LoadCredits(ctx context.Context) ([]CarbonCredit, error) {
	var credits []CarbonCredit
	query := `
		SELECT id, owner, amount, price_per_ton, certification_hash,
		       project_details, retired, vintage, credit_type, status, created_at
		FROM carbon_credits
		ORDER BY id`
	if err := r.db.SelectContext(ctx, &credits, query); err != nil {
		return nil, err
	}
	return credits, nil
}
