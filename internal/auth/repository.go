package auth

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*Account, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (address, email, password_hash, role, created_at)
		VALUES (:address, :email, :password_hash, :role, :created_at)`
	_, err := r.db.NamedExecContext(ctx, query, account)
	return err
}

func (r *postgresRepository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	query := `SELECT address, email, password_hash, role, created_at FROM accounts WHERE email = $1`
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *postgresRepository) GetAccountByAddress(ctx context.Context, address string) (*Account, error) {
	var account Account
	query := `SELECT address, email, password_hash, role, created_at FROM accounts WHERE address = $1`
	if err := r.db.GetContext(ctx, &account, query, address); err != nil {
		return nil, err
	}
	return &account, nil
}
