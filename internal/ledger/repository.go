package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository journals ledger state to Postgres. The in-memory service is
// authoritative; these rows exist for restarts and read models.
type Repository interface {
	SaveReport(ctx context.Context, report *EmissionReport) error
	MarkVerified(ctx context.Context, reportID int64, score int, verifier string, verifiedAt time.Time) error
	SaveVerifier(ctx context.Context, addr string) error
	DeleteVerifier(ctx context.Context, addr string) error
	UpsertScore(ctx context.Context, company string, score int) error
	LoadReports(ctx context.Context) ([]EmissionReport, error)
	LoadVerifiers(ctx context.Context) ([]string, error)
	LoadScores(ctx context.Context) (map[string]int, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) SaveReport(ctx context.Context, report *EmissionReport) error {
	query := `
		INSERT INTO emission_reports (
			id, company, facility_id, emission_amount, production_volume,
			energy_sources, data_ref, created_at, verified, verification_score, verifier
		) VALUES (
			:id, :company, :facility_id, :emission_amount, :production_volume,
			:energy_sources, :data_ref, :created_at, :verified, :verification_score, :verifier
		)`
	_, err := r.db.NamedExecContext(ctx, query, report)
	return err
}

func (r *postgresRepository) MarkVerified(ctx context.Context, reportID int64, score int, verifier string, verifiedAt time.Time) error {
	query := `
		UPDATE emission_reports
		SET verified = true, verification_score = $1, verifier = $2, verified_at = $3
		WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, score, verifier, verifiedAt, reportID)
	return err
}

func (r *postgresRepository) SaveVerifier(ctx context.Context, addr string) error {
	query := `INSERT INTO verifiers (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, addr)
	return err
}

func (r *postgresRepository) DeleteVerifier(ctx context.Context, addr string) error {
	query := `DELETE FROM verifiers WHERE address = $1`
	_, err := r.db.ExecContext(ctx, query, addr)
	return err
}

func (r *postgresRepository) UpsertScore(ctx context.Context, company string, score int) error {
	query := `
		INSERT INTO sustainability_scores (company, score)
		VALUES ($1, $2)
		ON CONFLICT (company) DO UPDATE SET score = EXCLUDED.score`
	_, err := r.db.ExecContext(ctx, query, company, score)
	return err
}

func (r *postgresRepository) LoadReports(ctx context.Context) ([]EmissionReport, error) {
	var reports []EmissionReport
	query := `
		SELECT id, company, facility_id, emission_amount, production_volume,
		       energy_sources, data_ref, created_at, verified, verification_score,
		       verifier, verified_at
		FROM emission_reports
		ORDER BY id`
	if err := r.db.SelectContext(ctx, &reports, query); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *postgresRepository) LoadVerifiers(ctx context.Context) ([]string, error) {
	var verifiers []string
	if err := r.db.SelectContext(ctx, &verifiers, `SELECT address FROM verifiers`); err != nil {
		return nil, err
	}
	return verifiers, nil
}

func (r *postgresRepository) LoadScores(ctx context.Context) (map[string]int, error) {
	var rows []CompanyScore
	if err := r.db.SelectContext(ctx, &rows, `SELECT company, score FROM sustainability_scores`); err != nil {
		return nil, err
	}
	scores := make(map[string]int, len(rows))
	for _, row := range rows {
		scores[row.Company] = row.Score
	}
	return scores, nil
}
