package platform

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"carbontwin/ledger-backend/internal/credits"
	"carbontwin/ledger-backend/internal/ledger"
	"carbontwin/ledger-backend/internal/twins"
)

// Summary is the platform-wide dashboard aggregate.
type Summary struct {
	TotalReports   int64     `json:"total_reports" db:"total_reports"`
	TotalCredits   int64     `json:"total_credits" db:"total_credits"`
	TotalTwins     int64     `json:"total_twins" db:"total_twins"`
	ActiveTons     uint64    `json:"active_tons" db:"active_tons"`
	RetiredLots    int64     `json:"retired_lots" db:"retired_lots"`
	GeneratedAt    time.Time `json:"generated_at" db:"generated_at"`
}

// Service computes platform totals from the live registries and journals
// periodic snapshots for trend queries.
type Service struct {
	ledger  *ledger.Service
	credits *credits.Service
	twins   *twins.Service
	repo    SnapshotRepository
	logger  *zap.Logger
}

func NewService(l *ledger.Service, c *credits.Service, t *twins.Service, repo SnapshotRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: l, credits: c, twins: t, repo: repo, logger: logger}
}

func (s *Service) Summary() Summary {
	var activeTons uint64
	var retired int64
	active := s.credits.ListActive()
	for _, credit := range active {
		activeTons += credit.Amount
	}
	retired = s.credits.CreditCount() - int64(len(active))

	return Summary{
		TotalReports: s.ledger.ReportCount(),
		TotalCredits: s.credits.CreditCount(),
		TotalTwins:   s.twins.TwinCount(),
		ActiveTons:   activeTons,
		RetiredLots:  retired,
		GeneratedAt:  time.Now().UTC(),
	}
}

// ErrNoSnapshots reports that no snapshot has been journaled yet.
var ErrNoSnapshots = errors.New("platform: no snapshots recorded")

// Snapshot persists the current totals.
func (s *Service) Snapshot(ctx context.Context) error {
	if s.repo == nil {
		return ErrNoSnapshots
	}
	summary := s.Summary()
	if err := s.repo.SaveSnapshot(ctx, &summary); err != nil {
		s.logger.Error("failed to save platform snapshot", zap.Error(err))
		return err
	}
	s.logger.Info("platform snapshot saved",
		zap.Int64("total_reports", summary.TotalReports),
		zap.Int64("total_credits", summary.TotalCredits))
	return nil
}

// Latest returns the most recently journaled snapshot.
func (s *Service) Latest(ctx context.Context) (*Summary, error) {
	if s.repo == nil {
		return nil, ErrNoSnapshots
	}
	summary, err := s.repo.LatestSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshots
	}
	return summary, err
}

// SnapshotRepository stores periodic platform totals.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, summary *Summary) error
	LatestSnapshot(ctx context.Context) (*Summary, error)
}

type postgresSnapshotRepository struct {
	db *sqlx.DB
}

func NewPostgresSnapshotRepository(db *sqlx.DB) SnapshotRepository {
	return &postgresSnapshotRepository{db: db}
}

func (r *postgresSnapshotRepository) SaveSnapshot(ctx context.Context, summary *Summary) error {
	query := `
		INSERT INTO platform_snapshots (
			total_reports, total_credits, total_twins, active_tons, retired_lots, generated_at
		) VALUES (
			:total_reports, :total_credits, :total_twins, :active_tons, :retired_lots, :generated_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, summary)
	return err
}

func (r *postgresSnapshotRepository) LatestSnapshot(ctx context.Context) (*Summary, error) {
	var summary Summary
	query := `
		SELECT total_reports, total_credits, total_twins, active_tons, retired_lots, generated_at
		FROM platform_snapshots
		ORDER BY generated_at DESC
		LIMIT 1`
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, err
	}
	return &summary, nil
}
