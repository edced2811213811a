package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbontwin/ledger-backend/internal/config"
	"carbontwin/ledger-backend/internal/platform"
)

// The snapshot worker periodically rolls the journal tables up into a
// platform_snapshots row so dashboards can chart totals over time without
// scanning the full journal.
func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := platform.NewPostgresSnapshotRepository(db)

	c := cron.New()
	_, err = c.AddFunc(cfg.Workers.SnapshotSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		summary, err := rollup(ctx, db)
		if err != nil {
			logger.Error("snapshot rollup failed", zap.Error(err))
			return
		}
		if err := repo.SaveSnapshot(ctx, summary); err != nil {
			logger.Error("failed to save snapshot", zap.Error(err))
			return
		}
		logger.Info("platform snapshot saved",
			zap.Int64("total_reports", summary.TotalReports),
			zap.Int64("total_credits", summary.TotalCredits),
			zap.Int64("total_twins", summary.TotalTwins))
	})
	if err != nil {
		logger.Fatal("Invalid snapshot schedule", zap.String("schedule", cfg.Workers.SnapshotSchedule), zap.Error(err))
	}

	c.Start()
	logger.Info("Snapshot worker started", zap.String("schedule", cfg.Workers.SnapshotSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping snapshot worker...")
	<-c.Stop().Done()
}

// rollup aggregates directly off the journal tables; the worker never loads
// the in-memory registries.
func rollup(ctx context.Context, db *sqlx.DB) (*platform.Summary, error) {
	summary := &platform.Summary{GeneratedAt: time.Now().UTC()}

	if err := db.GetContext(ctx, &summary.TotalReports, `SELECT COUNT(*) FROM emission_reports`); err != nil {
		return nil, err
	}
	if err := db.GetContext(ctx, &summary.TotalCredits, `SELECT COUNT(*) FROM carbon_credits`); err != nil {
		return nil, err
	}
	if err := db.GetContext(ctx, &summary.TotalTwins, `SELECT COUNT(*) FROM digital_twins`); err != nil {
		return nil, err
	}
	if err := db.GetContext(ctx, &summary.ActiveTons, `SELECT COALESCE(SUM(amount), 0) FROM carbon_credits WHERE NOT retired`); err != nil {
		return nil, err
	}
	if err := db.GetContext(ctx, &summary.RetiredLots, `SELECT COUNT(*) FROM carbon_credits WHERE retired`); err != nil {
		return nil, err
	}
	return summary, nil
}
