package platform

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"carbontwin/ledger-backend/internal/credits"
	"carbontwin/ledger-backend/internal/ledger"
	"carbontwin/ledger-backend/internal/twins"
)

// MockSnapshotRepository is a mock implementation of the SnapshotRepository interface
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) SaveSnapshot(ctx context.Context, summary *Summary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockSnapshotRepository) LatestSnapshot(ctx context.Context) (*Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Summary), args.Error(1)
}

func TestSummaryAggregatesRegistries(t *testing.T) {
	ctx := context.Background()
	ledgerSvc := ledger.NewService(nil, nil, nil, "0xadmin")
	creditsSvc := credits.NewService(nil, nil, nil, nil, credits.Config{})
	twinsSvc := twins.NewService(nil, nil, nil)

	_, err := ledgerSvc.ReportEmissions(ctx, "0xacme", "plant-1", 1000, 500, nil, "")
	assert.NoError(t, err)

	_, err = creditsSvc.MintCarbonCredit(ctx, "0xacme", 100, 10, "h", "d", 2024, string(credits.TypeRenewableEnergy))
	assert.NoError(t, err)
	gone, err := creditsSvc.MintCarbonCredit(ctx, "0xacme", 40, 10, "h", "d", 2024, string(credits.TypeCarbonCapture))
	assert.NoError(t, err)
	assert.NoError(t, creditsSvc.RetireCarbonCredit(ctx, "0xacme", gone))

	assert.NoError(t, twinsSvc.CreateDigitalTwin(ctx, "0xacme", "plant-1", "steel_mill", 5000, "", nil))

	svc := NewService(ledgerSvc, creditsSvc, twinsSvc, nil, nil)
	summary := svc.Summary()

	assert.Equal(t, int64(1), summary.TotalReports)
	assert.Equal(t, int64(2), summary.TotalCredits)
	assert.Equal(t, int64(1), summary.TotalTwins)
	assert.Equal(t, uint64(100), summary.ActiveTons)
	assert.Equal(t, int64(1), summary.RetiredLots)
	assert.False(t, summary.GeneratedAt.IsZero())
}

func newEmptyService(repo SnapshotRepository) *Service {
	return NewService(
		ledger.NewService(nil, nil, nil, "0xadmin"),
		credits.NewService(nil, nil, nil, nil, credits.Config{}),
		twins.NewService(nil, nil, nil),
		repo, nil)
}

func TestSnapshotJournalsSummary(t *testing.T) {
	repo := new(MockSnapshotRepository)
	repo.On("SaveSnapshot", mock.Anything, mock.AnythingOfType("*platform.Summary")).Return(nil)

	svc := newEmptyService(repo)
	assert.NoError(t, svc.Snapshot(context.Background()))
	repo.AssertExpectations(t)
}

func TestLatestSnapshot(t *testing.T) {
	want := &Summary{TotalCredits: 7, GeneratedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	repo := new(MockSnapshotRepository)
	repo.On("LatestSnapshot", mock.Anything).Return(want, nil)

	svc := newEmptyService(repo)
	got, err := svc.Latest(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLatestSnapshotEmptyJournal(t *testing.T) {
	repo := new(MockSnapshotRepository)
	repo.On("LatestSnapshot", mock.Anything).Return(nil, sql.ErrNoRows)

	svc := newEmptyService(repo)
	_, err := svc.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshots)

	// No repository configured behaves the same way.
	_, err = newEmptyService(nil).Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshots)
}
