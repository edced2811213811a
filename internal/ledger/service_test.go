package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveReport(ctx context.Context, report *EmissionReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRepository) MarkVerified(ctx context.Context, reportID int64, score int, verifier string, verifiedAt time.Time) error {
	args := m.Called(ctx, reportID, score, verifier, verifiedAt)
	return args.Error(0)
}

func (m *MockRepository) SaveVerifier(ctx context.Context, addr string) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockRepository) DeleteVerifier(ctx context.Context, addr string) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockRepository) UpsertScore(ctx context.Context, company string, score int) error {
	args := m.Called(ctx, company, score)
	return args.Error(0)
}

func (m *MockRepository) LoadReports(ctx context.Context) ([]EmissionReport, error) {
	args := m.Called(ctx)
	return args.Get(0).([]EmissionReport), args.Error(1)
}

func (m *MockRepository) LoadVerifiers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) LoadScores(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

const admin = "0xadmin"

func newTestService() *Service {
	return NewService(nil, nil, nil, admin)
}

func TestReportEmissionsAssignsMonotonicIDs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, []string{"solar"}, "ipfs://a")
	assert.NoError(t, err)
	second, err := svc.ReportEmissions(ctx, "0xacme", "plant-2", 800, 300, nil, "ipfs://b")
	assert.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(2), svc.ReportCount())
	assert.Equal(t, []int64{1, 2}, svc.ReportIDsByCompany("0xacme"))
}

func TestAdminIsImplicitVerifier(t *testing.T) {
	svc := newTestService()
	assert.True(t, svc.IsVerifier(admin))

	id, _ := svc.ReportEmissions(context.Background(), "0xacme", "plant-1", 1200, 500, nil, "")
	assert.NoError(t, svc.VerifyEmissionReport(context.Background(), admin, id, 80, true))
}

func TestVerifyRequiresAuthorization(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, nil, "")

	err := svc.VerifyEmissionReport(ctx, "0xstranger", id, 90, true)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	report, _ := svc.Report(id)
	assert.False(t, report.Verified)
}

func TestVerifyExactlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))
	id, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, nil, "")

	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 90, true))
	err := svc.VerifyEmissionReport(ctx, "0xverifier", id, 70, true)
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	report, _ := svc.Report(id)
	assert.True(t, report.Verified)
	assert.Equal(t, 90, report.VerificationScore)
	assert.Equal(t, "0xverifier", report.Verifier)
}

func TestVerifyScoreBounds(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))
	id, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, nil, "")

	assert.ErrorIs(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, -1, true), ErrScoreOutOfRange)
	assert.ErrorIs(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 101, true), ErrScoreOutOfRange)
	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 100, true))
}

func TestVerifyUnknownReport(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))
	err := svc.VerifyEmissionReport(ctx, "0xverifier", 42, 90, true)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestSustainabilityScoreAveraging(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))

	// Fresh company starts at zero: (0+90)/2 = 45.
	id, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, nil, "")
	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 90, true))
	assert.Equal(t, 45, svc.CompanyScore("0xacme"))

	// (45+100)/2 = 72 with integer floor.
	id, _ = svc.ReportEmissions(ctx, "0xacme", "plant-1", 900, 500, nil, "")
	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 100, true))
	assert.Equal(t, 72, svc.CompanyScore("0xacme"))

	// Failed audit halves the running score regardless of the score argument.
	id, _ = svc.ReportEmissions(ctx, "0xacme", "plant-1", 2000, 500, nil, "")
	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 95, false))
	assert.Equal(t, 36, svc.CompanyScore("0xacme"))
}

func TestVerifierManagementRequiresAdmin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.AddVerifier(ctx, "0xacme", "0xverifier"), ErrNotAdmin)
	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))
	assert.True(t, svc.IsVerifier("0xverifier"))

	assert.ErrorIs(t, svc.RemoveVerifier(ctx, "0xacme", "0xverifier"), ErrNotAdmin)
	assert.NoError(t, svc.RemoveVerifier(ctx, admin, "0xverifier"))
	assert.False(t, svc.IsVerifier("0xverifier"))
}

func TestRemovedVerifierKeepsPriorVerifications(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.NoError(t, svc.AddVerifier(ctx, admin, "0xverifier"))
	id, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1200, 500, nil, "")
	assert.NoError(t, svc.VerifyEmissionReport(ctx, "0xverifier", id, 80, true))

	assert.NoError(t, svc.RemoveVerifier(ctx, admin, "0xverifier"))

	report, _ := svc.Report(id)
	assert.True(t, report.Verified)

	next, _ := svc.ReportEmissions(ctx, "0xacme", "plant-1", 1100, 500, nil, "")
	assert.ErrorIs(t, svc.VerifyEmissionReport(ctx, "0xverifier", next, 80, true), ErrNotAuthorized)
}

func TestReportJournaledToRepository(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveReport", mock.Anything, mock.AnythingOfType("*ledger.EmissionReport")).Return(nil)

	svc := NewService(repo, nil, nil, admin)
	_, err := svc.ReportEmissions(context.Background(), "0xacme", "plant-1", 1200, 500, nil, "")
	assert.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestRestoreResumesIDSequence(t *testing.T) {
	svc := newTestService()
	svc.Restore([]EmissionReport{
		{ID: 1, Company: "0xacme", FacilityID: "plant-1"},
		{ID: 7, Company: "0xbeta", FacilityID: "plant-9"},
	}, []string{"0xverifier"}, map[string]int{"0xacme": 45})

	assert.True(t, svc.IsVerifier("0xverifier"))
	assert.Equal(t, 45, svc.CompanyScore("0xacme"))

	id, err := svc.ReportEmissions(context.Background(), "0xacme", "plant-2", 100, 50, nil, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(8), id)
}
