package twins

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

func (m *MockRepository) SaveTwin(ctx context.Context, twin *DigitalTwin) error {
	args := m.Called(ctx, twin)
	return args.Error(0)
}

func (m *MockRepository) UpdateTwin(ctx context.Context, twin *DigitalTwin) error {
	args := m.Called(ctx, twin)
	return args.Error(0)
}

func (m *MockRepository) LoadTwins(ctx context.Context) ([]DigitalTwin, error) {
	args := m.Called(ctx)
	return args.Get(0).([]DigitalTwin), args.Error(1)
}

func TestCreateDigitalTwin(t *testing.T) {
	svc := NewService(nil, nil, nil)
	ctx := context.Background()

	err := svc.CreateDigitalTwin(ctx, "0xacme", "plant-1", "steel_mill", 5000, "ipfs://baseline", nil)
	assert.NoError(t, err)

	twin, err := svc.Twin("plant-1")
	assert.NoError(t, err)
	assert.Equal(t, "0xacme", twin.Owner)
	assert.Equal(t, uint64(5000), twin.BaselineEmissions)
	assert.Equal(t, uint64(5000), twin.CurrentEmissions)
	assert.True(t, twin.Active)
	assert.Equal(t, []string{"plant-1"}, svc.TwinIDsByOwner("0xacme"))
}

func TestCreateDuplicateTwinRejected(t *testing.T) {
	svc := NewService(nil, nil, nil)
	ctx := context.Background()

	assert.NoError(t, svc.CreateDigitalTwin(ctx, "0xacme", "plant-1", "steel_mill", 5000, "", nil))
	err := svc.CreateDigitalTwin(ctx, "0xother", "plant-1", "cement_kiln", 100, "", nil)
	assert.ErrorIs(t, err, ErrTwinExists)

	// The first registration is untouched.
	twin, _ := svc.Twin("plant-1")
	assert.Equal(t, "0xacme", twin.Owner)
	assert.Equal(t, "steel_mill", twin.FacilityType)
}

func TestUpdateDigitalTwin(t *testing.T) {
	svc := NewService(nil, nil, nil)
	before := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return before }
	ctx := context.Background()

	assert.NoError(t, svc.CreateDigitalTwin(ctx, "0xacme", "plant-1", "steel_mill", 5000, "", nil))

	after := before.Add(48 * time.Hour)
	svc.now = func() time.Time { return after }
	assert.NoError(t, svc.UpdateDigitalTwin(ctx, "0xacme", "plant-1", 4200))

	twin, _ := svc.Twin("plant-1")
	assert.Equal(t, uint64(4200), twin.CurrentEmissions)
	assert.Equal(t, uint64(5000), twin.BaselineEmissions)
	assert.Equal(t, after, twin.UpdatedAt)
}

func TestUpdateRequiresOwnership(t *testing.T) {
	svc := NewService(nil, nil, nil)
	ctx := context.Background()

	assert.NoError(t, svc.CreateDigitalTwin(ctx, "0xacme", "plant-1", "steel_mill", 5000, "", nil))
	assert.ErrorIs(t, svc.UpdateDigitalTwin(ctx, "0xother", "plant-1", 1), ErrNotOwner)

	twin, _ := svc.Twin("plant-1")
	assert.Equal(t, uint64(5000), twin.CurrentEmissions)
}

func TestUpdateUnknownTwin(t *testing.T) {
	svc := NewService(nil, nil, nil)
	err := svc.UpdateDigitalTwin(context.Background(), "0xacme", "missing", 1)
	assert.ErrorIs(t, err, ErrTwinNotFound)
}

func TestUpdateInactiveTwin(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.Restore([]DigitalTwin{{TwinID: "plant-1", Owner: "0xacme", Active: false}})

	err := svc.UpdateDigitalTwin(context.Background(), "0xacme", "plant-1", 1)
	assert.ErrorIs(t, err, ErrTwinInactive)
}

func TestTwinJournaledToRepository(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveTwin", mock.Anything, mock.AnythingOfType("*twins.DigitalTwin")).Return(nil)

	svc := NewService(repo, nil, nil)
	assert.NoError(t, svc.CreateDigitalTwin(context.Background(), "0xacme", "plant-1", "steel_mill", 5000, "", nil))

	repo.AssertExpectations(t)
}
