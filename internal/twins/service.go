package twins

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbontwin/ledger-backend/internal/events"
)

// Service owns the authoritative twin registry state. Writes are serialized
// under one mutex; the repository is a write-behind journal.
type Service struct {
	mu     sync.Mutex
	logger *zap.Logger
	repo   Repository
	events events.Publisher
	now    func() time.Time

	twins   map[string]*DigitalTwin
	byOwner map[string][]string
}

func NewService(repo Repository, pub events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:  logger,
		repo:    repo,
		events:  pub,
		now:     time.Now,
		twins:   make(map[string]*DigitalTwin),
		byOwner: make(map[string][]string),
	}
}

// Restore reloads journaled twins at startup.
func (s *Service) Restore(twins []DigitalTwin) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range twins {
		tw := twins[i]
		s.twins[tw.TwinID] = &tw
		s.byOwner[tw.Owner] = append(s.byOwner[tw.Owner], tw.TwinID)
	}
}

// CreateDigitalTwin registers a new twin under a caller-supplied key.
// Current emissions start at the baseline.
func (s *Service) CreateDigitalTwin(ctx context.Context, caller, twinID, facilityType string, baselineEmissions uint64, dataRef string, metadata datatypes.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.twins[twinID]; exists {
		return ErrTwinExists
	}

	now := s.now().UTC()
	twin := &DigitalTwin{
		TwinID:            twinID,
		Owner:             caller,
		FacilityType:      facilityType,
		BaselineEmissions: baselineEmissions,
		CurrentEmissions:  baselineEmissions,
		DataRef:           dataRef,
		Metadata:          metadata,
		Active:            true,
		UpdatedAt:         now,
		CreatedAt:         now,
	}
	s.twins[twinID] = twin
	s.byOwner[caller] = append(s.byOwner[caller], twinID)

	if s.repo != nil {
		if err := s.repo.SaveTwin(ctx, twin); err != nil {
			s.logger.Error("failed to journal twin", zap.String("twin_id", twinID), zap.Error(err))
		}
	}
	s.publish(events.TypeTwinCreated, map[string]interface{}{
		"twin_id":            twinID,
		"owner":              caller,
		"facility_type":      facilityType,
		"baseline_emissions": baselineEmissions,
	})

	s.logger.Info("digital twin created", zap.String("twin_id", twinID), zap.String("owner", caller))
	return nil
}

// UpdateDigitalTwin sets the twin's current emission reading. Only the
// owner may update, and only while the twin is active.
func (s *Service) UpdateDigitalTwin(ctx context.Context, caller, twinID string, newEmissions uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	twin, ok := s.twins[twinID]
	if !ok {
		return ErrTwinNotFound
	}
	if twin.Owner != caller {
		return ErrNotOwner
	}
	if !twin.Active {
		return ErrTwinInactive
	}

	twin.CurrentEmissions = newEmissions
	twin.UpdatedAt = s.now().UTC()

	if s.repo != nil {
		if err := s.repo.UpdateTwin(ctx, twin); err != nil {
			s.logger.Error("failed to journal twin update", zap.String("twin_id", twinID), zap.Error(err))
		}
	}
	s.publish(events.TypeTwinUpdated, map[string]interface{}{
		"twin_id":       twinID,
		"new_emissions": newEmissions,
		"timestamp":     twin.UpdatedAt,
	})

	s.logger.Info("digital twin updated",
		zap.String("twin_id", twinID),
		zap.Uint64("new_emissions", newEmissions))
	return nil
}

// Twin returns a copy of the twin.
func (s *Service) Twin(twinID string) (DigitalTwin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	twin, ok := s.twins[twinID]
	if !ok {
		return DigitalTwin{}, ErrTwinNotFound
	}
	return *twin, nil
}

func (s *Service) TwinIDsByOwner(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]string(nil), s.byOwner[owner]...)
	sort.Strings(ids)
	return ids
}

func (s *Service) TwinCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.twins))
}

func (s *Service) publish(t events.Type, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(t, payload)
	}
}
