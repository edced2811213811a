package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
)

// Publisher is the write-side interface the registries emit through.
type Publisher interface {
	Publish(t Type, payload map[string]interface{})
}

// Service journals events and broadcasts them to subscribers. A recent ring
// is kept in memory so the read API can serve the latest activity without a
// database round trip.
type Service struct {
	repo   Repository
	hub    *Hub
	logger *zap.Logger

	mu     sync.Mutex
	recent []Event
	max    int
}

// NewService creates the event service. repo and hub may be nil; publishing
// then only feeds the in-memory ring.
func NewService(repo Repository, hub *Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger,
		max:    256,
	}
}

// Publish records one state-change notification. Journal failures are logged
// and do not propagate: the ledger mutation already happened and the feed is
// at-least-once, not transactional.
func (s *Service) Publish(t Type, payload map[string]interface{}) {
	e := Event{
		ID:        uuid.New(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.recent = append(s.recent, e)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
	s.mu.Unlock()

	if s.repo != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			raw = []byte("{}")
		}
		stored := &StoredEvent{
			ID:        e.ID,
			Type:      string(e.Type),
			Payload:   types.JSONText(raw),
			CreatedAt: e.Timestamp,
		}
		if err := s.repo.Append(context.Background(), stored); err != nil {
			s.logger.Warn("failed to journal event",
				zap.String("type", string(t)), zap.Error(err))
		}
	}

	if s.hub != nil {
		s.hub.Broadcast(e)
	}
}

// Recent returns up to limit of the latest events, newest first.
func (s *Service) Recent(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// History serves the latest events, falling back to the journal when the
// in-memory ring is empty, which happens right after a restart.
func (s *Service) History(ctx context.Context, limit int) ([]Event, error) {
	if recent := s.Recent(limit); len(recent) > 0 || s.repo == nil {
		return recent, nil
	}

	rows, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		payload := map[string]interface{}{}
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			s.logger.Warn("failed to decode journaled event payload",
				zap.String("event_id", row.ID.String()), zap.Error(err))
		}
		out = append(out, Event{
			ID:        row.ID,
			Type:      Type(row.Type),
			Payload:   payload,
			Timestamp: row.CreatedAt,
		})
	}
	return out, nil
}
