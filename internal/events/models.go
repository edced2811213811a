package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Type identifies a ledger state-change notification.
type Type string

const (
	TypeReportCreated  Type = "report_created"
	TypeReportVerified Type = "report_verified"
	TypeCreditMinted   Type = "credit_minted"
	TypeCreditTraded   Type = "credit_traded"
	TypeCreditRetired  Type = "credit_retired"
	TypeTwinCreated    Type = "twin_created"
	TypeTwinUpdated    Type = "twin_updated"
)

// Event is a single notification emitted after a successful write operation.
// Delivery to websocket consumers is at-least-once from the ledger's point of
// view; consumers fall back to the read API when they miss one.
type Event struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	Type      Type                   `json:"type" db:"type"`
	Payload   map[string]interface{} `json:"payload" db:"-"`
	Timestamp time.Time              `json:"timestamp" db:"created_at"`
}

// StoredEvent is the journal row shape for persisted events.
type StoredEvent struct {
	ID        uuid.UUID      `db:"id"`
	Type      string         `db:"type"`
	Payload   types.JSONText `db:"payload"`
	CreatedAt time.Time      `db:"created_at"`
}
