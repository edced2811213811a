package ledger

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// EmissionReport is one append-only row in the emission ledger. Reports are
// created by the company operating the facility and verified at most once by
// an authorized verifier.
type EmissionReport struct {
	ID                int64          `json:"id" db:"id"`
	Company           string         `json:"company" db:"company"`
	FacilityID        string         `json:"facility_id" db:"facility_id"`
	EmissionAmount    uint64         `json:"emission_amount" db:"emission_amount"`   // kg CO2
	ProductionVolume  uint64         `json:"production_volume" db:"production_volume"`
	EnergySources     pq.StringArray `json:"energy_sources" db:"energy_sources"`
	DataRef           string         `json:"data_ref" db:"data_ref"` // opaque off-chain reference
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	Verified          bool           `json:"verified" db:"verified"`
	VerificationScore int            `json:"verification_score" db:"verification_score"`
	Verifier          string         `json:"verifier" db:"verifier"` // empty until verified
	VerifiedAt        *time.Time     `json:"verified_at" db:"verified_at"`
}

// CompanyScore is the persisted sustainability score row.
type CompanyScore struct {
	Company string `json:"company" db:"company"`
	Score   int    `json:"score" db:"score"`
}

var (
	ErrReportNotFound  = errors.New("ledger: emission report not found")
	ErrAlreadyVerified = errors.New("ledger: report already verified")
	ErrScoreOutOfRange = errors.New("ledger: verification score out of range")
	ErrNotAuthorized   = errors.New("ledger: caller is not an authorized verifier")
	ErrNotAdmin        = errors.New("ledger: caller is not the registry admin")
)
