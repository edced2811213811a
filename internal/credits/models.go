package credits

import (
	"errors"
	"fmt"
	"time"
)

// CreditType is the closed set of credit categories. Unknown values are
// rejected at the boundary, not at storage time.
type CreditType string

const (
	TypeRenewableEnergy    CreditType = "renewable_energy"
	TypeForestConservation CreditType = "forest_conservation"
	TypeCarbonCapture      CreditType = "carbon_capture"
	TypeEnergyEfficiency   CreditType = "energy_efficiency"
)

func ParseCreditType(s string) (CreditType, error) {
	switch CreditType(s) {
	case TypeRenewableEnergy, TypeForestConservation, TypeCarbonCapture, TypeEnergyEfficiency:
		return CreditType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCreditType, s)
	}
}

// Lifecycle statuses, enforced by the workflows state machine.
const (
	StatusMinted  = "MINTED"
	StatusTraded  = "TRADED"
	StatusRetired = "RETIRED"
)

// CarbonCredit is one lot: a discrete quantity of credit with a single
// owner. Partial trades split a lot into two; the amounts across a split
// chain are conserved.
type CarbonCredit struct {
	ID                int64      `json:"id" db:"id"`
	Owner             string     `json:"owner" db:"owner"`
	Amount            uint64     `json:"amount" db:"amount"` // tons CO2
	PricePerTon       uint64     `json:"price_per_ton" db:"price_per_ton"`
	CertificationHash string     `json:"certification_hash" db:"certification_hash"`
	ProjectDetails    string     `json:"project_details" db:"project_details"`
	Retired           bool       `json:"retired" db:"retired"`
	Vintage           int        `json:"vintage" db:"vintage"`
	CreditType        CreditType `json:"credit_type" db:"credit_type"`
	Status            string     `json:"status" db:"status"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

var (
	ErrInvalidAmount       = errors.New("credits: amount must be greater than zero")
	ErrInvalidVintage      = errors.New("credits: vintage year out of range")
	ErrInvalidCreditType   = errors.New("credits: unknown credit type")
	ErrCreditNotFound      = errors.New("credits: credit not found")
	ErrCreditRetired       = errors.New("credits: credit already retired")
	ErrInsufficientAmount  = errors.New("credits: trade amount exceeds lot amount")
	ErrInsufficientPayment = errors.New("credits: attached payment below required total")
	ErrSelfTrade           = errors.New("credits: cannot trade a credit with yourself")
	ErrNotOwner            = errors.New("credits: caller does not own this credit")
	ErrReentrantCall       = errors.New("credits: credit is settling a trade")
)
