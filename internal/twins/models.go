package twins

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// DigitalTwin mirrors one physical facility: a baseline emission snapshot
// fixed at creation and a current value the owner keeps up to date.
type DigitalTwin struct {
	TwinID            string         `json:"twin_id" gorm:"primaryKey"`
	Owner             string         `json:"owner" gorm:"not null;index"`
	FacilityType      string         `json:"facility_type"`
	BaselineEmissions uint64         `json:"baseline_emissions" gorm:"not null"`
	CurrentEmissions  uint64         `json:"current_emissions" gorm:"not null"`
	DataRef           string         `json:"data_ref"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"default:'{}'"`
	Active            bool           `json:"active" gorm:"default:true"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (DigitalTwin) TableName() string {
	return "digital_twins"
}

var (
	ErrTwinExists   = errors.New("twins: twin id already registered")
	ErrTwinNotFound = errors.New("twins: twin not found")
	ErrTwinInactive = errors.New("twins: twin is inactive")
	ErrNotOwner     = errors.New("twins: caller does not own this twin")
)
