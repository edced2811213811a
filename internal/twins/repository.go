package twins

import (
	"context"

	"gorm.io/gorm"
)

// Repository journals twin state through gorm.
type Repository interface {
	SaveTwin(ctx context.Context, twin *DigitalTwin) error
	UpdateTwin(ctx context.Context, twin *DigitalTwin) error
	LoadTwins(ctx context.Context) ([]DigitalTwin, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) SaveTwin(ctx context.Context, twin *DigitalTwin) error {
	return r.db.WithContext(ctx).Create(twin).Error
}

func (r *gormRepository) UpdateTwin(ctx context.Context, twin *DigitalTwin) error {
	return r.db.WithContext(ctx).
		Model(&DigitalTwin{}).
		Where("twin_id = ?", twin.TwinID).
		Updates(map[string]interface{}{
			"current_emissions": twin.CurrentEmissions,
			"updated_at":        twin.UpdatedAt,
			"active":            twin.Active,
		}).Error
}

func (r *gormRepository) LoadTwins(ctx context.Context) ([]DigitalTwin, error) {
	var twins []DigitalTwin
	if err := r.db.WithContext(ctx).Order("created_at").Find(&twins).Error; err != nil {
		return nil, err
	}
	return twins, nil
}
