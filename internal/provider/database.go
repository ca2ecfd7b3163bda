package provider

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateProvider(provider *LiquidityProvider) error {
	return d.db.Create(provider).Error
}

func (d *Database) GetProvider(providerID string) (*LiquidityProvider, error) {
	var provider LiquidityProvider
	if err := d.db.Where("provider_id = ?", providerID).First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (d *Database) UpdateProvider(provider *LiquidityProvider) error {
	return d.db.Save(provider).Error
}

// GetSelectableProviders returns providers that are active and currently
// available, ordered by fee ascending, rating descending, response time
// ascending so the first eligible row wins selection.
func (d *Database) GetSelectableProviders() ([]LiquidityProvider, error) {
	var providers []LiquidityProvider
	err := d.db.
		Where("status = ? AND available = ?", StatusActive, true).
		Order("fee_percentage ASC").
		Order("rating DESC").
		Order("avg_response_time_seconds ASC").
		Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (d *Database) ListProviders() ([]LiquidityProvider, error) {
	var providers []LiquidityProvider
	if err := d.db.Order("created_at DESC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
