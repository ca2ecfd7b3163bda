package pricing

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateSnapshot persists a new price snapshot.
func (d *Database) CreateSnapshot(snapshot *MarketPriceSnapshot) error {
	return d.db.Create(snapshot).Error
}

// GetLatestUnexpired returns the freshest base snapshot for the pair that
// is still inside its freshness window, or nil when none exists.
func (d *Database) GetLatestUnexpired(assetSymbol, outputSymbol string, now time.Time) (*MarketPriceSnapshot, error) {
	var snapshot MarketPriceSnapshot
	err := d.db.
		Where("asset_symbol = ? AND output_symbol = ? AND slippage_adjusted = ? AND expires_at > ?",
			assetSymbol, outputSymbol, false, now).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
