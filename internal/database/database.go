package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"liquidation-api/internal/compliance"
	"liquidation-api/internal/pricing"
	"liquidation-api/internal/provider"
	"liquidation-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migrations for every entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.LiquidationRequest{},
		&types.AssetEligibility{},
		&types.IdempotencyRecord{},
		&compliance.ComplianceCheck{},
		&pricing.MarketPriceSnapshot{},
		&provider.LiquidityProvider{},
	)
}
