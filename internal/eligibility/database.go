package eligibility

import (
	"errors"

	"gorm.io/gorm"

	"liquidation-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRule(rule *types.AssetEligibility) error {
	return d.db.Create(rule).Error
}

func (d *Database) UpdateRule(rule *types.AssetEligibility) error {
	return d.db.Save(rule).Error
}

// GetRule returns the eligibility rule for an asset, or nil when the
// asset has no rule configured.
func (d *Database) GetRule(assetSymbol string) (*types.AssetEligibility, error) {
	var rule types.AssetEligibility
	if err := d.db.Where("asset_symbol = ?", assetSymbol).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (d *Database) ListRules() ([]types.AssetEligibility, error) {
	var rules []types.AssetEligibility
	if err := d.db.Order("asset_symbol ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
