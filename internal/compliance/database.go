package compliance

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

func (d *Database) CreateCheck(check *ComplianceCheck) error {
	return d.db.Create(check).Error
}

func (d *Database) UpdateCheck(check *ComplianceCheck) error {
	return d.db.Save(check).Error
}

func (d *Database) GetCheck(checkID string) (*ComplianceCheck, error) {
	var check ComplianceCheck
	if err := d.db.Where("check_id = ?", checkID).First(&check).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &check, nil
}

// GetChecksByRequest returns every check recorded for a request, in
// creation order.
func (d *Database) GetChecksByRequest(requestID string) ([]ComplianceCheck, error) {
	var checks []ComplianceCheck
	if err := d.db.Where("request_id = ?", requestID).Order("id ASC").Find(&checks).Error; err != nil {
		return nil, err
	}
	return checks, nil
}
