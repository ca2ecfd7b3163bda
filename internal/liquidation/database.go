package liquidation

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"liquidation-api/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRequest(request *types.LiquidationRequest) error {
	return d.db.Create(request).Error
}

func (d *Database) GetRequest(requestID string) (*types.LiquidationRequest, error) {
	var request types.LiquidationRequest
	if err := d.db.Where("request_id = ?", requestID).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (d *Database) UpdateRequest(request *types.LiquidationRequest) error {
	return d.db.Save(request).Error
}

// TransitionStatus flips a request's status with an optimistic predicate
// on the current status. It reports false when the request was not in
// the expected state, which makes concurrent Process calls on the same
// request fail fast instead of racing.
func (d *Database) TransitionStatus(requestID, from, to string, now time.Time) (bool, error) {
	result := d.db.Model(&types.LiquidationRequest{}).
		Where("request_id = ? AND status = ?", requestID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelTransition moves a request to CANCELLED only if it is still in
// the observed status, stamping the reason and completion time in the
// same conditional write.
func (d *Database) CancelTransition(requestID, from, reason string, now time.Time) (bool, error) {
	result := d.db.Model(&types.LiquidationRequest{}).
		Where("request_id = ? AND status = ?", requestID, from).
		Updates(map[string]interface{}{
			"status":           types.StatusCancelled,
			"rejection_reason": reason,
			"completed_at":     now,
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListRequests applies the filter, pagination and sort direction and
// returns the matching page plus the total match count.
func (d *Database) ListRequests(filter types.RequestFilter) ([]types.LiquidationRequest, int64, error) {
	query := d.db.Model(&types.LiquidationRequest{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.AssetSymbol != "" {
		query = query.Where("asset_symbol = ?", filter.AssetSymbol)
	}
	if filter.OutputSymbol != "" {
		query = query.Where("output_symbol = ?", filter.OutputSymbol)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.MinAmount > 0 {
		query = query.Where("amount >= ?", filter.MinAmount)
	}
	if filter.MaxAmount > 0 {
		query = query.Where("amount <= ?", filter.MaxAmount)
	}
	if !filter.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		query = query.Where("created_at <= ?", filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	order := "created_at ASC"
	if filter.SortDesc {
		order = "created_at DESC"
	}

	var requests []types.LiquidationRequest
	err := query.
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// GetExpiredPending returns pending requests whose expiry has passed.
func (d *Database) GetExpiredPending(now time.Time) ([]types.LiquidationRequest, error) {
	var requests []types.LiquidationRequest
	err := d.db.
		Where("status = ? AND expires_at <= ?", types.StatusPending, now).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// CreateRequestWithIdempotency creates the request and its idempotency
// record in one transaction.
func (d *Database) CreateRequestWithIdempotency(request *types.LiquidationRequest, idempotencyKey string, expiresAt time.Time) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(request).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := types.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     request.RequestID,
		ResourceType:   "liquidation_request",
		ExpiresAt:      expiresAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key, or nil
// when the key is unknown.
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
