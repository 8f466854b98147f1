package repository

import (
	"context"
	"errors"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"gorm.io/gorm"
)

// CallbackLogRepositoryImpl implements CallbackLogRepository interface
type CallbackLogRepositoryImpl struct {
	*BaseRepository[models.CallbackLog, models.CallbackLogFilter]
}

// NewCallbackLogRepository creates a new callback log repository
func NewCallbackLogRepository(db *gorm.DB) CallbackLogRepository {
	return &CallbackLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CallbackLog, models.CallbackLogFilter](db),
	}
}

// ByID finds a callback log by ID
func (r *CallbackLogRepositoryImpl) ByID(ctx context.Context, id uint) (*models.CallbackLog, error) {
	db := r.getDB(ctx)
	var log models.CallbackLog
	err := db.First(&log, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// ListNeedingReconciliation returns rejected and unmatched callbacks in a window
func (r *CallbackLogRepositoryImpl) ListNeedingReconciliation(ctx context.Context, filter models.CallbackLogFilter, limit int) ([]*models.CallbackLog, error) {
	db := r.getDB(ctx)
	var logs []*models.CallbackLog

	query := db.Model(&models.CallbackLog{}).
		Where("disposition IN ?", []models.CallbackDisposition{
			models.CallbackRejectedChecksum,
			models.CallbackUnmatched,
			models.CallbackMismatched,
			models.CallbackMalformed,
		})
	query = r.applyFilter(query, filter)
	query = query.Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListByTransaction returns all callbacks linked to a payment transaction
func (r *CallbackLogRepositoryImpl) ListByTransaction(ctx context.Context, transactionID uint) ([]*models.CallbackLog, error) {
	db := r.getDB(ctx)
	var logs []*models.CallbackLog
	err := db.Where("transaction_id = ?", transactionID).Order("created_at ASC").Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ByFilter retrieves callback logs based on filter criteria
func (r *CallbackLogRepositoryImpl) ByFilter(ctx context.Context, filter models.CallbackLogFilter, orderBy string, limit, offset int) ([]*models.CallbackLog, error) {
	db := r.getDB(ctx)
	var logs []*models.CallbackLog

	query := db.Model(&models.CallbackLog{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Count returns the number of callback logs matching the filter
func (r *CallbackLogRepositoryImpl) Count(ctx context.Context, filter models.CallbackLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.CallbackLog{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any callback log matching the filter exists
func (r *CallbackLogRepositoryImpl) Exists(ctx context.Context, filter models.CallbackLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *CallbackLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.CallbackLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.DeptRefNo != nil {
		query = query.Where("dept_ref_no = ?", *filter.DeptRefNo)
	}
	if filter.GatewayTxnID != nil {
		query = query.Where("gateway_txn_id = ?", *filter.GatewayTxnID)
	}
	if filter.Disposition != nil {
		query = query.Where("disposition = ?", *filter.Disposition)
	}
	if filter.TransactionID != nil {
		query = query.Where("transaction_id = ?", *filter.TransactionID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
