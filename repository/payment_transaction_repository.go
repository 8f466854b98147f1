package repository

import (
	"context"
	"errors"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"gorm.io/gorm"
)

// PaymentTransactionRepositoryImpl implements PaymentTransactionRepository interface
type PaymentTransactionRepositoryImpl struct {
	*BaseRepository[models.PaymentTransaction, models.PaymentTransactionFilter]
}

// NewPaymentTransactionRepository creates a new payment transaction repository
func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &PaymentTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PaymentTransaction, models.PaymentTransactionFilter](db),
	}
}

// ByID finds a payment transaction by ID
func (r *PaymentTransactionRepositoryImpl) ByID(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transaction models.PaymentTransaction
	err := db.First(&transaction, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// ByUUID finds a payment transaction by UUID
func (r *PaymentTransactionRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transaction models.PaymentTransaction
	err := db.Where("uuid = ?", uuid).Last(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// ByDeptRefNo finds a payment transaction by department reference number
func (r *PaymentTransactionRepositoryImpl) ByDeptRefNo(ctx context.Context, deptRefNo string) (*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transaction models.PaymentTransaction
	err := db.Where("dept_ref_no = ?", deptRefNo).Last(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// ByGatewayTxnID finds a payment transaction by the gateway transaction identifier
func (r *PaymentTransactionRepositoryImpl) ByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transaction models.PaymentTransaction
	err := db.Where("gateway_txn_id = ?", gatewayTxnID).Last(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// ByApplicationID finds all payment transactions for a licensing application
func (r *PaymentTransactionRepositoryImpl) ByApplicationID(ctx context.Context, applicationID uint) ([]*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transactions []*models.PaymentTransaction
	err := db.Where("application_id = ?", applicationID).Order("attempt ASC").Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// CountAttempts counts prior payment attempts for an application
func (r *PaymentTransactionRepositoryImpl) CountAttempts(ctx context.Context, applicationID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.PaymentTransaction{}).
		Where("application_id = ?", applicationID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Update persists changes to an existing payment transaction
func (r *PaymentTransactionRepositoryImpl) Update(ctx context.Context, transaction *models.PaymentTransaction) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Save(transaction).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateStatusIfCurrent performs the conditional status transition. The WHERE
// clause on the current status makes the update atomic: of two concurrent
// callers only one sees RowsAffected == 1.
func (r *PaymentTransactionRepositoryImpl) UpdateStatusIfCurrent(ctx context.Context, id uint, from, to models.PaymentTransactionStatus, updates map[string]any) (bool, error) {
	db := r.getDB(ctx)

	values := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range updates {
		values[k] = v
	}

	res := db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpired returns non-terminal transactions whose expiry has passed
func (r *PaymentTransactionRepositoryImpl) ListExpired(ctx context.Context, limit int) ([]*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transactions []*models.PaymentTransaction

	query := db.Where("expires_at < ? AND status IN ?", utils.UTCNow(),
		[]models.PaymentTransactionStatus{models.PaymentStatusInitiated, models.PaymentStatusRedirected}).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// ByFilter retrieves payment transactions based on filter criteria
func (r *PaymentTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.PaymentTransactionFilter, orderBy string, limit, offset int) ([]*models.PaymentTransaction, error) {
	db := r.getDB(ctx)
	var transactions []*models.PaymentTransaction

	query := db.Model(&models.PaymentTransaction{})
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

	err := query.Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// Count returns the number of payment transactions matching the filter
func (r *PaymentTransactionRepositoryImpl) Count(ctx context.Context, filter models.PaymentTransactionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.PaymentTransaction{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any payment transaction matching the filter exists
func (r *PaymentTransactionRepositoryImpl) Exists(ctx context.Context, filter models.PaymentTransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *PaymentTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.PaymentTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CorrelationID != nil {
		query = query.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.ApplicationID != nil {
		query = query.Where("application_id = ?", *filter.ApplicationID)
	}
	if filter.DeptRefNo != nil {
		query = query.Where("dept_ref_no = ?", *filter.DeptRefNo)
	}
	if filter.GatewayTxnID != nil {
		query = query.Where("gateway_txn_id = ?", *filter.GatewayTxnID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.District != nil {
		query = query.Where("district = ?", *filter.District)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	return query
}
