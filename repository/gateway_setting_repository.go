package repository

import (
	"context"
	"errors"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"gorm.io/gorm"
)

// GatewaySettingRepositoryImpl implements GatewaySettingRepository interface
type GatewaySettingRepositoryImpl struct {
	*BaseRepository[models.GatewaySetting, models.GatewaySettingFilter]
}

// NewGatewaySettingRepository creates a new gateway setting repository
func NewGatewaySettingRepository(db *gorm.DB) GatewaySettingRepository {
	return &GatewaySettingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.GatewaySetting, models.GatewaySettingFilter](db),
	}
}

// ByID finds a gateway setting by ID
func (r *GatewaySettingRepositoryImpl) ByID(ctx context.Context, id uint) (*models.GatewaySetting, error) {
	db := r.getDB(ctx)
	var setting models.GatewaySetting
	err := db.First(&setting, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// ByName finds the gateway setting record by its unique name
func (r *GatewaySettingRepositoryImpl) ByName(ctx context.Context, name string) (*models.GatewaySetting, error) {
	db := r.getDB(ctx)
	var setting models.GatewaySetting
	err := db.Where("name = ?", name).Last(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// Update persists changes to an existing gateway setting
func (r *GatewaySettingRepositoryImpl) Update(ctx context.Context, setting *models.GatewaySetting) error {
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

	err = db.Save(setting).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves gateway settings based on filter criteria
func (r *GatewaySettingRepositoryImpl) ByFilter(ctx context.Context, filter models.GatewaySettingFilter, orderBy string, limit, offset int) ([]*models.GatewaySetting, error) {
	db := r.getDB(ctx)
	var settings []*models.GatewaySetting

	query := db.Model(&models.GatewaySetting{})
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

	err := query.Find(&settings).Error
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Count returns the number of gateway settings matching the filter
func (r *GatewaySettingRepositoryImpl) Count(ctx context.Context, filter models.GatewaySettingFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.GatewaySetting{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any gateway setting matching the filter exists
func (r *GatewaySettingRepositoryImpl) Exists(ctx context.Context, filter models.GatewaySettingFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *GatewaySettingRepositoryImpl) applyFilter(query *gorm.DB, filter models.GatewaySettingFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	return query
}
