// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// TxRunner executes a function within a database transaction. Flows depend on
// this interface rather than *gorm.DB so they can be exercised without a
// database.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentTransactionRepository defines operations for payment transactions
type PaymentTransactionRepository interface {
	Repository[models.PaymentTransaction, models.PaymentTransactionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.PaymentTransaction, error)
	ByDeptRefNo(ctx context.Context, deptRefNo string) (*models.PaymentTransaction, error)
	ByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*models.PaymentTransaction, error)
	ByApplicationID(ctx context.Context, applicationID uint) ([]*models.PaymentTransaction, error)
	CountAttempts(ctx context.Context, applicationID uint) (int64, error)
	Update(ctx context.Context, transaction *models.PaymentTransaction) error

	// UpdateStatusIfCurrent performs a single conditional UPDATE, applying
	// updates only if the row's status still equals from. It reports whether
	// this caller won the transition. All state machine transitions, and in
	// particular verified -> settled, go through this method so concurrent
	// attempts race safely at the database.
	UpdateStatusIfCurrent(ctx context.Context, id uint, from, to models.PaymentTransactionStatus, updates map[string]any) (bool, error)

	ListExpired(ctx context.Context, limit int) ([]*models.PaymentTransaction, error)
}

// GatewaySettingRepository defines read operations for the persisted override
// record. Writes happen through an administrative interface outside this
// service.
type GatewaySettingRepository interface {
	Repository[models.GatewaySetting, models.GatewaySettingFilter]
	ByName(ctx context.Context, name string) (*models.GatewaySetting, error)
}

// CallbackLogRepository defines operations for callback logs
type CallbackLogRepository interface {
	Repository[models.CallbackLog, models.CallbackLogFilter]
	ListNeedingReconciliation(ctx context.Context, filter models.CallbackLogFilter, limit int) ([]*models.CallbackLog, error)
	ListByTransaction(ctx context.Context, transactionID uint) ([]*models.CallbackLog, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByTransaction(ctx context.Context, transactionID uint) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit int) ([]*models.AuditLog, error)
}
