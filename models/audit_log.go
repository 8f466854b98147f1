// Package models contains domain entities and business models for the settlement service
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TransactionID *uint           `gorm:"index:idx_audit_transaction_id" json:"transaction_id,omitempty"`
	Action        string          `gorm:"type:varchar(50);not null;index:idx_audit_action" json:"action"`
	Description   *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress     *string         `gorm:"type:inet;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent     *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID     *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata      json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success       *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage  *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionPaymentInitiated        = "payment_initiated"
	AuditActionPaymentInitiationFailed = "payment_initiation_failed"
	AuditActionRedirectIssued          = "redirect_issued"
	AuditActionCallbackProcessed       = "callback_processed"
	AuditActionCallbackRejected        = "callback_rejected"
	AuditActionPaymentVerified         = "payment_verified"
	AuditActionPaymentSettled          = "payment_settled"
	AuditActionPaymentFailed           = "payment_failed"
	AuditActionReconciliationExported  = "reconciliation_exported"
	AuditActionOperatorLogin           = "operator_login"
	AuditActionOperatorLoginFailed     = "operator_login_failed"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	TransactionID *uint
	Action        *string
	Success       *bool
	IPAddress     *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
