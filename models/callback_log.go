package models

import (
	"time"
)

// CallbackDisposition classifies what happened to an inbound gateway callback.
type CallbackDisposition string

const (
	CallbackAccepted         CallbackDisposition = "accepted"          // advanced a transaction
	CallbackRejectedChecksum CallbackDisposition = "rejected_checksum" // checksum did not verify
	CallbackUnmatched        CallbackDisposition = "unmatched"         // valid payload, unknown reference
	CallbackMismatched       CallbackDisposition = "mismatched"        // matched transaction, payload fields diverge
	CallbackDuplicate        CallbackDisposition = "duplicate"         // transaction already past redirected
	CallbackMalformed        CallbackDisposition = "malformed"         // could not decrypt or parse
)

// CallbackLog records every inbound callback attempt, accepted or not. Rejected
// and unmatched rows are the input to the manual reconciliation export; they
// are never surfaced to the paying user.
type CallbackLog struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	Disposition CallbackDisposition `gorm:"type:varchar(20);not null;index" json:"disposition"`

	// Raw ciphertext exactly as received, kept for replay during reconciliation
	RawPayload string `gorm:"type:text" json:"raw_payload"`

	// Populated when decryption and parsing succeeded
	DeptRefNo    string `gorm:"type:varchar(32);index" json:"dept_ref_no"`
	AppRefNo     string `gorm:"type:varchar(32)" json:"app_ref_no"`
	GatewayTxnID string `gorm:"type:varchar(64)" json:"gateway_txn_id"`
	StatusCode   string `gorm:"type:varchar(16)" json:"status_code"`
	Amount       string `gorm:"type:varchar(20)" json:"amount"`

	// Matched transaction, if any
	TransactionID *uint `gorm:"index" json:"transaction_id,omitempty"`

	Detail    string    `gorm:"type:text" json:"detail"`
	IPAddress string    `gorm:"type:varchar(45)" json:"ip_address"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (CallbackLog) TableName() string { return "callback_log" }

// NeedsReconciliation returns true for rows an operator should look at.
func (c *CallbackLog) NeedsReconciliation() bool {
	return c.Disposition == CallbackRejectedChecksum ||
		c.Disposition == CallbackUnmatched ||
		c.Disposition == CallbackMismatched ||
		c.Disposition == CallbackMalformed
}

// CallbackLogFilter represents filter criteria for callback log queries
type CallbackLogFilter struct {
	ID            *uint                `json:"id,omitempty"`
	Disposition   *CallbackDisposition `json:"disposition,omitempty"`
	DeptRefNo     *string              `json:"dept_ref_no,omitempty"`
	GatewayTxnID  *string              `json:"gateway_txn_id,omitempty"`
	TransactionID *uint                `json:"transaction_id,omitempty"`
	CreatedAfter  *time.Time           `json:"created_after,omitempty"`
	CreatedBefore *time.Time           `json:"created_before,omitempty"`
}
