package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentTransactionStatus represents the status of a payment transaction
type PaymentTransactionStatus string

const (
	PaymentStatusInitiated           PaymentTransactionStatus = "initiated"            // Transaction created, request not yet built
	PaymentStatusRedirected          PaymentTransactionStatus = "redirected"           // Redirect URL issued, waiting for gateway callback
	PaymentStatusPendingVerification PaymentTransactionStatus = "pending_verification" // Callback received and checksum-verified
	PaymentStatusVerified            PaymentTransactionStatus = "verified"             // Bank transaction identifier confirmed
	PaymentStatusSettled             PaymentTransactionStatus = "settled"              // Certificate issuance triggered, terminal
	PaymentStatusFailed              PaymentTransactionStatus = "failed"               // Cancelled or terminal gateway error, terminal
)

// PaymentTransaction represents one attempt to pay a licensing fee through the
// treasury gateway. Rows are append-only: a failed attempt is retried with a new
// row carrying the next attempt number, never by resurrecting this one.
type PaymentTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	// Licensing application this payment belongs to
	ApplicationID uint `gorm:"not null;index" json:"application_id"`
	Attempt       int  `gorm:"not null;default:1" json:"attempt"`

	// DeptRefNo correlates our outbound request with the gateway callback.
	// Derived deterministically from ApplicationID and Attempt.
	DeptRefNo string `gorm:"type:varchar(32);uniqueIndex;not null" json:"dept_ref_no"`

	// AppRefNo is the upstream application reference carried in the request
	// and echoed back by the gateway
	AppRefNo string `gorm:"type:varchar(32)" json:"app_ref_no"`

	Amount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	District string          `gorm:"type:varchar(100)" json:"district"`

	// Request leg, stored for audit and replay
	RequestPlaintext string `gorm:"type:text" json:"request_plaintext"`
	RequestChecksum  string `gorm:"type:varchar(64)" json:"request_checksum"`
	ConfigStatus     string `gorm:"type:varchar(20)" json:"config_status"` // resolver status snapshot at initiation

	// Callback/verification leg
	GatewayTxnID string `gorm:"type:varchar(64);index" json:"gateway_txn_id"`
	BankRefNo    string `gorm:"type:varchar(64)" json:"bank_ref_no"`
	BankName     string `gorm:"type:varchar(100)" json:"bank_name"`
	PaymentDate  string `gorm:"type:varchar(32)" json:"payment_date"`

	Status       PaymentTransactionStatus `gorm:"type:varchar(25);not null;default:'initiated';index" json:"status"`
	StatusReason string                   `gorm:"type:text" json:"status_reason"`

	// Settlement outcome, recorded once at the verified->settled transition and
	// replayed verbatim on duplicate confirmation attempts
	SettlementResult json.RawMessage `gorm:"type:jsonb" json:"settlement_result,omitempty"`

	CallbackReceivedAt *time.Time `gorm:"index" json:"callback_received_at,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// BeforeCreate ensures UUID and CorrelationID are set
func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// DeptRefNoFor derives the department reference number for an application and
// attempt. The derivation is deterministic so re-submission of the same attempt
// is idempotent at the generation layer.
func DeptRefNoFor(applicationID uint, attempt int) string {
	return fmt.Sprintf("%s%09d%02d", utils.DeptRefNoPrefix, applicationID, attempt)
}

// IsFinal returns true if the transaction is in a terminal state
func (t *PaymentTransaction) IsFinal() bool {
	return t.Status == PaymentStatusSettled || t.Status == PaymentStatusFailed
}

// IsAwaitingCallback returns true while the gateway may still call back
func (t *PaymentTransaction) IsAwaitingCallback() bool {
	return t.Status == PaymentStatusRedirected
}

// IsExpired returns true if the transaction has passed its expiry
func (t *PaymentTransaction) IsExpired() bool {
	return utils.IsExpiredPtr(t.ExpiresAt)
}

// CanBeConfirmed returns true if a manual confirmation may still act on it
func (t *PaymentTransaction) CanBeConfirmed() bool {
	return t.Status == PaymentStatusPendingVerification || t.Status == PaymentStatusVerified
}

// PaymentTransactionFilter represents filter criteria for transaction queries
type PaymentTransactionFilter struct {
	ID            *uint                     `json:"id,omitempty"`
	UUID          *uuid.UUID                `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID                `json:"correlation_id,omitempty"`
	ApplicationID *uint                     `json:"application_id,omitempty"`
	DeptRefNo     *string                   `json:"dept_ref_no,omitempty"`
	GatewayTxnID  *string                   `json:"gateway_txn_id,omitempty"`
	Status        *PaymentTransactionStatus `json:"status,omitempty"`
	District      *string                   `json:"district,omitempty"`
	CreatedAfter  *time.Time                `json:"created_after,omitempty"`
	CreatedBefore *time.Time                `json:"created_before,omitempty"`
	ExpiresBefore *time.Time                `json:"expires_before,omitempty"`
}
