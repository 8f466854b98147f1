package dto

import "time"

// FeeQuoteRequest represents the inputs for a registration fee quote
type FeeQuoteRequest struct {
	Category            string `json:"category" query:"category" validate:"required,oneof=silver gold diamond"`
	LocationType        string `json:"location_type" query:"location_type" validate:"required,oneof=municipal town gram-panchayat"`
	ValidityYears       int    `json:"validity_years" query:"validity_years" validate:"required,oneof=1 3"`
	OwnerIsFemale       bool   `json:"owner_is_female" query:"owner_is_female"`
	IsRemoteSubdivision bool   `json:"is_remote_subdivision" query:"is_remote_subdivision"`
}

// FeeQuoteResponse represents the derived fee breakdown
type FeeQuoteResponse struct {
	BaseFee              string `json:"base_fee"`
	TotalBeforeDiscounts string `json:"total_before_discounts"`
	ValidityDiscount     string `json:"validity_discount"`
	FemaleOwnerDiscount  string `json:"female_owner_discount"`
	RemoteAreaDiscount   string `json:"remote_area_discount"`
	FinalFee             string `json:"final_fee"`
	Currency             string `json:"currency"`
}

// InitiatePaymentRequest is the inbound trigger from the workflow engine
type InitiatePaymentRequest struct {
	ApplicationID uint   `json:"application_id" validate:"required"`
	AppRefNo      string `json:"app_ref_no" validate:"required,max=32"`
	District      string `json:"district" validate:"required,max=100"`
	PeriodFrom    string `json:"period_from" validate:"required"`
	PeriodTo      string `json:"period_to" validate:"required"`

	// Fee inputs; the service computes the payable amount itself
	Category            string `json:"category" validate:"required,oneof=silver gold diamond"`
	LocationType        string `json:"location_type" validate:"required,oneof=municipal town gram-panchayat"`
	ValidityYears       int    `json:"validity_years" validate:"required,oneof=1 3"`
	OwnerIsFemale       bool   `json:"owner_is_female"`
	IsRemoteSubdivision bool   `json:"is_remote_subdivision"`
}

// InitiatePaymentResponse carries the redirect target for the browser
type InitiatePaymentResponse struct {
	DeptRefNo    string     `json:"dept_ref_no"`
	Amount       string     `json:"amount"`
	Currency     string     `json:"currency"`
	RedirectURL  string     `json:"redirect_url"`
	ConfigStatus string     `json:"config_status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// GatewayCallbackRequest is the gateway's return leg. The payload arrives
// encrypted; checksum rides alongside as its own parameter.
type GatewayCallbackRequest struct {
	EncData  string `json:"encdata" form:"encdata" query:"encdata"`
	Checksum string `json:"checksum" form:"checksum" query:"checksum"`
}

// ConfirmPaymentRequest supplies the bank transaction identifier for manual
// confirmation
type ConfirmPaymentRequest struct {
	BankRefNo string `json:"bank_ref_no" validate:"required,max=64"`
	BankName  string `json:"bank_name" validate:"omitempty,max=100"`
}

// CancelPaymentRequest carries the operator's reason for failing a transaction
type CancelPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SettlementResponse is returned from confirmation; identical for first-time
// and idempotent repeat settlement
type SettlementResponse struct {
	DeptRefNo     string `json:"dept_ref_no"`
	Status        string `json:"status"`
	CertificateNo string `json:"certificate_no,omitempty"`
	IssuedAt      string `json:"issued_at,omitempty"`
}

// PaymentStatusResponse describes one payment transaction
type PaymentStatusResponse struct {
	DeptRefNo          string     `json:"dept_ref_no"`
	ApplicationID      uint       `json:"application_id"`
	Attempt            int        `json:"attempt"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	StatusReason       string     `json:"status_reason,omitempty"`
	GatewayTxnID       string     `json:"gateway_txn_id,omitempty"`
	BankRefNo          string     `json:"bank_ref_no,omitempty"`
	BankName           string     `json:"bank_name,omitempty"`
	ConfigStatus       string     `json:"config_status,omitempty"`
	CallbackReceivedAt *time.Time `json:"callback_received_at,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
