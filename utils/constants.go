package utils

import (
	"time"
)

// Payment constants
const (
	// RupeeCurrency is the ISO currency code stored on every transaction
	RupeeCurrency = "INR"

	// PaymentExpiry is how long a redirect stays payable before the sweeper fails it
	PaymentExpiry = 45 * time.Minute

	// DeptRefNoPrefix prefixes every department reference number
	DeptRefNoPrefix = "TL"

	// GatewaySettingName is the fixed key of the persisted override record
	GatewaySettingName = "treasury_gateway_override"
)

// HTTP constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Token time constants
const (
	// AccessTokenTTL is the time-to-live for operator access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for operator refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)
