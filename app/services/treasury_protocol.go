package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedCallback indicates a decrypted callback payload that does not
	// match the gateway's pipe-delimited Key=Value contract
	ErrMalformedCallback = errors.New("malformed callback payload")
	// ErrPrimaryHeadMissing indicates a resolved config without a slot-1 budget head
	ErrPrimaryHeadMissing = errors.New("primary budget head not configured")
)

// Gateway config statuses. Placeholder config keeps non-production environments
// operable; consumers must check the status before treating a config as live.
const (
	ConfigStatusPlaceholder = "placeholder"
	ConfigStatusProduction  = "production"
	ConfigStatusOverride    = "override"
)

// BudgetHead is one treasury accounting head with its share of the total
type BudgetHead struct {
	Slot    int // wire slot: 1, 2, 3, 4 or 10
	Code    string
	Percent decimal.Decimal
}

// GatewayConfig is the resolved, per-transaction credential and routing
// snapshot. It is never persisted; resolution re-runs on every use.
type GatewayConfig struct {
	MerchantCode string
	DeptID       string
	ServiceCode  string
	DdoCode      string
	Heads        []BudgetHead
	ReturnURL    string
	KeyPath      string
	ConfigStatus string
	IsComplete   bool
}

// Head returns the budget head occupying the given wire slot, if any
func (c GatewayConfig) Head(slot int) (BudgetHead, bool) {
	for _, h := range c.Heads {
		if h.Slot == slot {
			return h, true
		}
	}
	return BudgetHead{}, false
}

// RequestInput carries the per-transaction values for the outbound request
type RequestInput struct {
	DeptRefNo   string
	AppRefNo    string
	PayerID     string
	TotalAmount decimal.Decimal
	PeriodFrom  string
	PeriodTo    string
}

// BuiltRequest is the assembled outbound request
type BuiltRequest struct {
	CoreString  string
	Checksum    string
	RedirectURL string
}

// CallbackPayload is the destructured gateway callback. Ephemeral; validated
// before it is allowed to touch a payment transaction.
type CallbackPayload struct {
	EchTxnID    string
	BankRefNo   string
	BankName    string
	StatusCode  string
	StatusText  string
	DeptRefNo   string
	AppRefNo    string
	Amount      decimal.Decimal
	PaymentDate string
	Checksum    string
}

// IsSuccess reports whether the gateway marked the payment successful
func (p CallbackPayload) IsSuccess() bool {
	return strings.EqualFold(p.StatusCode, "S") || strings.EqualFold(p.StatusCode, "SUCCESS")
}

// TreasuryProtocol builds outbound request strings and parses callbacks
type TreasuryProtocol interface {
	BuildRequest(cfg GatewayConfig, in RequestInput) (*BuiltRequest, error)
	// RedirectFor rebuilds the redirect URL for an already assembled core
	// string. Encryption is deterministic for this codec, so a stored core
	// string always reproduces the original redirect.
	RedirectFor(coreString, merchantCode string) (string, error)
	ParseCallback(decrypted string) (*CallbackPayload, error)
}

type treasuryProtocol struct {
	codec    TreasuryCodec
	endpoint string
}

// NewTreasuryProtocol creates the protocol service for the given gateway endpoint
func NewTreasuryProtocol(codec TreasuryCodec, endpoint string) TreasuryProtocol {
	return &treasuryProtocol{codec: codec, endpoint: endpoint}
}

// BuildRequest assembles the ordered pipe-delimited core string, checksums and
// encrypts it, and produces the redirect URL.
//
// Field order is part of the external contract:
// DeptId, DeptRefNo, TotalAmount, PayerId, AppRefNo, Head1, Amount1,
// [Head2, Amount2], Ddo, PeriodFrom, PeriodTo, [Head3, Amount3],
// [Head4, Amount4], [Head10, Amount10], [ServiceCode], [ReturnUrl].
func (s *treasuryProtocol) BuildRequest(cfg GatewayConfig, in RequestInput) (*BuiltRequest, error) {
	head1, ok := cfg.Head(1)
	if !ok || head1.Code == "" {
		return nil, ErrPrimaryHeadMissing
	}

	total := roundRupees(in.TotalAmount)
	amounts := splitAcrossHeads(cfg, total)

	fields := make([]wireField, 0, 24)
	fields = append(fields,
		wireField{"DeptId", cfg.DeptID},
		wireField{"DeptRefNo", in.DeptRefNo},
		wireField{"TotalAmount", total.String()},
		wireField{"PayerId", in.PayerID},
		wireField{"AppRefNo", in.AppRefNo},
		wireField{"Head1", head1.Code},
		wireField{"Amount1", amounts[1].String()},
	)
	fields = appendHeadPair(fields, cfg, amounts, 2)
	fields = append(fields,
		wireField{"Ddo", cfg.DdoCode},
		wireField{"PeriodFrom", in.PeriodFrom},
		wireField{"PeriodTo", in.PeriodTo},
	)
	fields = appendHeadPair(fields, cfg, amounts, 3)
	fields = appendHeadPair(fields, cfg, amounts, 4)
	fields = appendHeadPair(fields, cfg, amounts, 10)
	if includeServiceCode(cfg) {
		fields = append(fields, wireField{"ServiceCode", cfg.ServiceCode})
	}
	if includeReturnURL(cfg) {
		fields = append(fields, wireField{"ReturnUrl", cfg.ReturnURL})
	}

	core := joinFields(fields)
	checksum := s.codec.Checksum(core)

	redirect, err := s.RedirectFor(core, cfg.MerchantCode)
	if err != nil {
		return nil, err
	}

	return &BuiltRequest{
		CoreString:  core,
		Checksum:    checksum,
		RedirectURL: redirect,
	}, nil
}

// RedirectFor encrypts the core string and embeds it with its checksum in the
// gateway redirect URL
func (s *treasuryProtocol) RedirectFor(coreString, merchantCode string) (string, error) {
	encrypted, err := s.codec.Encrypt(coreString)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s?encdata=%s&checksum=%s&merchant=%s",
		s.endpoint, url.QueryEscape(encrypted), s.codec.Checksum(coreString), url.QueryEscape(merchantCode)), nil
}

// ParseCallback destructures a decrypted pipe-delimited callback payload
func (s *treasuryProtocol) ParseCallback(decrypted string) (*CallbackPayload, error) {
	values := map[string]string{}
	for _, part := range strings.Split(decrypted, "|") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: field %q has no key/value separator", ErrMalformedCallback, part)
		}
		values[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	for _, required := range []string{"DeptRefNo", "AppRefNo", "StatusCode", "Amount"} {
		if values[required] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedCallback, required)
		}
	}

	amount, err := decimal.NewFromString(values["Amount"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad Amount %q", ErrMalformedCallback, values["Amount"])
	}

	return &CallbackPayload{
		EchTxnID:    values["EchTxnId"],
		BankRefNo:   values["BankRefNo"],
		BankName:    values["BankName"],
		StatusCode:  values["StatusCode"],
		StatusText:  values["StatusText"],
		DeptRefNo:   values["DeptRefNo"],
		AppRefNo:    values["AppRefNo"],
		Amount:      amount,
		PaymentDate: values["PaymentDate"],
		Checksum:    values["Checksum"],
	}, nil
}

type wireField struct {
	key   string
	value string
}

func joinFields(fields []wireField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.key+"="+f.value)
	}
	return strings.Join(parts, "|")
}

// includeHeadPair is the inclusion predicate for optional head/amount pairs:
// the pair goes on the wire only when a head code is configured and its amount
// rounds to a positive integer.
func includeHeadPair(code string, amount decimal.Decimal) bool {
	return code != "" && amount.IsPositive()
}

func includeServiceCode(cfg GatewayConfig) bool {
	return cfg.ServiceCode != ""
}

func includeReturnURL(cfg GatewayConfig) bool {
	return cfg.ReturnURL != ""
}

func appendHeadPair(fields []wireField, cfg GatewayConfig, amounts map[int]decimal.Decimal, slot int) []wireField {
	head, ok := cfg.Head(slot)
	if !ok {
		return fields
	}
	if !includeHeadPair(head.Code, amounts[slot]) {
		return fields
	}
	return append(fields,
		wireField{fmt.Sprintf("Head%d", slot), head.Code},
		wireField{fmt.Sprintf("Amount%d", slot), amounts[slot].String()},
	)
}

// splitAcrossHeads apportions the integer total across configured heads by
// percentage. Slot 1 absorbs the remainder so the amounts always sum to the
// total despite per-head rounding.
func splitAcrossHeads(cfg GatewayConfig, total decimal.Decimal) map[int]decimal.Decimal {
	amounts := map[int]decimal.Decimal{}
	secondary := decimal.Zero
	for _, h := range cfg.Heads {
		if h.Slot == 1 {
			continue
		}
		amt := roundRupees(total.Mul(h.Percent).Div(decimal.NewFromInt(100)))
		amounts[h.Slot] = amt
		if includeHeadPair(h.Code, amt) {
			secondary = secondary.Add(amt)
		}
	}
	amounts[1] = total.Sub(secondary)
	return amounts
}

// roundRupees rounds a monetary amount to the nearest whole rupee. Fractional
// amounts are a protocol violation on the wire.
func roundRupees(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}
