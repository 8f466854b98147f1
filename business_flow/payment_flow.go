// Package businessflow contains the core business logic for payment settlement
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/dto"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
)

// PaymentFlow drives the request -> redirect -> callback -> verify -> settle
// lifecycle for one-time licensing fees
type PaymentFlow interface {
	QuoteFee(ctx context.Context, req *dto.FeeQuoteRequest) (*dto.FeeQuoteResponse, error)
	InitiatePayment(ctx context.Context, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error)
	ProcessCallback(ctx context.Context, req *dto.GatewayCallbackRequest, metadata *ClientMetadata) (*CallbackOutcome, error)
	ConfirmPayment(ctx context.Context, deptRefNo string, req *dto.ConfirmPaymentRequest, metadata *ClientMetadata) (*dto.SettlementResponse, error)
	CancelPayment(ctx context.Context, deptRefNo string, req *dto.CancelPaymentRequest, metadata *ClientMetadata) (*dto.PaymentStatusResponse, error)
	GetPaymentStatus(ctx context.Context, deptRefNo string) (*dto.PaymentStatusResponse, error)
}

// CallbackOutcome is what the callback endpoint shows the returning payer. A
// rejected callback never surfaces as a failure of the underlying payment.
type CallbackOutcome struct {
	Accepted  bool
	DeptRefNo string
	Status    models.PaymentTransactionStatus
	Message   string
}

// FlowSettings carries the deployment facts the flow needs beyond the
// configuration layers themselves
type FlowSettings struct {
	Defaults   GatewayDefaults
	PayerID    string
	Production bool
}

// PaymentFlowImpl implements the payment business flow
type PaymentFlowImpl struct {
	transactionRepo repository.PaymentTransactionRepository
	settingRepo     repository.GatewaySettingRepository
	callbackRepo    repository.CallbackLogRepository
	auditRepo       repository.AuditLogRepository
	tx              repository.TxRunner

	codec       services.TreasuryCodec
	protocol    services.TreasuryProtocol
	issuer      services.CertificateIssuer
	resultCache services.SettlementResultCache

	settings FlowSettings
}

// NewPaymentFlow creates a new payment flow instance
func NewPaymentFlow(
	transactionRepo repository.PaymentTransactionRepository,
	settingRepo repository.GatewaySettingRepository,
	callbackRepo repository.CallbackLogRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.TxRunner,
	codec services.TreasuryCodec,
	protocol services.TreasuryProtocol,
	issuer services.CertificateIssuer,
	resultCache services.SettlementResultCache,
	settings FlowSettings,
) PaymentFlow {
	return &PaymentFlowImpl{
		transactionRepo: transactionRepo,
		settingRepo:     settingRepo,
		callbackRepo:    callbackRepo,
		auditRepo:       auditRepo,
		tx:              tx,
		codec:           codec,
		protocol:        protocol,
		issuer:          issuer,
		resultCache:     resultCache,
		settings:        settings,
	}
}

// QuoteFee computes the registration fee breakdown without touching any state
func (p *PaymentFlowImpl) QuoteFee(ctx context.Context, req *dto.FeeQuoteRequest) (*dto.FeeQuoteResponse, error) {
	quote, err := ComputeFee(FeeInput{
		Category:            req.Category,
		LocationType:        req.LocationType,
		ValidityYears:       req.ValidityYears,
		OwnerIsFemale:       req.OwnerIsFemale,
		IsRemoteSubdivision: req.IsRemoteSubdivision,
	})
	if err != nil {
		return nil, err
	}

	return &dto.FeeQuoteResponse{
		BaseFee:              quote.BaseFee.StringFixed(2),
		TotalBeforeDiscounts: quote.TotalBeforeDiscounts.StringFixed(2),
		ValidityDiscount:     quote.ValidityDiscount.StringFixed(2),
		FemaleOwnerDiscount:  quote.FemaleOwnerDiscount.StringFixed(2),
		RemoteAreaDiscount:   quote.RemoteAreaDiscount.StringFixed(2),
		FinalFee:             quote.FinalFee.StringFixed(2),
		Currency:             utils.RupeeCurrency,
	}, nil
}

// InitiatePayment creates a payment transaction and returns the gateway
// redirect URL. Re-invocation while an attempt is still payable returns the
// existing redirect instead of opening a second attempt.
func (p *PaymentFlowImpl) InitiatePayment(ctx context.Context, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	if err := p.validateInitiateRequest(req); err != nil {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Payment could not be initiated", err)
	}

	quote, err := ComputeFee(FeeInput{
		Category:            req.Category,
		LocationType:        req.LocationType,
		ValidityYears:       req.ValidityYears,
		OwnerIsFemale:       req.OwnerIsFemale,
		IsRemoteSubdivision: req.IsRemoteSubdivision,
	})
	if err != nil {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Payment could not be initiated", err)
	}

	var transaction *models.PaymentTransaction
	var redirectURL string

	err = p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		existing, err := p.latestAttempt(txCtx, req.ApplicationID)
		if err != nil {
			return err
		}
		if existing != nil && !existing.IsFinal() && !existing.IsExpired() {
			// Idempotent re-submission of a still-payable attempt.
			redirect, err := p.protocol.RedirectFor(existing.RequestPlaintext, p.merchantCodeFor(txCtx, existing.District))
			if err != nil {
				return err
			}
			transaction = existing
			redirectURL = redirect
			return nil
		}

		cfg, err := p.resolveConfig(txCtx, req.District)
		if err != nil {
			return err
		}

		attempt := 1
		if existing != nil {
			attempt = existing.Attempt + 1
		}

		transaction = &models.PaymentTransaction{
			ApplicationID: req.ApplicationID,
			Attempt:       attempt,
			DeptRefNo:     models.DeptRefNoFor(req.ApplicationID, attempt),
			AppRefNo:      req.AppRefNo,
			Amount:        quote.FinalFee,
			Currency:      utils.RupeeCurrency,
			District:      req.District,
			ConfigStatus:  cfg.ConfigStatus,
			Status:        models.PaymentStatusInitiated,
			StatusReason:  "payment transaction created",
			ExpiresAt:     utils.UTCNowAddPtr(utils.PaymentExpiry),
		}
		if err := p.transactionRepo.Save(txCtx, transaction); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrTransactionAlreadyProcessed
			}
			return err
		}

		built, err := p.protocol.BuildRequest(cfg, services.RequestInput{
			DeptRefNo:   transaction.DeptRefNo,
			AppRefNo:    req.AppRefNo,
			PayerID:     p.settings.PayerID,
			TotalAmount: quote.FinalFee,
			PeriodFrom:  req.PeriodFrom,
			PeriodTo:    req.PeriodTo,
		})
		if err != nil {
			return err
		}

		// State: Initiated -> Redirected
		won, err := p.transactionRepo.UpdateStatusIfCurrent(txCtx, transaction.ID,
			models.PaymentStatusInitiated, models.PaymentStatusRedirected, map[string]any{
				"request_plaintext": built.CoreString,
				"request_checksum":  built.Checksum,
				"status_reason":     "redirect URL issued",
			})
		if err != nil {
			return err
		}
		if !won {
			return ErrTransactionAlreadyProcessed
		}

		transaction.RequestPlaintext = built.CoreString
		transaction.RequestChecksum = built.Checksum
		transaction.Status = models.PaymentStatusRedirected
		redirectURL = built.RedirectURL
		return nil
	})

	if err != nil {
		errMsg := fmt.Sprintf("Payment initiation failed for application %d: %s", req.ApplicationID, err.Error())
		_ = p.createAuditLog(ctx, nil, models.AuditActionPaymentInitiationFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Payment could not be initiated", err)
	}

	msg := fmt.Sprintf("Issued redirect for %s (application %d, attempt %d)", transaction.DeptRefNo, transaction.ApplicationID, transaction.Attempt)
	_ = p.createAuditLog(ctx, &transaction.ID, models.AuditActionRedirectIssued, msg, true, nil, metadata)

	return &dto.InitiatePaymentResponse{
		DeptRefNo:    transaction.DeptRefNo,
		Amount:       transaction.Amount.StringFixed(2),
		Currency:     transaction.Currency,
		RedirectURL:  redirectURL,
		ConfigStatus: transaction.ConfigStatus,
		ExpiresAt:    transaction.ExpiresAt,
	}, nil
}

// ProcessCallback decrypts, verifies and applies one inbound gateway callback.
// Every attempt is recorded in the callback log; only a verified payload for a
// transaction still awaiting its callback advances state.
func (p *PaymentFlowImpl) ProcessCallback(ctx context.Context, req *dto.GatewayCallbackRequest, metadata *ClientMetadata) (*CallbackOutcome, error) {
	ipAddress := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
	}

	plaintext, err := p.codec.Decrypt(req.EncData)
	if err != nil {
		if services.IsKeyUnavailable(err) {
			return nil, NewBusinessError("CALLBACK_FAILED", "Callback could not be processed", err)
		}
		p.logCallback(ctx, models.CallbackMalformed, req.EncData, nil, nil, "decryption failed: "+err.Error(), ipAddress)
		return p.rejectedOutcome(ctx, metadata, "callback decryption failed"), nil
	}

	if !p.codec.VerifyChecksum(plaintext, req.Checksum) {
		p.logCallback(ctx, models.CallbackRejectedChecksum, req.EncData, nil, nil, "checksum mismatch", ipAddress)
		return p.rejectedOutcome(ctx, metadata, "callback checksum mismatch"), nil
	}

	payload, err := p.protocol.ParseCallback(plaintext)
	if err != nil {
		p.logCallback(ctx, models.CallbackMalformed, req.EncData, nil, nil, "parse failed: "+err.Error(), ipAddress)
		return p.rejectedOutcome(ctx, metadata, "callback payload malformed"), nil
	}

	transaction, err := p.transactionRepo.ByDeptRefNo(ctx, payload.DeptRefNo)
	if err != nil {
		return nil, NewBusinessError("CALLBACK_FAILED", "Callback could not be processed", err)
	}
	if transaction == nil {
		// Correct checksum, unknown reference: logged as unmatched for manual
		// reconciliation, never silently dropped.
		p.logCallback(ctx, models.CallbackUnmatched, req.EncData, payload, nil, "no transaction for reference", ipAddress)
		return p.rejectedOutcome(ctx, metadata, "callback reference unmatched"), nil
	}

	if detail := callbackMismatch(transaction, payload); detail != "" {
		p.logCallback(ctx, models.CallbackMismatched, req.EncData, payload, &transaction.ID, detail, ipAddress)
		return p.rejectedOutcome(ctx, metadata, "callback payload mismatch"), nil
	}

	if transaction.Status != models.PaymentStatusRedirected {
		// Retried callback for a transaction already past this point: no-op
		// success, not an error.
		p.logCallback(ctx, models.CallbackDuplicate, req.EncData, payload, &transaction.ID, "transaction already "+string(transaction.Status), ipAddress)
		return &CallbackOutcome{
			Accepted:  true,
			DeptRefNo: transaction.DeptRefNo,
			Status:    transaction.Status,
			Message:   "payment already recorded",
		}, nil
	}

	var disposition models.CallbackDisposition
	var outcome *CallbackOutcome

	if payload.IsSuccess() {
		// State: Redirected -> PendingVerification
		won, err := p.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
			models.PaymentStatusRedirected, models.PaymentStatusPendingVerification, map[string]any{
				"gateway_txn_id":       payload.EchTxnID,
				"bank_ref_no":          payload.BankRefNo,
				"bank_name":            payload.BankName,
				"payment_date":         payload.PaymentDate,
				"callback_received_at": utils.UTCNow(),
				"status_reason":        "gateway callback verified",
			})
		if err != nil {
			return nil, NewBusinessError("CALLBACK_FAILED", "Callback could not be processed", err)
		}
		if !won {
			disposition = models.CallbackDuplicate
		} else {
			disposition = models.CallbackAccepted
		}
		outcome = &CallbackOutcome{
			Accepted:  true,
			DeptRefNo: transaction.DeptRefNo,
			Status:    models.PaymentStatusPendingVerification,
			Message:   "payment received, verification pending",
		}
	} else {
		// State: Redirected -> Failed
		won, err := p.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
			models.PaymentStatusRedirected, models.PaymentStatusFailed, map[string]any{
				"gateway_txn_id":       payload.EchTxnID,
				"callback_received_at": utils.UTCNow(),
				"status_reason":        fmt.Sprintf("gateway reported %s: %s", payload.StatusCode, payload.StatusText),
			})
		if err != nil {
			return nil, NewBusinessError("CALLBACK_FAILED", "Callback could not be processed", err)
		}
		if !won {
			disposition = models.CallbackDuplicate
		} else {
			disposition = models.CallbackAccepted
		}
		outcome = &CallbackOutcome{
			Accepted:  true,
			DeptRefNo: transaction.DeptRefNo,
			Status:    models.PaymentStatusFailed,
			Message:   "payment was not completed",
		}
	}

	p.logCallback(ctx, disposition, req.EncData, payload, &transaction.ID, "", ipAddress)

	msg := fmt.Sprintf("Callback for %s processed with status %s", transaction.DeptRefNo, payload.StatusCode)
	_ = p.createAuditLog(ctx, &transaction.ID, models.AuditActionCallbackProcessed, msg, true, nil, metadata)

	return outcome, nil
}

// ConfirmPayment verifies a transaction with its bank reference and settles
// it. Settlement is idempotent: a repeat confirmation of a settled transaction
// replays the recorded result.
func (p *PaymentFlowImpl) ConfirmPayment(ctx context.Context, deptRefNo string, req *dto.ConfirmPaymentRequest, metadata *ClientMetadata) (*dto.SettlementResponse, error) {
	if req == nil || req.BankRefNo == "" {
		return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", ErrBankRefRequired)
	}

	transaction, err := p.transactionRepo.ByDeptRefNo(ctx, deptRefNo)
	if err != nil {
		return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", err)
	}
	if transaction == nil {
		return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", ErrTransactionNotFound)
	}

	switch transaction.Status {
	case models.PaymentStatusSettled:
		return p.replaySettlement(ctx, transaction, metadata)
	case models.PaymentStatusInitiated, models.PaymentStatusRedirected:
		if transaction.IsExpired() {
			return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", ErrTransactionExpired)
		}
		return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", ErrTransactionNotConfirmable)
	case models.PaymentStatusFailed:
		return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", ErrTransactionNotConfirmable)
	}

	if transaction.Status == models.PaymentStatusPendingVerification {
		// State: PendingVerification -> Verified
		won, err := p.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
			models.PaymentStatusPendingVerification, models.PaymentStatusVerified, map[string]any{
				"bank_ref_no":   req.BankRefNo,
				"bank_name":     req.BankName,
				"verified_at":   utils.UTCNow(),
				"status_reason": "bank reference confirmed",
			})
		if err != nil {
			return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", err)
		}
		if !won {
			// A concurrent confirmation got there first; settle from the
			// current state.
			transaction, err = p.transactionRepo.ByID(ctx, transaction.ID)
			if err != nil || transaction == nil {
				return nil, NewBusinessError("CONFIRM_FAILED", "Confirmation failed", err)
			}
			if transaction.Status == models.PaymentStatusSettled {
				return p.replaySettlement(ctx, transaction, metadata)
			}
		} else {
			transaction.BankRefNo = req.BankRefNo
			transaction.Status = models.PaymentStatusVerified
		}
	}

	resp, err := p.settle(ctx, transaction, metadata)
	if err != nil {
		errMsg := fmt.Sprintf("Settlement failed for %s: %s", deptRefNo, err.Error())
		_ = p.createAuditLog(ctx, &transaction.ID, models.AuditActionPaymentFailed, errMsg, false, &errMsg, metadata)
		return nil, err
	}
	return resp, nil
}

// issuanceFailedReason prefixes the status reason of a settled transaction
// whose certificate issuance did not complete. Replay detects the prefix and
// re-drives issuance instead of waiting for a result that will never land.
const issuanceFailedReason = "certificate issuance failed"

// settle performs the verified -> settled transition. The conditional status
// update is the linearization point: of any number of concurrent callers
// exactly one wins and triggers certificate issuance; the rest replay the
// recorded result.
func (p *PaymentFlowImpl) settle(ctx context.Context, transaction *models.PaymentTransaction, metadata *ClientMetadata) (*dto.SettlementResponse, error) {
	won, err := p.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
		models.PaymentStatusVerified, models.PaymentStatusSettled, map[string]any{
			"confirmed_at":  utils.UTCNow(),
			"status_reason": "settlement in progress",
		})
	if err != nil {
		return nil, NewBusinessError("SETTLEMENT_FAILED", "Settlement failed", err)
	}

	if !won {
		current, err := p.transactionRepo.ByID(ctx, transaction.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("SETTLEMENT_FAILED", "Settlement failed", err)
		}
		if current.Status == models.PaymentStatusSettled {
			return p.replaySettlement(ctx, current, metadata)
		}
		return nil, NewBusinessError("SETTLEMENT_FAILED", "Settlement failed", ErrTransactionNotConfirmable)
	}

	return p.issueAndRecord(ctx, transaction, metadata)
}

// issueAndRecord invokes certificate issuance for a settled transaction and
// records the result on the row. Called by the settling winner, and again on
// replay when a settled row carries no recorded certificate.
func (p *PaymentFlowImpl) issueAndRecord(ctx context.Context, transaction *models.PaymentTransaction, metadata *ClientMetadata) (*dto.SettlementResponse, error) {
	result, err := p.issuer.IssueCertificate(ctx, services.IssueCertificateInput{
		ApplicationID: transaction.ApplicationID,
		DeptRefNo:     transaction.DeptRefNo,
		GatewayTxnID:  transaction.GatewayTxnID,
		BankRefNo:     transaction.BankRefNo,
		Amount:        transaction.Amount.StringFixed(2),
		PaymentDate:   transaction.PaymentDate,
	})
	if err != nil {
		// Settled is absorbing; record the failure on the row so a later
		// confirmation retry drives issuance again.
		transaction.Status = models.PaymentStatusSettled
		transaction.StatusReason = issuanceFailedReason + ": " + err.Error()
		transaction.UpdatedAt = utils.UTCNow()
		_ = p.transactionRepo.Update(ctx, transaction)
		return nil, NewBusinessError("SETTLEMENT_FAILED", "Settlement failed", err)
	}

	recorded, _ := json.Marshal(result)
	transaction.Status = models.PaymentStatusSettled
	transaction.StatusReason = "certificate issued"
	transaction.SettlementResult = recorded
	transaction.ConfirmedAt = utils.UTCNowPtr()
	transaction.UpdatedAt = utils.UTCNow()
	if err := p.transactionRepo.Update(ctx, transaction); err != nil {
		return nil, NewBusinessError("SETTLEMENT_FAILED", "Settlement failed", err)
	}

	// Best effort; the transaction row stays the source of truth.
	_ = p.resultCache.Set(ctx, transaction.DeptRefNo, result)

	msg := fmt.Sprintf("Settled %s, certificate %s", transaction.DeptRefNo, result.CertificateNo)
	_ = p.createAuditLog(ctx, &transaction.ID, models.AuditActionPaymentSettled, msg, true, nil, metadata)

	return &dto.SettlementResponse{
		DeptRefNo:     transaction.DeptRefNo,
		Status:        string(models.PaymentStatusSettled),
		CertificateNo: result.CertificateNo,
		IssuedAt:      result.IssuedAt,
	}, nil
}

// replaySettlement returns the recorded settlement result for an already
// settled transaction, indistinguishable from first-time settlement. A settled
// row with no recorded certificate means a prior issuance never completed;
// issuance is re-driven rather than answering with an empty certificate.
func (p *PaymentFlowImpl) replaySettlement(ctx context.Context, transaction *models.PaymentTransaction, metadata *ClientMetadata) (*dto.SettlementResponse, error) {
	if cached, err := p.resultCache.Get(ctx, transaction.DeptRefNo); err == nil && cached != nil {
		return &dto.SettlementResponse{
			DeptRefNo:     transaction.DeptRefNo,
			Status:        string(models.PaymentStatusSettled),
			CertificateNo: cached.CertificateNo,
			IssuedAt:      cached.IssuedAt,
		}, nil
	}

	// A concurrent loser can observe the settled state before the winner has
	// recorded the issuance result; wait briefly for it to land. A row already
	// marked with an issuance failure will never produce one, so skip straight
	// to recovery.
	recorded := transaction.SettlementResult
	reason := transaction.StatusReason
	for attempt := 0; len(recorded) == 0 && !strings.HasPrefix(reason, issuanceFailedReason) && attempt < 20; attempt++ {
		time.Sleep(50 * time.Millisecond)
		current, err := p.transactionRepo.ByID(ctx, transaction.ID)
		if err != nil || current == nil {
			break
		}
		recorded = current.SettlementResult
		reason = current.StatusReason
	}

	if len(recorded) == 0 {
		current, err := p.transactionRepo.ByID(ctx, transaction.ID)
		if err == nil && current != nil {
			transaction = current
			recorded = current.SettlementResult
		}
		if len(recorded) == 0 {
			return p.issueAndRecord(ctx, transaction, metadata)
		}
	}

	resp := &dto.SettlementResponse{
		DeptRefNo: transaction.DeptRefNo,
		Status:    string(models.PaymentStatusSettled),
	}
	var result services.IssueCertificateResult
	if err := json.Unmarshal(recorded, &result); err == nil {
		resp.CertificateNo = result.CertificateNo
		resp.IssuedAt = result.IssuedAt
	}
	return resp, nil
}

// CancelPayment moves a non-terminal transaction to failed. Terminal states
// never move; retry means a fresh attempt with a new reference number.
func (p *PaymentFlowImpl) CancelPayment(ctx context.Context, deptRefNo string, req *dto.CancelPaymentRequest, metadata *ClientMetadata) (*dto.PaymentStatusResponse, error) {
	transaction, err := p.transactionRepo.ByDeptRefNo(ctx, deptRefNo)
	if err != nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancellation failed", err)
	}
	if transaction == nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancellation failed", ErrTransactionNotFound)
	}
	if transaction.IsFinal() {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancellation failed", ErrTransactionAlreadyProcessed)
	}

	reason := "cancelled by operator"
	if req != nil && req.Reason != "" {
		reason = req.Reason
	}

	won, err := p.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
		transaction.Status, models.PaymentStatusFailed, map[string]any{
			"status_reason": reason,
		})
	if err != nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancellation failed", err)
	}
	if !won {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancellation failed", ErrTransactionAlreadyProcessed)
	}

	transaction.Status = models.PaymentStatusFailed
	transaction.StatusReason = reason

	msg := fmt.Sprintf("Cancelled %s: %s", deptRefNo, reason)
	_ = p.createAuditLog(ctx, &transaction.ID, models.AuditActionPaymentFailed, msg, true, nil, metadata)

	return toPaymentStatusResponse(transaction), nil
}

// GetPaymentStatus returns the current state of one payment transaction
func (p *PaymentFlowImpl) GetPaymentStatus(ctx context.Context, deptRefNo string) (*dto.PaymentStatusResponse, error) {
	transaction, err := p.transactionRepo.ByDeptRefNo(ctx, deptRefNo)
	if err != nil {
		return nil, NewBusinessError("STATUS_FAILED", "Status lookup failed", err)
	}
	if transaction == nil {
		return nil, NewBusinessError("STATUS_FAILED", "Status lookup failed", ErrTransactionNotFound)
	}
	return toPaymentStatusResponse(transaction), nil
}

func (p *PaymentFlowImpl) validateInitiateRequest(req *dto.InitiatePaymentRequest) error {
	if req == nil || req.ApplicationID == 0 {
		return ErrApplicationIDRequired
	}
	if req.District == "" {
		return ErrDistrictRequired
	}
	return nil
}

func (p *PaymentFlowImpl) latestAttempt(ctx context.Context, applicationID uint) (*models.PaymentTransaction, error) {
	attempts, err := p.transactionRepo.ByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	return attempts[len(attempts)-1], nil
}

// resolveConfig runs the three-layer resolution for this transaction. A
// placeholder result is refused in production and flagged everywhere else.
func (p *PaymentFlowImpl) resolveConfig(ctx context.Context, district string) (services.GatewayConfig, error) {
	override, err := p.settingRepo.ByName(ctx, utils.GatewaySettingName)
	if err != nil {
		return services.GatewayConfig{}, err
	}

	cfg := ResolveGatewayConfig(p.settings.Defaults, override, district)
	if !cfg.IsComplete && p.settings.Production {
		return services.GatewayConfig{}, ErrPlaceholderConfig
	}
	return cfg, nil
}

func (p *PaymentFlowImpl) merchantCodeFor(ctx context.Context, district string) string {
	cfg, err := p.resolveConfig(ctx, district)
	if err != nil {
		return p.settings.Defaults.MerchantCode
	}
	return cfg.MerchantCode
}

// callbackMismatch cross-checks the parsed payload against the matched
// transaction. The gateway echoes back what the outbound request carried; any
// divergence means a tampered or crossed payload and must not advance state.
func callbackMismatch(t *models.PaymentTransaction, payload *services.CallbackPayload) string {
	if payload.AppRefNo != "" && t.AppRefNo != "" && payload.AppRefNo != t.AppRefNo {
		return fmt.Sprintf("application reference mismatch: got %s, expected %s", payload.AppRefNo, t.AppRefNo)
	}
	// The wire carries whole rupees.
	if !payload.Amount.IsZero() && !payload.Amount.Equal(t.Amount.Round(0)) {
		return fmt.Sprintf("amount mismatch: got %s, expected %s", payload.Amount.String(), t.Amount.Round(0).String())
	}
	return ""
}

func (p *PaymentFlowImpl) rejectedOutcome(ctx context.Context, metadata *ClientMetadata, detail string) *CallbackOutcome {
	_ = p.createAuditLog(ctx, nil, models.AuditActionCallbackRejected, detail, false, &detail, metadata)

	// The payer sees a neutral acknowledgement; the rejection is an
	// operational matter handled through reconciliation.
	return &CallbackOutcome{
		Accepted: false,
		Message:  "payment status will be updated shortly",
	}
}

func (p *PaymentFlowImpl) logCallback(ctx context.Context, disposition models.CallbackDisposition, rawPayload string, payload *services.CallbackPayload, transactionID *uint, detail, ipAddress string) {
	entry := &models.CallbackLog{
		Disposition:   disposition,
		RawPayload:    rawPayload,
		TransactionID: transactionID,
		Detail:        detail,
		IPAddress:     ipAddress,
	}
	if payload != nil {
		entry.DeptRefNo = payload.DeptRefNo
		entry.AppRefNo = payload.AppRefNo
		entry.GatewayTxnID = payload.EchTxnID
		entry.StatusCode = payload.StatusCode
		entry.Amount = payload.Amount.StringFixed(2)
	}
	_ = p.callbackRepo.Save(ctx, entry)
}

// createAuditLog creates an audit log entry for the payment operation
func (p *PaymentFlowImpl) createAuditLog(ctx context.Context, transactionID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		TransactionID: transactionID,
		Action:        action,
		Description:   &description,
		Success:       utils.ToPtr(success),
		IPAddress:     &ipAddress,
		UserAgent:     &userAgent,
		ErrorMessage:  errorMsg,
	}

	requestID := ctx.Value(RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}

	return p.auditRepo.Save(ctx, audit)
}

func toPaymentStatusResponse(t *models.PaymentTransaction) *dto.PaymentStatusResponse {
	return &dto.PaymentStatusResponse{
		DeptRefNo:          t.DeptRefNo,
		ApplicationID:      t.ApplicationID,
		Attempt:            t.Attempt,
		Amount:             t.Amount.StringFixed(2),
		Currency:           t.Currency,
		Status:             string(t.Status),
		StatusReason:       t.StatusReason,
		GatewayTxnID:       t.GatewayTxnID,
		BankRefNo:          t.BankRefNo,
		BankName:           t.BankName,
		ConfigStatus:       t.ConfigStatus,
		CallbackReceivedAt: t.CallbackReceivedAt,
		VerifiedAt:         t.VerifiedAt,
		ConfirmedAt:        t.ConfirmedAt,
		CreatedAt:          t.CreatedAt,
	}
}
