package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/dto"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTxRunner runs the function directly; the fakes below are their own
// source of atomicity.
type fakeTxRunner struct{}

func (fakeTxRunner) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeTransactionRepo struct {
	mu   sync.Mutex
	seq  uint
	rows map[uint]*models.PaymentTransaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{rows: make(map[uint]*models.PaymentTransaction)}
}

func (r *fakeTransactionRepo) Save(ctx context.Context, t *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = r.seq
	t.CreatedAt = utils.UTCNow()
	t.UpdatedAt = utils.UTCNow()
	clone := *t
	r.rows[t.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) SaveBatch(ctx context.Context, ts []*models.PaymentTransaction) error {
	for _, t := range ts {
		if err := r.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTransactionRepo) ByID(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *fakeTransactionRepo) ByUUID(ctx context.Context, uuid string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (r *fakeTransactionRepo) ByDeptRefNo(ctx context.Context, deptRefNo string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.DeptRefNo == deptRefNo {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) ByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.GatewayTxnID == gatewayTxnID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) ByApplicationID(ctx context.Context, applicationID uint) ([]*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, row := range r.rows {
		if row.ApplicationID == applicationID {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (r *fakeTransactionRepo) CountAttempts(ctx context.Context, applicationID uint) (int64, error) {
	rows, _ := r.ByApplicationID(ctx, applicationID)
	return int64(len(rows)), nil
}

func (r *fakeTransactionRepo) Update(ctx context.Context, t *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *t
	r.rows[t.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) UpdateStatusIfCurrent(ctx context.Context, id uint, from, to models.PaymentTransactionStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	row.UpdatedAt = utils.UTCNow()
	for column, value := range updates {
		switch column {
		case "status_reason":
			row.StatusReason = value.(string)
		case "request_plaintext":
			row.RequestPlaintext = value.(string)
		case "request_checksum":
			row.RequestChecksum = value.(string)
		case "gateway_txn_id":
			row.GatewayTxnID = value.(string)
		case "bank_ref_no":
			row.BankRefNo = value.(string)
		case "bank_name":
			row.BankName = value.(string)
		case "payment_date":
			row.PaymentDate = value.(string)
		case "callback_received_at":
			ts := value.(time.Time)
			row.CallbackReceivedAt = &ts
		case "verified_at":
			ts := value.(time.Time)
			row.VerifiedAt = &ts
		case "confirmed_at":
			ts := value.(time.Time)
			row.ConfirmedAt = &ts
		}
	}
	return true, nil
}

func (r *fakeTransactionRepo) ListExpired(ctx context.Context, limit int) ([]*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, row := range r.rows {
		if row.IsExpired() && !row.IsFinal() {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) ByFilter(ctx context.Context, filter models.PaymentTransactionFilter, orderBy string, limit, offset int) ([]*models.PaymentTransaction, error) {
	return nil, nil
}

func (r *fakeTransactionRepo) Count(ctx context.Context, filter models.PaymentTransactionFilter) (int64, error) {
	return int64(len(r.rows)), nil
}

func (r *fakeTransactionRepo) Exists(ctx context.Context, filter models.PaymentTransactionFilter) (bool, error) {
	return len(r.rows) > 0, nil
}

type fakeSettingRepo struct {
	setting *models.GatewaySetting
}

func (r *fakeSettingRepo) ByName(ctx context.Context, name string) (*models.GatewaySetting, error) {
	return r.setting, nil
}

func (r *fakeSettingRepo) ByID(ctx context.Context, id uint) (*models.GatewaySetting, error) {
	return r.setting, nil
}

func (r *fakeSettingRepo) ByFilter(ctx context.Context, filter models.GatewaySettingFilter, orderBy string, limit, offset int) ([]*models.GatewaySetting, error) {
	return nil, nil
}

func (r *fakeSettingRepo) Save(ctx context.Context, s *models.GatewaySetting) error { return nil }

func (r *fakeSettingRepo) SaveBatch(ctx context.Context, s []*models.GatewaySetting) error {
	return nil
}

func (r *fakeSettingRepo) Count(ctx context.Context, filter models.GatewaySettingFilter) (int64, error) {
	return 0, nil
}

func (r *fakeSettingRepo) Exists(ctx context.Context, filter models.GatewaySettingFilter) (bool, error) {
	return false, nil
}

type fakeCallbackRepo struct {
	mu      sync.Mutex
	entries []*models.CallbackLog
}

func (r *fakeCallbackRepo) Save(ctx context.Context, entry *models.CallbackLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uint(len(r.entries) + 1)
	entry.CreatedAt = utils.UTCNow()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeCallbackRepo) SaveBatch(ctx context.Context, entries []*models.CallbackLog) error {
	for _, e := range entries {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCallbackRepo) ByID(ctx context.Context, id uint) (*models.CallbackLog, error) {
	return nil, nil
}

func (r *fakeCallbackRepo) ByFilter(ctx context.Context, filter models.CallbackLogFilter, orderBy string, limit, offset int) ([]*models.CallbackLog, error) {
	return r.entries, nil
}

func (r *fakeCallbackRepo) Count(ctx context.Context, filter models.CallbackLogFilter) (int64, error) {
	return int64(len(r.entries)), nil
}

func (r *fakeCallbackRepo) Exists(ctx context.Context, filter models.CallbackLogFilter) (bool, error) {
	return len(r.entries) > 0, nil
}

func (r *fakeCallbackRepo) ListNeedingReconciliation(ctx context.Context, filter models.CallbackLogFilter, limit int) ([]*models.CallbackLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CallbackLog
	for _, e := range r.entries {
		if !e.NeedsReconciliation() {
			continue
		}
		if filter.DeptRefNo != nil && e.DeptRefNo != *filter.DeptRefNo {
			continue
		}
		if filter.GatewayTxnID != nil && e.GatewayTxnID != *filter.GatewayTxnID {
			continue
		}
		if filter.Disposition != nil && e.Disposition != *filter.Disposition {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeCallbackRepo) ListByTransaction(ctx context.Context, transactionID uint) ([]*models.CallbackLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CallbackLog
	for _, e := range r.entries {
		if e.TransactionID != nil && *e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeCallbackRepo) lastDisposition() models.CallbackDisposition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return ""
	}
	return r.entries[len(r.entries)-1].Disposition
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *fakeAuditRepo) Save(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) SaveBatch(ctx context.Context, entries []*models.AuditLog) error {
	for _, e := range entries {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) { return nil, nil }

func (r *fakeAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	return r.entries, nil
}

func (r *fakeAuditRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	return int64(len(r.entries)), nil
}

func (r *fakeAuditRepo) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	return len(r.entries) > 0, nil
}

func (r *fakeAuditRepo) ListByTransaction(ctx context.Context, transactionID uint) ([]*models.AuditLog, error) {
	return nil, nil
}

func (r *fakeAuditRepo) ListByAction(ctx context.Context, action string, limit int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListFailedActions(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	return nil, nil
}

type fakeIssuer struct {
	calls    int32
	failures int32 // fail this many leading calls
}

func (f *fakeIssuer) IssueCertificate(ctx context.Context, in services.IssueCertificateInput) (*services.IssueCertificateResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("workflow engine unavailable")
	}
	return &services.IssueCertificateResult{
		CertificateNo: fmt.Sprintf("CERT-%04d", n),
		IssuedAt:      "2026-08-31T12:00:00Z",
	}, nil
}

type flowFixture struct {
	flow         PaymentFlow
	transactions *fakeTransactionRepo
	callbacks    *fakeCallbackRepo
	audits       *fakeAuditRepo
	settings     *fakeSettingRepo
	issuer       *fakeIssuer
	codec        services.TreasuryCodec
}

func newFlowFixture(t *testing.T, production bool) *flowFixture {
	t.Helper()

	keys, err := services.NewStaticKeyProvider([]byte("0123456789abcdef"))
	require.NoError(t, err)
	codec := services.NewTreasuryCodec(keys)
	protocol := services.NewTreasuryProtocol(codec, "https://himkosh.example.gov.in/echallan/SingleWindow")

	fx := &flowFixture{
		transactions: newFakeTransactionRepo(),
		callbacks:    &fakeCallbackRepo{},
		audits:       &fakeAuditRepo{},
		settings:     &fakeSettingRepo{},
		issuer:       &fakeIssuer{},
		codec:        codec,
	}

	fx.flow = NewPaymentFlow(
		fx.transactions,
		fx.settings,
		fx.callbacks,
		fx.audits,
		fakeTxRunner{},
		codec,
		protocol,
		fx.issuer,
		services.NoopResultCache{},
		FlowSettings{
			Defaults:   productionDefaults(),
			PayerID:    "HPTSM01",
			Production: production,
		},
	)
	return fx
}

func initiateRequest() *dto.InitiatePaymentRequest {
	return &dto.InitiatePaymentRequest{
		ApplicationID: 42,
		AppRefNo:      "HPTSM/2026/42",
		District:      "Shimla",
		PeriodFrom:    "01/04/2026",
		PeriodTo:      "31/03/2029",
		Category:      CategoryGold,
		LocationType:  LocationMunicipal,
		ValidityYears: 3,
		OwnerIsFemale: true,
	}
}

func metadata() *ClientMetadata {
	return NewClientMetadata("10.0.0.7", "test-agent")
}

func TestInitiatePayment(t *testing.T) {
	fx := newFlowFixture(t, true)

	resp, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	assert.Equal(t, "TL00000004201", resp.DeptRefNo)
	assert.Equal(t, "30780.00", resp.Amount)
	assert.Contains(t, resp.RedirectURL, "?encdata=")
	assert.Contains(t, resp.RedirectURL, "&merchant=HPTSM01")

	stored, err := fx.transactions.ByDeptRefNo(context.Background(), resp.DeptRefNo)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.PaymentStatusRedirected, stored.Status)
	assert.NotEmpty(t, stored.RequestPlaintext)
	assert.True(t, fx.codec.VerifyChecksum(stored.RequestPlaintext, stored.RequestChecksum))
}

func TestInitiatePayment_IdempotentWhileAwaitingCallback(t *testing.T) {
	fx := newFlowFixture(t, true)

	first, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	second, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	assert.Equal(t, first.DeptRefNo, second.DeptRefNo)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)

	count, err := fx.transactions.CountAttempts(context.Background(), 42)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestInitiatePayment_NewAttemptAfterFailure(t *testing.T) {
	fx := newFlowFixture(t, true)

	first, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	_, err = fx.flow.CancelPayment(context.Background(), first.DeptRefNo, &dto.CancelPaymentRequest{Reason: "abandoned"}, metadata())
	require.NoError(t, err)

	second, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	assert.NotEqual(t, first.DeptRefNo, second.DeptRefNo)
	assert.Equal(t, "TL00000004202", second.DeptRefNo)
}

func TestInitiatePayment_PlaceholderConfigRefusedInProduction(t *testing.T) {
	fx := newFlowFixture(t, true)
	fx.flow = NewPaymentFlow(
		fx.transactions, fx.settings, fx.callbacks, fx.audits, fakeTxRunner{},
		fx.codec, services.NewTreasuryProtocol(fx.codec, "https://himkosh.example.gov.in/echallan/SingleWindow"),
		fx.issuer, services.NoopResultCache{},
		FlowSettings{Defaults: GatewayDefaults{}, PayerID: "HPTSM01", Production: true},
	)

	_, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.Error(t, err)
	assert.True(t, IsPlaceholderConfig(err))
}

func TestInitiatePayment_InvalidFee(t *testing.T) {
	fx := newFlowFixture(t, true)

	req := initiateRequest()
	req.Category = "platinum"

	_, err := fx.flow.InitiatePayment(context.Background(), req, metadata())
	require.Error(t, err)
	assert.True(t, IsInvalidFeeInput(err))
}

// sealPayload encrypts and checksums a gateway callback plaintext
func (fx *flowFixture) sealPayload(t *testing.T, plaintext string) *dto.GatewayCallbackRequest {
	t.Helper()
	encoded, err := fx.codec.Encrypt(plaintext)
	require.NoError(t, err)
	return &dto.GatewayCallbackRequest{
		EncData:  encoded,
		Checksum: fx.codec.Checksum(plaintext),
	}
}

// callbackFor builds a gateway callback consistent with initiateRequest
func (fx *flowFixture) callbackFor(t *testing.T, deptRefNo, statusCode string) *dto.GatewayCallbackRequest {
	t.Helper()
	return fx.sealPayload(t, fmt.Sprintf(
		"EchTxnId=ECH123|BankRefNo=SBIN987|BankName=State Bank of India|StatusCode=%s|StatusText=done|DeptRefNo=%s|AppRefNo=HPTSM/2026/42|Amount=30780|PaymentDate=31/08/2026 14:05:11",
		statusCode, deptRefNo))
}

func TestProcessCallback_Success(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	outcome, err := fx.flow.ProcessCallback(context.Background(), fx.callbackFor(t, initiated.DeptRefNo, "S"), metadata())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, models.PaymentStatusPendingVerification, outcome.Status)

	stored, err := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPendingVerification, stored.Status)
	assert.Equal(t, "ECH123", stored.GatewayTxnID)
	assert.NotNil(t, stored.CallbackReceivedAt)
	assert.Equal(t, models.CallbackAccepted, fx.callbacks.lastDisposition())
}

func TestProcessCallback_GatewayFailureStatus(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	outcome, err := fx.flow.ProcessCallback(context.Background(), fx.callbackFor(t, initiated.DeptRefNo, "F"), metadata())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, outcome.Status)

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
}

func TestProcessCallback_ChecksumMismatchLeavesStateUnchanged(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	callback := fx.callbackFor(t, initiated.DeptRefNo, "S")
	callback.Checksum = "deadbeefdeadbeefdeadbeefdeadbeef"

	outcome, err := fx.flow.ProcessCallback(context.Background(), callback, metadata())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	assert.Equal(t, models.PaymentStatusRedirected, stored.Status)
	assert.Equal(t, models.CallbackRejectedChecksum, fx.callbacks.lastDisposition())
}

func TestProcessCallback_UnknownReferenceLoggedUnmatched(t *testing.T) {
	fx := newFlowFixture(t, true)

	_, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	outcome, err := fx.flow.ProcessCallback(context.Background(), fx.callbackFor(t, "TL99999999901", "S"), metadata())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.CallbackUnmatched, fx.callbacks.lastDisposition())

	// No transaction moved.
	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), "TL00000004201")
	assert.Equal(t, models.PaymentStatusRedirected, stored.Status)
}

func TestProcessCallback_AmountMismatchRejected(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	callback := fx.sealPayload(t, fmt.Sprintf(
		"EchTxnId=ECH123|BankRefNo=SBIN987|BankName=State Bank of India|StatusCode=S|StatusText=done|DeptRefNo=%s|AppRefNo=HPTSM/2026/42|Amount=99999|PaymentDate=31/08/2026 14:05:11",
		initiated.DeptRefNo))

	outcome, err := fx.flow.ProcessCallback(context.Background(), callback, metadata())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.CallbackMismatched, fx.callbacks.lastDisposition())

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	assert.Equal(t, models.PaymentStatusRedirected, stored.Status)
}

func TestProcessCallback_AppRefMismatchRejected(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	callback := fx.sealPayload(t, fmt.Sprintf(
		"EchTxnId=ECH123|BankRefNo=SBIN987|BankName=State Bank of India|StatusCode=S|StatusText=done|DeptRefNo=%s|AppRefNo=HPTSM/2026/43|Amount=30780|PaymentDate=31/08/2026 14:05:11",
		initiated.DeptRefNo))

	outcome, err := fx.flow.ProcessCallback(context.Background(), callback, metadata())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.CallbackMismatched, fx.callbacks.lastDisposition())

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	assert.Equal(t, models.PaymentStatusRedirected, stored.Status)
}

func TestProcessCallback_MalformedCiphertext(t *testing.T) {
	fx := newFlowFixture(t, true)

	outcome, err := fx.flow.ProcessCallback(context.Background(), &dto.GatewayCallbackRequest{
		EncData:  "not-even-base64!!!",
		Checksum: "abc",
	}, metadata())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.CallbackMalformed, fx.callbacks.lastDisposition())
}

func TestProcessCallback_DuplicateIsNoOpSuccess(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	callback := fx.callbackFor(t, initiated.DeptRefNo, "S")
	_, err = fx.flow.ProcessCallback(context.Background(), callback, metadata())
	require.NoError(t, err)

	outcome, err := fx.flow.ProcessCallback(context.Background(), callback, metadata())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, models.CallbackDuplicate, fx.callbacks.lastDisposition())

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), initiated.DeptRefNo)
	assert.Equal(t, models.PaymentStatusPendingVerification, stored.Status)
}

func (fx *flowFixture) initiateAndCallback(t *testing.T) string {
	t.Helper()
	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)
	_, err = fx.flow.ProcessCallback(context.Background(), fx.callbackFor(t, initiated.DeptRefNo, "S"), metadata())
	require.NoError(t, err)
	return initiated.DeptRefNo
}

func TestConfirmPayment_SettlesAndIssuesCertificate(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)

	resp, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.NoError(t, err)

	assert.Equal(t, string(models.PaymentStatusSettled), resp.Status)
	assert.Equal(t, "CERT-0001", resp.CertificateNo)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fx.issuer.calls))

	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), deptRefNo)
	assert.Equal(t, models.PaymentStatusSettled, stored.Status)
	assert.NotEmpty(t, stored.SettlementResult)
	assert.NotNil(t, stored.ConfirmedAt)
}

func TestConfirmPayment_RepeatIsIdempotent(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)

	first, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.NoError(t, err)

	second, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.NoError(t, err)

	assert.Equal(t, first.CertificateNo, second.CertificateNo)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fx.issuer.calls))
}

func TestConfirmPayment_ConcurrentSettlementIssuesOnce(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)

	const callers = 8
	results := make([]*dto.SettlementResponse, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.flow.ConfirmPayment(context.Background(), deptRefNo,
				&dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fx.issuer.calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, string(models.PaymentStatusSettled), results[i].Status)
		assert.Equal(t, results[0].CertificateNo, results[i].CertificateNo)
	}
}

func TestConfirmPayment_RetryAfterIssuanceFailure(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)
	atomic.StoreInt32(&fx.issuer.failures, 1)

	_, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.Error(t, err)

	// Settled is absorbing, but no certificate was recorded yet.
	stored, _ := fx.transactions.ByDeptRefNo(context.Background(), deptRefNo)
	assert.Equal(t, models.PaymentStatusSettled, stored.Status)
	assert.Empty(t, stored.SettlementResult)

	resp, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.NoError(t, err)
	assert.Equal(t, "CERT-0002", resp.CertificateNo)
	assert.NotEmpty(t, resp.CertificateNo)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fx.issuer.calls))

	stored, _ = fx.transactions.ByDeptRefNo(context.Background(), deptRefNo)
	assert.NotEmpty(t, stored.SettlementResult)
	assert.Equal(t, "certificate issued", stored.StatusReason)
}

func TestConfirmPayment_ExpiredAttempt(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	fx.transactions.mu.Lock()
	for _, row := range fx.transactions.rows {
		row.ExpiresAt = utils.ToPtr(utils.UTCNow().Add(-time.Hour))
	}
	fx.transactions.mu.Unlock()

	_, err = fx.flow.ConfirmPayment(context.Background(), initiated.DeptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.Error(t, err)
	assert.True(t, IsTransactionExpired(err))
}

func TestConfirmPayment_RequiresBankRef(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)

	_, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{}, metadata())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBankRefRequired)
}

func TestConfirmPayment_NotConfirmableBeforeCallback(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	_, err = fx.flow.ConfirmPayment(context.Background(), initiated.DeptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.Error(t, err)
	assert.True(t, IsTransactionNotConfirmable(err))
}

func TestConfirmPayment_UnknownReference(t *testing.T) {
	fx := newFlowFixture(t, true)

	_, err := fx.flow.ConfirmPayment(context.Background(), "TL00000009901", &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.Error(t, err)
	assert.True(t, IsTransactionNotFound(err))
}

func TestCancelPayment(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	resp, err := fx.flow.CancelPayment(context.Background(), initiated.DeptRefNo, &dto.CancelPaymentRequest{Reason: "payer abandoned"}, metadata())
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentStatusFailed), resp.Status)
	assert.Equal(t, "payer abandoned", resp.StatusReason)
}

func TestCancelPayment_TerminalStateRefused(t *testing.T) {
	fx := newFlowFixture(t, true)
	deptRefNo := fx.initiateAndCallback(t)

	_, err := fx.flow.ConfirmPayment(context.Background(), deptRefNo, &dto.ConfirmPaymentRequest{BankRefNo: "SBIN987"}, metadata())
	require.NoError(t, err)

	_, err = fx.flow.CancelPayment(context.Background(), deptRefNo, &dto.CancelPaymentRequest{Reason: "late"}, metadata())
	require.Error(t, err)
	assert.True(t, IsTransactionAlreadyProcessed(err))
}

func TestQuoteFee(t *testing.T) {
	fx := newFlowFixture(t, true)

	resp, err := fx.flow.QuoteFee(context.Background(), &dto.FeeQuoteRequest{
		Category:      CategoryGold,
		LocationType:  LocationMunicipal,
		ValidityYears: 3,
		OwnerIsFemale: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "36000.00", resp.TotalBeforeDiscounts)
	assert.Equal(t, "3600.00", resp.ValidityDiscount)
	assert.Equal(t, "1620.00", resp.FemaleOwnerDiscount)
	assert.Equal(t, "30780.00", resp.FinalFee)
	assert.Equal(t, utils.RupeeCurrency, resp.Currency)
}

func TestGetPaymentStatus(t *testing.T) {
	fx := newFlowFixture(t, true)

	initiated, err := fx.flow.InitiatePayment(context.Background(), initiateRequest(), metadata())
	require.NoError(t, err)

	status, err := fx.flow.GetPaymentStatus(context.Background(), initiated.DeptRefNo)
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentStatusRedirected), status.Status)
	assert.EqualValues(t, 42, status.ApplicationID)
	assert.Equal(t, "30780.00", status.Amount)
}
