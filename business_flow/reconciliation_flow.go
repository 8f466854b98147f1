package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"github.com/xuri/excelize/v2"
)

// reconciliationExportLimit caps one export run. Rejected callbacks are rare;
// anything near this limit points at a gateway-side incident.
const reconciliationExportLimit = 10000

// ReconciliationFlow serves the operator-facing views over callbacks that did
// not advance a transaction and need manual follow-up with the treasury.
type ReconciliationFlow interface {
	ListUnreconciled(ctx context.Context, filter models.CallbackLogFilter) ([]*models.CallbackLog, error)
	DownloadUnreconciledCSV(ctx context.Context, filter models.CallbackLogFilter) (string, []byte, error)
	DownloadUnreconciledExcel(ctx context.Context, filter models.CallbackLogFilter) (string, []byte, error)
}

// ReconciliationFlowImpl implements the reconciliation business flow
type ReconciliationFlowImpl struct {
	callbackRepo repository.CallbackLogRepository
	auditRepo    repository.AuditLogRepository
}

// NewReconciliationFlow creates a new reconciliation flow instance
func NewReconciliationFlow(
	callbackRepo repository.CallbackLogRepository,
	auditRepo repository.AuditLogRepository,
) ReconciliationFlow {
	return &ReconciliationFlowImpl{
		callbackRepo: callbackRepo,
		auditRepo:    auditRepo,
	}
}

// ListUnreconciled returns the callback log rows an operator should look at
func (f *ReconciliationFlowImpl) ListUnreconciled(ctx context.Context, filter models.CallbackLogFilter) ([]*models.CallbackLog, error) {
	rows, err := f.callbackRepo.ListNeedingReconciliation(ctx, filter, reconciliationExportLimit)
	if err != nil {
		return nil, NewBusinessError("FETCH_CALLBACKS_FAILED", "Failed to fetch callback log", err)
	}
	return rows, nil
}

var reconciliationHeader = []string{
	"id", "disposition", "dept_ref_no", "app_ref_no", "gateway_txn_id",
	"status_code", "amount", "transaction_id", "detail", "ip", "received_at",
}

func reconciliationRecord(r *models.CallbackLog) []string {
	transactionID := ""
	if r.TransactionID != nil {
		transactionID = strconv.FormatUint(uint64(*r.TransactionID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		string(r.Disposition),
		r.DeptRefNo,
		r.AppRefNo,
		r.GatewayTxnID,
		r.StatusCode,
		r.Amount,
		transactionID,
		r.Detail,
		r.IPAddress,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DownloadUnreconciledCSV renders the unreconciled callback rows as a CSV file
func (f *ReconciliationFlowImpl) DownloadUnreconciledCSV(ctx context.Context, filter models.CallbackLogFilter) (string, []byte, error) {
	rows, err := f.ListUnreconciled(ctx, filter)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reconciliationHeader); err != nil {
		return "", nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to write CSV header", err)
	}
	for _, r := range rows {
		if err := w.Write(reconciliationRecord(r)); err != nil {
			return "", nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to write CSV row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to flush CSV", err)
	}

	filename := fmt.Sprintf("unreconciled_callbacks_%s.csv", utils.UTCNow().Format("20060102_150405"))
	f.auditExport(ctx, filename, len(rows))
	return filename, buf.Bytes(), nil
}

// DownloadUnreconciledExcel renders the unreconciled callback rows as an XLSX
// workbook with one sheet per disposition
func (f *ReconciliationFlowImpl) DownloadUnreconciledExcel(ctx context.Context, filter models.CallbackLogFilter) (string, []byte, error) {
	rows, err := f.ListUnreconciled(ctx, filter)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	byDisposition := make(map[models.CallbackDisposition][]*models.CallbackLog)
	order := make([]models.CallbackDisposition, 0)
	for _, r := range rows {
		if _, ok := byDisposition[r.Disposition]; !ok {
			order = append(order, r.Disposition)
		}
		byDisposition[r.Disposition] = append(byDisposition[r.Disposition], r)
	}
	if len(order) == 0 {
		// An empty workbook still carries the header so the operator sees the
		// export ran.
		order = append(order, models.CallbackRejectedChecksum)
	}

	for i, disposition := range order {
		name := string(disposition)
		if i == 0 {
			xl.SetSheetName(xl.GetSheetName(0), name)
		} else {
			_, _ = xl.NewSheet(name)
		}

		_ = xl.SetSheetRow(name, "A1", &reconciliationHeader)
		for ri, r := range byDisposition[disposition] {
			record := reconciliationRecord(r)
			cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
			_ = xl.SetSheetRow(name, cellRef, &record)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("unreconciled_callbacks_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	f.auditExport(ctx, filename, len(rows))
	return filename, buf.Bytes(), nil
}

// auditExport records the export in the audit trail. Best effort, the export
// itself has already succeeded.
func (f *ReconciliationFlowImpl) auditExport(ctx context.Context, filename string, rowCount int) {
	description := fmt.Sprintf("Exported %d unreconciled callbacks as %s", rowCount, filename)
	audit := &models.AuditLog{
		Action:      models.AuditActionReconciliationExported,
		Description: &description,
		Success:     utils.ToPtr(true),
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	}
	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("Failed to audit reconciliation export: %v", err)
	}
}
