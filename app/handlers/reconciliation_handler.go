// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/dto"
	businessflow "github.com/microaistudio/hptourism-stg-rc3-sub004/business_flow"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
)

// ReconciliationHandlerInterface defines the contract for reconciliation handlers
type ReconciliationHandlerInterface interface {
	ListUnreconciled(c fiber.Ctx) error
	ExportUnreconciled(c fiber.Ctx) error
}

// ReconciliationHandler serves the operator reconciliation endpoints
type ReconciliationHandler struct {
	reconciliationFlow businessflow.ReconciliationFlow
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(reconciliationFlow businessflow.ReconciliationFlow) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliationFlow: reconciliationFlow}
}

func (h *ReconciliationHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ReconciliationHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListUnreconciled returns callbacks awaiting manual reconciliation
func (h *ReconciliationHandler) ListUnreconciled(c fiber.Ctx) error {
	filter := h.parseFilter(c)

	rows, err := h.reconciliationFlow.ListUnreconciled(h.createRequestContext(c), filter)
	if err != nil {
		log.Println("Reconciliation listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list callbacks", "FETCH_CALLBACKS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Callbacks retrieved", fiber.Map{
		"items": rows,
		"count": len(rows),
	})
}

// ExportUnreconciled streams the unreconciled callbacks as a downloadable file.
// Format defaults to XLSX; ?format=csv switches to CSV.
func (h *ReconciliationHandler) ExportUnreconciled(c fiber.Ctx) error {
	filter := h.parseFilter(c)
	ctx := h.createRequestContext(c)

	var (
		filename    string
		data        []byte
		contentType string
		err         error
	)
	if c.Query("format") == "csv" {
		filename, data, err = h.reconciliationFlow.DownloadUnreconciledCSV(ctx, filter)
		contentType = "text/csv"
	} else {
		filename, data, err = h.reconciliationFlow.DownloadUnreconciledExcel(ctx, filter)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		log.Println("Reconciliation export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export callbacks", "EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(data)
}

func (h *ReconciliationHandler) parseFilter(c fiber.Ctx) models.CallbackLogFilter {
	var filter models.CallbackLogFilter
	if v := c.Query("dept_ref_no"); v != "" {
		filter.DeptRefNo = &v
	}
	if v := c.Query("gateway_txn_id"); v != "" {
		filter.GatewayTxnID = &v
	}
	if v := c.Query("disposition"); v != "" {
		disposition := models.CallbackDisposition(v)
		filter.Disposition = &disposition
	}
	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedAfter = &parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedBefore = &parsed
		}
	}
	return filter
}

func (h *ReconciliationHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		ctx = context.WithValue(ctx, businessflow.RequestIDKey, requestID)
	}
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup
	return ctx
}
