// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/dto"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/middleware"
	businessflow "github.com/microaistudio/hptourism-stg-rc3-sub004/business_flow"
)

// PaymentHandlerInterface defines the contract for payment handlers
type PaymentHandlerInterface interface {
	QuoteFee(c fiber.Ctx) error
	InitiatePayment(c fiber.Ctx) error
	GatewayCallback(c fiber.Ctx) error
	ConfirmPayment(c fiber.Ctx) error
	CancelPayment(c fiber.Ctx) error
	GetPaymentStatus(c fiber.Ctx) error
}

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	paymentFlow businessflow.PaymentFlow
	validator   *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentFlow businessflow.PaymentFlow) *PaymentHandler {
	return &PaymentHandler{
		paymentFlow: paymentFlow,
		validator:   validator.New(),
	}
}

func (h *PaymentHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PaymentHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// QuoteFee returns the registration fee breakdown for the given inputs
func (h *PaymentHandler) QuoteFee(c fiber.Ctx) error {
	var req dto.FeeQuoteRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	result, err := h.paymentFlow.QuoteFee(h.createRequestContext(c, "/api/v1/payments/quote"), &req)
	if err != nil {
		if businessflow.IsInvalidFeeInput(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid fee inputs", "INVALID_FEE_INPUT", nil)
		}
		log.Println("Fee quote failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Fee quote failed", "FEE_QUOTE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Fee computed successfully", result)
}

// InitiatePayment creates a payment transaction and returns the gateway redirect URL
func (h *PaymentHandler) InitiatePayment(c fiber.Ctx) error {
	var req dto.InitiatePaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.paymentFlow.InitiatePayment(h.createRequestContext(c, "/api/v1/payments/initiate"), &req, metadata)
	if err != nil {
		if businessflow.IsInvalidFeeInput(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid fee inputs", "INVALID_FEE_INPUT", nil)
		}
		if businessflow.IsPlaceholderConfig(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Payment gateway is not configured", "GATEWAY_NOT_CONFIGURED", nil)
		}
		if businessflow.IsTransactionAlreadyProcessed(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A payment for this application is already in progress", "PAYMENT_IN_PROGRESS", nil)
		}
		log.Println("Payment initiation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payment initiation failed", "PAYMENT_INITIATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment initiated successfully", result)
}

// GatewayCallback handles the return leg from the treasury gateway. The
// response is a small HTML page for the returning payer; rejection detail
// never reaches them.
func (h *PaymentHandler) GatewayCallback(c fiber.Ctx) error {
	var req dto.GatewayCallbackRequest
	if c.Method() == fiber.MethodPost {
		if err := c.Bind().Form(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse callback data", "CALLBACK_DATA_PARSE_ERROR", err.Error())
		}
	}
	if req.EncData == "" {
		req.EncData = c.Query("encdata")
		req.Checksum = c.Query("checksum")
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	outcome, err := h.paymentFlow.ProcessCallback(h.createRequestContext(c, "/api/v1/payments/callback"), &req, metadata)
	if err != nil {
		log.Println("Payment callback processing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payment callback processing failed", "PAYMENT_CALLBACK_FAILED", nil)
	}

	disposition := "accepted"
	if !outcome.Accepted {
		disposition = "rejected"
	}
	middleware.CallbackDispositions.WithLabelValues(disposition).Inc()

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(callbackResultPage(outcome))
}

// ConfirmPayment settles a transaction with its bank reference. Repeat
// confirmations return the original settlement result.
func (h *PaymentHandler) ConfirmPayment(c fiber.Ctx) error {
	deptRefNo := c.Params("deptRefNo")

	var req dto.ConfirmPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.paymentFlow.ConfirmPayment(h.createRequestContext(c, "/api/v1/payments/confirm"), deptRefNo, &req, metadata)
	if err != nil {
		if businessflow.IsTransactionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Payment transaction not found", "TRANSACTION_NOT_FOUND", nil)
		}
		if businessflow.IsTransactionExpired(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Payment window has expired", "TRANSACTION_EXPIRED", nil)
		}
		if businessflow.IsTransactionNotConfirmable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Payment is not awaiting confirmation", "NOT_CONFIRMABLE", nil)
		}
		log.Println("Payment confirmation failed", err)
		middleware.SettlementsTotal.WithLabelValues("failed").Inc()
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payment confirmation failed", "CONFIRM_FAILED", nil)
	}

	middleware.SettlementsTotal.WithLabelValues("issued").Inc()
	return h.SuccessResponse(c, fiber.StatusOK, "Payment settled successfully", result)
}

// CancelPayment fails a non-terminal transaction
func (h *PaymentHandler) CancelPayment(c fiber.Ctx) error {
	deptRefNo := c.Params("deptRefNo")

	var req dto.CancelPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.paymentFlow.CancelPayment(h.createRequestContext(c, "/api/v1/payments/cancel"), deptRefNo, &req, metadata)
	if err != nil {
		if businessflow.IsTransactionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Payment transaction not found", "TRANSACTION_NOT_FOUND", nil)
		}
		if businessflow.IsTransactionAlreadyProcessed(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Payment is already in a terminal state", "ALREADY_PROCESSED", nil)
		}
		log.Println("Payment cancellation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payment cancellation failed", "CANCEL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment cancelled", result)
}

// GetPaymentStatus returns the current state of one payment transaction
func (h *PaymentHandler) GetPaymentStatus(c fiber.Ctx) error {
	deptRefNo := c.Params("deptRefNo")

	result, err := h.paymentFlow.GetPaymentStatus(h.createRequestContext(c, "/api/v1/payments/status"), deptRefNo)
	if err != nil {
		if businessflow.IsTransactionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Payment transaction not found", "TRANSACTION_NOT_FOUND", nil)
		}
		log.Println("Payment status lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payment status lookup failed", "STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment status retrieved", result)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *PaymentHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		ctx = context.WithValue(ctx, businessflow.RequestIDKey, requestID)
	}
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup
	return ctx
}

// callbackResultPage renders the payer-facing result page for the return leg
func callbackResultPage(outcome *businessflow.CallbackOutcome) string {
	title := "Payment Received"
	if !outcome.Accepted {
		title = "Payment Status"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h2>%s</h2>
<p>%s</p>
<p>Reference: %s</p>
</body>
</html>`, title, title, outcome.Message, outcome.DeptRefNo)
}
