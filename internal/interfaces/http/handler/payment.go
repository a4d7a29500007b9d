package handler

import (
	"net/http"

	"github.com/fleetbill/backend/internal/application/finance"
	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/fleetbill/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// PaymentHandler handles payment application endpoints
type PaymentHandler struct {
	BaseHandler
	payments *finance.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *finance.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RegisterRoutes registers the payment routes
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	payments.POST("", h.ApplyPayment)
	payments.POST("/preview", h.PreviewPayment)
	payments.GET("/:id", h.GetPayment)
}

// ApplyPayment allocates an incoming payment over the contact's invoices.
// The idempotency key may come from the body or the Idempotency-Key header;
// when both are present they must agree.
// POST /api/v1/payments
//
// Answers 201 for a new payment and 200 for a replay of a known key.
func (h *PaymentHandler) ApplyPayment(c *gin.Context) {
	var req finance.ApplyPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if header := c.GetHeader(middleware.IdempotencyKeyHeader); header != "" {
		if !middleware.ValidIdempotencyKey(header) {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid Idempotency-Key header")
			return
		}
		if req.IdempotencyKey != "" && req.IdempotencyKey != header {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Idempotency-Key header and body idempotencyKey differ")
			return
		}
		req.IdempotencyKey = header
	}

	report, err := h.payments.ApplyPayment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if report.Replayed {
		h.Success(c, report)
		return
	}
	h.Created(c, report)
}

// PreviewPayment returns the allocation plan a payment would follow
// POST /api/v1/payments/preview
func (h *PaymentHandler) PreviewPayment(c *gin.Context) {
	var req finance.PreviewPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	plan, err := h.payments.PreviewPayment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// GetPayment returns a committed payment
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}
