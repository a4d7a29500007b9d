package handler

import (
	"github.com/fleetbill/backend/internal/application/finance"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice ingest and cancellation
type InvoiceHandler struct {
	BaseHandler
	invoices *finance.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices *finance.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// RegisterRoutes registers the invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	invoices.POST("", h.RegisterInvoice)
	invoices.GET("/:id", h.GetInvoice)
	invoices.POST("/:id/cancel", h.CancelInvoice)
}

// RegisterInvoice stores an invoice issued by billing
// POST /api/v1/invoices
func (h *InvoiceHandler) RegisterInvoice(c *gin.Context) {
	var req finance.RegisterInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoice, err := h.invoices.RegisterInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// GetInvoice returns an invoice
// GET /api/v1/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// CancelInvoice marks an unpaid invoice as cancelled
// POST /api/v1/invoices/:id/cancel
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	id, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}
