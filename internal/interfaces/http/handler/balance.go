package handler

import (
	"github.com/fleetbill/backend/internal/application/finance"
	"github.com/fleetbill/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
)

// BalanceHandler serves contact balances
type BalanceHandler struct {
	BaseHandler
	balances *finance.BalanceService
	currency valueobject.Currency
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(balances *finance.BalanceService, currency valueobject.Currency) *BalanceHandler {
	return &BalanceHandler{balances: balances, currency: currency}
}

// RegisterRoutes registers the balance routes
func (h *BalanceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/contacts/:id/balance", h.GetBalance)
}

// GetBalance returns the outstanding balance of a contact
// GET /api/v1/contacts/:id/balance
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	contactID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	balance, err := h.balances.GetBalance(c.Request.Context(), contactID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, finance.ToBalanceResponse(balance, h.currency))
}
