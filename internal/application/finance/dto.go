package finance

import (
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// ==================== Payment DTOs ====================

// AllocationInstruction is one line of a MANUAL allocation request
type AllocationInstruction struct {
	InvoiceID uuid.UUID `json:"invoiceId" binding:"required"`
	Amount    int64     `json:"amount"`
}

// ApplyPaymentRequest represents a request to apply a payment across a contact's invoices.
// Amounts are minor units; non-positive values are rejected by the planner with INVALID_AMOUNT.
type ApplyPaymentRequest struct {
	ContactID      uuid.UUID               `json:"contactId" binding:"required"`
	Amount         int64                   `json:"amount"`
	Strategy       string                  `json:"strategy" binding:"omitempty,oneof=AUTO MANUAL"`
	Allocations    []AllocationInstruction `json:"allocations" binding:"omitempty,dive"`
	IdempotencyKey string                  `json:"idempotencyKey" binding:"omitempty,idempotency_key"`
}

// PreviewPaymentRequest represents a request to plan a payment without committing it
type PreviewPaymentRequest struct {
	ContactID   uuid.UUID               `json:"contactId" binding:"required"`
	Amount      int64                   `json:"amount"`
	Strategy    string                  `json:"strategy" binding:"omitempty,oneof=AUTO MANUAL"`
	Allocations []AllocationInstruction `json:"allocations" binding:"omitempty,dive"`
}

// AllocationResponse is one committed allocation line
type AllocationResponse struct {
	InvoiceID            uuid.UUID `json:"invoiceId"`
	InvoiceNumber        string    `json:"invoiceNumber"`
	AppliedAmount        int64     `json:"appliedAmount"`
	AppliedAmountDisplay string    `json:"appliedAmountDisplay"`
	ResultingStatus      string    `json:"resultingStatus"`
}

// PaymentReport is the response for a committed (or replayed) payment.
// Balance is only set right after an application.
type PaymentReport struct {
	PaymentID              uuid.UUID            `json:"paymentId"`
	ContactID              uuid.UUID            `json:"contactId"`
	Currency               string               `json:"currency"`
	Amount                 int64                `json:"amount"`
	AmountDisplay          string               `json:"amountDisplay"`
	Strategy               string               `json:"strategy"`
	Allocations            []AllocationResponse `json:"allocations"`
	RemainingCredit        int64                `json:"remainingCredit"`
	RemainingCreditDisplay string               `json:"remainingCreditDisplay"`
	Replayed               bool                 `json:"replayed"`
	CreatedAt              time.Time            `json:"createdAt"`
	Balance                *BalanceResponse     `json:"balance,omitempty"`
}

// PlannedAllocationResponse is one line of a previewed plan
type PlannedAllocationResponse struct {
	InvoiceID         uuid.UUID `json:"invoiceId"`
	InvoiceNumber     string    `json:"invoiceNumber"`
	AppliedAmount     int64     `json:"appliedAmount"`
	OutstandingBefore int64     `json:"outstandingBefore"`
	ResultingStatus   string    `json:"resultingStatus"`
	ExpectedVersion   int       `json:"expectedVersion"`
}

// PlanResponse is the response of a payment preview
type PlanResponse struct {
	ContactID              uuid.UUID                   `json:"contactId"`
	Currency               string                      `json:"currency"`
	Amount                 int64                       `json:"amount"`
	Strategy               string                      `json:"strategy"`
	Allocations            []PlannedAllocationResponse `json:"allocations"`
	Allocated              int64                       `json:"allocated"`
	AllocatedDisplay       string                      `json:"allocatedDisplay"`
	RemainingCredit        int64                       `json:"remainingCredit"`
	RemainingCreditDisplay string                      `json:"remainingCreditDisplay"`
}

// ==================== Balance DTOs ====================

// InvoiceBalanceResponse is one outstanding invoice of a balance
type InvoiceBalanceResponse struct {
	InvoiceID          uuid.UUID `json:"invoiceId"`
	Number             string    `json:"number"`
	Outstanding        int64     `json:"outstanding"`
	OutstandingDisplay string    `json:"outstandingDisplay"`
	DueDate            time.Time `json:"dueDate"`
}

// BalanceResponse is a contact's outstanding balance
type BalanceResponse struct {
	ContactID               uuid.UUID                `json:"contactId"`
	Currency                string                   `json:"currency"`
	TotalOutstanding        int64                    `json:"totalOutstanding"`
	TotalOutstandingDisplay string                   `json:"totalOutstandingDisplay"`
	Invoices                []InvoiceBalanceResponse `json:"invoices"`
}

// ==================== Invoice DTOs ====================

// RegisterInvoiceRequest represents an invoice issued by the billing subsystem
type RegisterInvoiceRequest struct {
	ContactID   uuid.UUID `json:"contactId" binding:"required"`
	ContactName string    `json:"contactName" binding:"max=200"`
	Number      string    `json:"number" binding:"required,min=1,max=64"`
	TotalAmount int64     `json:"totalAmount"`
	IssuedAt    time.Time `json:"issuedAt" binding:"required"`
	DueDate     time.Time `json:"dueDate" binding:"required"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID          uuid.UUID `json:"id"`
	ContactID   uuid.UUID `json:"contactId"`
	Number      string    `json:"number"`
	TotalAmount int64     `json:"totalAmount"`
	AmountPaid  int64     `json:"amountPaid"`
	Outstanding int64     `json:"outstanding"`
	Status      string    `json:"status"`
	IssuedAt    time.Time `json:"issuedAt"`
	DueDate     time.Time `json:"dueDate"`
	Version     int       `json:"version"`
}

// ==================== Conversions ====================

// ToBalanceResponse converts a domain balance, rendering amounts in currency
func ToBalanceResponse(b *finance.ContactBalance, currency valueobject.Currency) BalanceResponse {
	lines := make([]InvoiceBalanceResponse, len(b.Invoices))
	for i, inv := range b.Invoices {
		lines[i] = InvoiceBalanceResponse{
			InvoiceID:          inv.InvoiceID,
			Number:             inv.Number,
			Outstanding:        inv.Outstanding,
			OutstandingDisplay: valueobject.FormatMinor(inv.Outstanding, currency),
			DueDate:            inv.DueDate,
		}
	}
	return BalanceResponse{
		ContactID:               b.ContactID,
		Currency:                string(currency),
		TotalOutstanding:        b.TotalOutstanding,
		TotalOutstandingDisplay: valueobject.FormatMinor(b.TotalOutstanding, currency),
		Invoices:                lines,
	}
}

// ToPlanResponse converts an allocation plan
func ToPlanResponse(p *finance.AllocationPlan, currency valueobject.Currency) PlanResponse {
	lines := make([]PlannedAllocationResponse, len(p.Allocations))
	for i, a := range p.Allocations {
		lines[i] = PlannedAllocationResponse{
			InvoiceID:         a.InvoiceID,
			InvoiceNumber:     a.InvoiceNumber,
			AppliedAmount:     a.AppliedAmount,
			OutstandingBefore: a.OutstandingBefore,
			ResultingStatus:   a.ResultingStatus.String(),
			ExpectedVersion:   a.ExpectedVersion,
		}
	}
	allocated := p.Allocated()
	return PlanResponse{
		ContactID:              p.ContactID,
		Currency:               string(currency),
		Amount:                 p.Amount,
		Strategy:               p.Strategy.String(),
		Allocations:            lines,
		Allocated:              allocated,
		AllocatedDisplay:       valueobject.FormatMinor(allocated, currency),
		RemainingCredit:        p.RemainingCredit,
		RemainingCreditDisplay: valueobject.FormatMinor(p.RemainingCredit, currency),
	}
}

// ToInvoiceResponse converts a domain invoice
func ToInvoiceResponse(inv *finance.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          inv.ID,
		ContactID:   inv.ContactID,
		Number:      inv.Number,
		TotalAmount: inv.TotalAmount,
		AmountPaid:  inv.AmountPaid,
		Outstanding: inv.Outstanding(),
		Status:      inv.Status.String(),
		IssuedAt:    inv.IssuedAt,
		DueDate:     inv.DueDate,
		Version:     inv.Version,
	}
}

func toManualInstructions(lines []AllocationInstruction) []finance.ManualInstruction {
	if len(lines) == 0 {
		return nil
	}
	out := make([]finance.ManualInstruction, len(lines))
	for i, l := range lines {
		out[i] = finance.ManualInstruction{InvoiceID: l.InvoiceID, Amount: l.Amount}
	}
	return out
}
