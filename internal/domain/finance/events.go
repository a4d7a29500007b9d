package finance

import (
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event and aggregate type names as stored in the outbox
const (
	EventTypePaymentApplied = "PaymentApplied"
	EventTypeInvoiceSettled = "InvoiceSettled"

	AggregateTypePayment = "Payment"
	AggregateTypeInvoice = "Invoice"
)

// PaymentAppliedEvent is raised when a payment has been committed
type PaymentAppliedEvent struct {
	shared.EventHeader
	PaymentID       uuid.UUID              `json:"payment_id"`
	ContactID       uuid.UUID              `json:"contact_id"`
	Strategy        AllocationStrategyType `json:"strategy"`
	Amount          int64                  `json:"amount"`
	Allocated       int64                  `json:"allocated"`
	RemainingCredit int64                  `json:"remaining_credit"`
	InvoiceCount    int                    `json:"invoice_count"`
}

// NewPaymentAppliedEvent creates a new PaymentAppliedEvent
func NewPaymentAppliedEvent(p *Payment) *PaymentAppliedEvent {
	return &PaymentAppliedEvent{
		EventHeader:     shared.NewEventHeader(EventTypePaymentApplied, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		ContactID:       p.ContactID,
		Strategy:        p.Strategy,
		Amount:          p.Amount,
		Allocated:       p.AllocatedAmount(),
		RemainingCredit: p.RemainingCredit,
		InvoiceCount:    len(p.Allocations),
	}
}

// InvoiceSettledEvent is raised when an invoice becomes fully paid
type InvoiceSettledEvent struct {
	shared.EventHeader
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	ContactID     uuid.UUID `json:"contact_id"`
	TotalAmount   int64     `json:"total_amount"`
}

// NewInvoiceSettledEvent creates a new InvoiceSettledEvent
func NewInvoiceSettledEvent(i *Invoice) *InvoiceSettledEvent {
	return &InvoiceSettledEvent{
		EventHeader:   shared.NewEventHeader(EventTypeInvoiceSettled, AggregateTypeInvoice, i.ID),
		InvoiceID:     i.ID,
		InvoiceNumber: i.Number,
		ContactID:     i.ContactID,
		TotalAmount:   i.TotalAmount,
	}
}
