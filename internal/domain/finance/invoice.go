package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Invoice is a customer invoice as seen by the allocation engine.
// TotalAmount is immutable once issued; AmountPaid only grows, and only
// through ApplyPayment.
type Invoice struct {
	shared.Aggregate
	ContactID   uuid.UUID
	Number      string
	TotalAmount int64 // minor units
	AmountPaid  int64 // minor units
	Status      InvoiceStatus
	DueDate     time.Time
	IssuedAt    time.Time
}

// NewInvoice registers an invoice issued by the billing subsystem
func NewInvoice(contactID uuid.UUID, number string, totalAmount int64, issuedAt, dueDate time.Time) (*Invoice, error) {
	if contactID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Contact ID cannot be empty")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Invoice number cannot be empty")
	}
	if totalAmount <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidAmount, "Invoice total must be positive")
	}
	if issuedAt.IsZero() || dueDate.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Invoice issue and due dates are required")
	}

	return &Invoice{
		Aggregate:   shared.NewAggregate(),
		ContactID:   contactID,
		Number:      number,
		TotalAmount: totalAmount,
		Status:      InvoiceStatusUnpaid,
		IssuedAt:    issuedAt.UTC(),
		DueDate:     dueDate.UTC(),
	}, nil
}

// Outstanding returns the amount still owed. Cancelled and paid invoices owe nothing.
func (i *Invoice) Outstanding() int64 {
	if !i.Status.IsOutstanding() {
		return 0
	}
	return i.TotalAmount - i.AmountPaid
}

// ApplyPayment settles amount against the invoice, advancing its status and
// version. It refuses anything that would push AmountPaid past TotalAmount.
func (i *Invoice) ApplyPayment(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return shared.NewDomainError(shared.CodeInvalidAmount, "Applied amount must be positive")
	}
	if !i.Status.IsOutstanding() {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Cannot apply payment to invoice %s in %s status", i.Number, i.Status))
	}
	if amount > i.Outstanding() {
		return shared.NewDomainError(shared.CodeInvalidAllocation,
			fmt.Sprintf("Applied amount %d exceeds outstanding %d on invoice %s", amount, i.Outstanding(), i.Number))
	}

	paid := i.AmountPaid + amount
	machine := newInvoiceStatusMachine(i.Status)
	if err := machine.transitionTo(ctx, StatusFor(i.TotalAmount, paid)); err != nil {
		return err
	}

	i.AmountPaid = paid
	i.Status = machine.current()
	if i.Status == InvoiceStatusPaid {
		i.Mutated(NewInvoiceSettledEvent(i))
	} else {
		i.Mutated()
	}
	return nil
}

// Cancel takes the invoice out of allocation for good. Only untouched
// invoices can be cancelled: money already applied is never reversed here.
func (i *Invoice) Cancel(ctx context.Context) error {
	if i.Status == InvoiceStatusCancelled {
		return invalidTransition(i.Status, InvoiceStatusCancelled)
	}
	machine := newInvoiceStatusMachine(i.Status)
	if err := machine.transitionTo(ctx, InvoiceStatusCancelled); err != nil {
		return err
	}
	i.Status = machine.current()
	i.Mutated()
	return nil
}

// Snapshot captures what the planner needs, including the version read
func (i *Invoice) Snapshot() OutstandingInvoice {
	return OutstandingInvoice{
		ID:          i.ID,
		Number:      i.Number,
		TotalAmount: i.TotalAmount,
		AmountPaid:  i.AmountPaid,
		Outstanding: i.Outstanding(),
		DueDate:     i.DueDate,
		IssuedAt:    i.IssuedAt,
		Version:     i.Version,
	}
}

// OutstandingInvoice is a point-in-time view of an invoice used for planning.
// Version is the optimistic concurrency token observed at read time.
type OutstandingInvoice struct {
	ID          uuid.UUID
	Number      string
	TotalAmount int64
	AmountPaid  int64
	Outstanding int64
	DueDate     time.Time
	IssuedAt    time.Time
	Version     int
}
