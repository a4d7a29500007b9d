package finance

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceBalance is one outstanding line of a contact balance
type InvoiceBalance struct {
	InvoiceID   uuid.UUID
	Number      string
	Outstanding int64
	DueDate     time.Time
}

// ContactBalance is derived from stored invoices on every read.
// It is never stored and never reused across a payment application.
type ContactBalance struct {
	ContactID        uuid.UUID
	TotalOutstanding int64
	Invoices         []InvoiceBalance
}

// BuildContactBalance computes a contact's balance from its invoices.
// Paid and cancelled invoices contribute nothing and are not listed.
// Lines are ordered the way the AUTO strategy would consume them.
func BuildContactBalance(contactID uuid.UUID, invoices []*Invoice) *ContactBalance {
	outstanding := OutstandingSnapshots(invoices)

	balance := &ContactBalance{
		ContactID: contactID,
		Invoices:  make([]InvoiceBalance, 0, len(outstanding)),
	}
	for _, inv := range SortForAllocation(outstanding) {
		balance.TotalOutstanding += inv.Outstanding
		balance.Invoices = append(balance.Invoices, InvoiceBalance{
			InvoiceID:   inv.ID,
			Number:      inv.Number,
			Outstanding: inv.Outstanding,
			DueDate:     inv.DueDate,
		})
	}
	return balance
}

// OutstandingSnapshots returns planning snapshots of the invoices that still owe money
func OutstandingSnapshots(invoices []*Invoice) []OutstandingInvoice {
	snapshots := make([]OutstandingInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv == nil || inv.Outstanding() <= 0 {
			continue
		}
		snapshots = append(snapshots, inv.Snapshot())
	}
	return snapshots
}
