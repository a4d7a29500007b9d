package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/looplab/fsm"
)

// InvoiceStatus represents the settlement status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// IsValid checks if the status is a known value
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsOutstanding returns true if the invoice can still receive payments
func (s InvoiceStatus) IsOutstanding() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPartiallyPaid
}

// StatusFor derives the settlement status from the paid amount.
// CANCELLED is never derived; it is set from outside the engine.
func StatusFor(totalAmount, amountPaid int64) InvoiceStatus {
	switch {
	case amountPaid <= 0:
		return InvoiceStatusUnpaid
	case amountPaid >= totalAmount:
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}

const (
	invoiceEventPartialPayment = "partial_payment"
	invoiceEventSettle         = "settle"
	invoiceEventCancel         = "cancel"
)

// invoiceStatusMachine guards the invoice lifecycle. Transitions only move
// forward: UNPAID -> PARTIALLY_PAID -> PAID, and UNPAID -> CANCELLED.
type invoiceStatusMachine struct {
	fsm *fsm.FSM
}

func newInvoiceStatusMachine(current InvoiceStatus) *invoiceStatusMachine {
	return &invoiceStatusMachine{
		fsm: fsm.NewFSM(
			string(current),
			fsm.Events{
				{Name: invoiceEventPartialPayment, Src: []string{string(InvoiceStatusUnpaid)}, Dst: string(InvoiceStatusPartiallyPaid)},
				{Name: invoiceEventSettle, Src: []string{string(InvoiceStatusUnpaid), string(InvoiceStatusPartiallyPaid)}, Dst: string(InvoiceStatusPaid)},
				{Name: invoiceEventCancel, Src: []string{string(InvoiceStatusUnpaid)}, Dst: string(InvoiceStatusCancelled)},
			},
			fsm.Callbacks{},
		),
	}
}

// transitionTo moves the machine to target. Staying in the same state is
// allowed (a second partial payment keeps PARTIALLY_PAID).
func (m *invoiceStatusMachine) transitionTo(ctx context.Context, target InvoiceStatus) error {
	current := InvoiceStatus(m.fsm.Current())
	if current == target {
		return nil
	}

	var event string
	switch target {
	case InvoiceStatusPartiallyPaid:
		event = invoiceEventPartialPayment
	case InvoiceStatusPaid:
		event = invoiceEventSettle
	case InvoiceStatusCancelled:
		event = invoiceEventCancel
	default:
		return invalidTransition(current, target)
	}

	if err := m.fsm.Event(ctx, event); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return invalidTransition(current, target)
		}
		return fmt.Errorf("invoice status transition %s -> %s: %w", current, target, err)
	}
	return nil
}

func (m *invoiceStatusMachine) current() InvoiceStatus {
	return InvoiceStatus(m.fsm.Current())
}

func invalidTransition(from, to InvoiceStatus) error {
	return shared.NewDomainError(shared.CodeInvalidState,
		fmt.Sprintf("invoice cannot move from %s to %s", from, to))
}
