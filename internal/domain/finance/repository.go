package finance

import (
	"context"

	"github.com/google/uuid"
)

// ContactRepository is the narrow view of the CRM the engine consumes
type ContactRepository interface {
	// Exists reports whether the contact is known
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Ensure creates the contact reference if it does not exist yet
	Ensure(ctx context.Context, contact *Contact) error
}

// InvoiceRepository provides read access to invoices and the writes made
// outside of payment application (ingest, cancellation)
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByIDs finds the given invoices; missing ids are simply absent from the result
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Invoice, error)
	// FindOutstandingByContact finds UNPAID and PARTIALLY_PAID invoices of a contact
	FindOutstandingByContact(ctx context.Context, contactID uuid.UUID) ([]*Invoice, error)
	// Create inserts a newly issued invoice
	Create(ctx context.Context, invoice *Invoice) error
	// SaveWithLock persists invoice state only if the stored version is
	// invoice.Version-1. Returns shared.ErrConflict otherwise.
	SaveWithLock(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository provides read access to committed payments
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// FindByIdempotencyKey finds the payment stored for (contactID, key).
	// Returns shared.ErrNotFound if there is none.
	FindByIdempotencyKey(ctx context.Context, contactID uuid.UUID, key string) (*Payment, error)
}

// PaymentLedger commits a payment together with the invoice mutations it
// causes, as a single atomic unit.
type PaymentLedger interface {
	// Commit inserts payment and conditionally updates every invoice whose
	// stored version is still invoice.Version-1. Any version mismatch fails
	// the whole commit with shared.ErrConflict; a duplicate idempotency key
	// fails it with shared.ErrAlreadyExists. Nothing is written on failure.
	Commit(ctx context.Context, payment *Payment, invoices []*Invoice) error
}
