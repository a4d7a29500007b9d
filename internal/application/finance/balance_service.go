package finance

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// BalanceService derives contact balances from stored invoices. Nothing is
// cached: every call reads the invoices again.
type BalanceService struct {
	contacts finance.ContactRepository
	invoices finance.InvoiceRepository
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(contacts finance.ContactRepository, invoices finance.InvoiceRepository) *BalanceService {
	return &BalanceService{contacts: contacts, invoices: invoices}
}

// GetBalance returns the contact's outstanding balance, invoice by invoice
func (s *BalanceService) GetBalance(ctx context.Context, contactID uuid.UUID) (*finance.ContactBalance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "balance", "get", telemetry.SpanAttrContactID, contactID.String())
	defer span.End()

	invoices, err := s.outstanding(ctx, contactID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	balance := finance.BuildContactBalance(contactID, invoices)
	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, balance.TotalOutstanding)
	return balance, nil
}

// OutstandingInvoices returns the planner input for the contact: one
// snapshot per invoice that still owes money, carrying the version read.
func (s *BalanceService) OutstandingInvoices(ctx context.Context, contactID uuid.UUID) ([]finance.OutstandingInvoice, error) {
	invoices, err := s.outstanding(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return finance.OutstandingSnapshots(invoices), nil
}

func (s *BalanceService) outstanding(ctx context.Context, contactID uuid.UUID) ([]*finance.Invoice, error) {
	exists, err := s.contacts.Exists(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Contact "+contactID.String()+" not found")
	}
	return s.invoices.FindOutstandingByContact(ctx, contactID)
}
