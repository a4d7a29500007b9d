package finance

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService registers invoices issued by billing and applies the
// cancellations decided outside the allocation engine
type InvoiceService struct {
	contacts finance.ContactRepository
	invoices finance.InvoiceRepository
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(contacts finance.ContactRepository, invoices finance.InvoiceRepository) *InvoiceService {
	return &InvoiceService{contacts: contacts, invoices: invoices}
}

// RegisterInvoice stores a newly issued invoice, creating the contact
// reference on first sight
func (s *InvoiceService) RegisterInvoice(ctx context.Context, req RegisterInvoiceRequest) (*InvoiceResponse, error) {
	invoice, err := finance.NewInvoice(req.ContactID, req.Number, req.TotalAmount, req.IssuedAt, req.DueDate)
	if err != nil {
		return nil, err
	}
	contact, err := finance.NewContact(req.ContactID, req.ContactName)
	if err != nil {
		return nil, err
	}
	if err := s.contacts.Ensure(ctx, contact); err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("Invoice registered",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("contact_id", invoice.ContactID.String()),
		zap.String("number", invoice.Number),
		zap.Int64("total_amount", invoice.TotalAmount),
	)
	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// CancelInvoice takes an unpaid invoice out of allocation. The write is
// version-checked, so a payment racing the cancellation wins or loses as a whole.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := invoice.Cancel(ctx); err != nil {
		return nil, err
	}
	if err := s.invoices.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("Invoice cancelled",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
	)
	response := ToInvoiceResponse(invoice)
	return &response, nil
}
