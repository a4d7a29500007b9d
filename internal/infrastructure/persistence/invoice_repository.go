package persistence

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements finance.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.Invoice, error) {
	var m models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "find invoice")
	}
	return m.ToDomain(), nil
}

// FindByIDs loads the given invoices; unknown ids are absent from the result
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*finance.Invoice, error) {
	if len(ids) == 0 {
		return []*finance.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "find invoices")
	}
	return toDomainInvoices(rows), nil
}

// FindOutstandingByContact finds the contact's UNPAID and PARTIALLY_PAID invoices
func (r *GormInvoiceRepository) FindOutstandingByContact(ctx context.Context, contactID uuid.UUID) ([]*finance.Invoice, error) {
	var rows []models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("contact_id = ? AND status IN ?", contactID, []finance.InvoiceStatus{
			finance.InvoiceStatusUnpaid,
			finance.InvoiceStatusPartiallyPaid,
		}).
		Order("due_date, issued_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "find outstanding invoices")
	}
	return toDomainInvoices(rows), nil
}

// Create inserts a newly issued invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *finance.Invoice) error {
	err := r.db.WithContext(ctx).Create(models.InvoiceModelFromDomain(invoice)).Error
	return translateError(err, "create invoice")
}

// SaveWithLock persists the invoice only if nobody moved it since it was read
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *finance.Invoice) error {
	return saveInvoiceWithLock(r.db.WithContext(ctx), invoice)
}

// saveInvoiceWithLock is the compare-and-swap shared with the payment ledger:
// the row is updated only while its version is still invoice.Version-1.
func saveInvoiceWithLock(db *gorm.DB, invoice *finance.Invoice) error {
	result := db.
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(map[string]any{
			"amount_paid": invoice.AmountPaid,
			"status":      invoice.Status,
			"version":     invoice.Version,
			"updated_at":  invoice.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "update invoice")
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConflict,
			"Invoice "+invoice.Number+" was modified by another transaction")
	}
	return nil
}

func toDomainInvoices(rows []models.InvoiceModel) []*finance.Invoice {
	invoices := make([]*finance.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain()
	}
	return invoices
}

var _ finance.InvoiceRepository = (*GormInvoiceRepository)(nil)
