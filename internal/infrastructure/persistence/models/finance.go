package models

import (
	"sort"
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/google/uuid"
)

// ContactModel is the persistence model for a billed contact
type ContactModel struct {
	RecordColumns
	Name string `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (ContactModel) TableName() string {
	return "contacts"
}

// ToDomain converts the persistence model to a domain Contact
func (m *ContactModel) ToDomain() *finance.Contact {
	return &finance.Contact{
		Record: m.record(),
		Name:   m.Name,
	}
}

// ContactModelFromDomain creates a persistence model from a domain Contact
func ContactModelFromDomain(c *finance.Contact) *ContactModel {
	m := &ContactModel{Name: c.Name}
	m.setRecord(c.Record)
	return m
}

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Amounts are stored in minor units.
type InvoiceModel struct {
	VersionedColumns
	ContactID   uuid.UUID             `gorm:"type:uuid;not null;index:idx_invoice_contact_status,priority:1"`
	Number      string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	TotalAmount int64                 `gorm:"not null"`
	AmountPaid  int64                 `gorm:"not null;default:0"`
	Status      finance.InvoiceStatus `gorm:"type:varchar(20);not null;default:'UNPAID';index:idx_invoice_contact_status,priority:2"`
	DueDate     time.Time             `gorm:"not null"`
	IssuedAt    time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *finance.Invoice {
	return &finance.Invoice{
		Aggregate:   m.aggregate(),
		ContactID:   m.ContactID,
		Number:      m.Number,
		TotalAmount: m.TotalAmount,
		AmountPaid:  m.AmountPaid,
		Status:      m.Status,
		DueDate:     m.DueDate.UTC(),
		IssuedAt:    m.IssuedAt.UTC(),
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(i *finance.Invoice) {
	m.setAggregate(i.Aggregate)
	m.ContactID = i.ContactID
	m.Number = i.Number
	m.TotalAmount = i.TotalAmount
	m.AmountPaid = i.AmountPaid
	m.Status = i.Status
	m.DueDate = i.DueDate
	m.IssuedAt = i.IssuedAt
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice
func InvoiceModelFromDomain(i *finance.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(i)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root
type PaymentModel struct {
	VersionedColumns
	ContactID       uuid.UUID                      `gorm:"type:uuid;not null;uniqueIndex:idx_payment_contact_key,priority:1"`
	IdempotencyKey  string                         `gorm:"type:varchar(128);not null;uniqueIndex:idx_payment_contact_key,priority:2"`
	Amount          int64                          `gorm:"not null"`
	Strategy        finance.AllocationStrategyType `gorm:"type:varchar(20);not null"`
	RemainingCredit int64                          `gorm:"not null;default:0"`
	Allocations     []PaymentAllocationModel       `gorm:"foreignKey:PaymentID;references:ID"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
// Allocation lines come back in their recorded order.
func (m *PaymentModel) ToDomain() *finance.Payment {
	lines := make([]PaymentAllocationModel, len(m.Allocations))
	copy(lines, m.Allocations)
	sort.SliceStable(lines, func(a, b int) bool { return lines[a].Position < lines[b].Position })

	allocations := make([]finance.Allocation, len(lines))
	for i, l := range lines {
		allocations[i] = l.ToDomain()
	}
	return &finance.Payment{
		Aggregate:       m.aggregate(),
		ContactID:       m.ContactID,
		Amount:          m.Amount,
		IdempotencyKey:  m.IdempotencyKey,
		Strategy:        m.Strategy,
		Allocations:     allocations,
		RemainingCredit: m.RemainingCredit,
	}
}

// PaymentModelFromDomain creates a persistence model, allocation lines included
func PaymentModelFromDomain(p *finance.Payment) *PaymentModel {
	m := &PaymentModel{
		ContactID:       p.ContactID,
		IdempotencyKey:  p.IdempotencyKey,
		Amount:          p.Amount,
		Strategy:        p.Strategy,
		RemainingCredit: p.RemainingCredit,
		Allocations:     make([]PaymentAllocationModel, len(p.Allocations)),
	}
	m.setAggregate(p.Aggregate)
	for i, a := range p.Allocations {
		m.Allocations[i] = PaymentAllocationModel{
			ID:                     uuid.New(),
			PaymentID:              p.ID,
			Position:               i,
			InvoiceID:              a.InvoiceID,
			InvoiceNumber:          a.InvoiceNumber,
			AppliedAmount:          a.AppliedAmount,
			ResultingInvoiceStatus: a.ResultingInvoiceStatus,
			CreatedAt:              p.CreatedAt,
		}
	}
	return m
}

// PaymentAllocationModel is one line of a committed payment
type PaymentAllocationModel struct {
	ID                     uuid.UUID             `gorm:"type:uuid;primaryKey"`
	PaymentID              uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_allocation_payment_invoice,priority:1"`
	InvoiceID              uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_allocation_payment_invoice,priority:2;index"`
	Position               int                   `gorm:"not null"`
	InvoiceNumber          string                `gorm:"type:varchar(50);not null"`
	AppliedAmount          int64                 `gorm:"not null"`
	ResultingInvoiceStatus finance.InvoiceStatus `gorm:"type:varchar(20);not null"`
	CreatedAt              time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the line to a domain Allocation
func (m *PaymentAllocationModel) ToDomain() finance.Allocation {
	return finance.Allocation{
		InvoiceID:              m.InvoiceID,
		InvoiceNumber:          m.InvoiceNumber,
		AppliedAmount:          m.AppliedAmount,
		ResultingInvoiceStatus: m.ResultingInvoiceStatus,
	}
}
