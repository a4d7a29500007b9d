package models

import (
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// RecordColumns are the identity and audit columns every table carries
type RecordColumns struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *RecordColumns) record() shared.Record {
	return shared.Record{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func (m *RecordColumns) setRecord(r shared.Record) {
	m.ID, m.CreatedAt, m.UpdatedAt = r.ID, r.CreatedAt, r.UpdatedAt
}

// VersionedColumns adds the optimistic lock column used by compare-and-swap updates
type VersionedColumns struct {
	RecordColumns
	Version int `gorm:"not null;default:1"`
}

func (m *VersionedColumns) aggregate() shared.Aggregate {
	return shared.Aggregate{Record: m.record(), Version: m.Version}
}

func (m *VersionedColumns) setAggregate(a shared.Aggregate) {
	m.setRecord(a.Record)
	m.Version = a.Version
}

// All returns every model managed by the service, in dependency order
func All() []any {
	return []any{
		&ContactModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
		&OutboxRow{},
	}
}
