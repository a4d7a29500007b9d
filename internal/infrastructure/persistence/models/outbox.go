package models

import (
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OutboxRow is an outbox_events row. Relays scan it by (status, created_at)
// for fresh rows and by next_retry_at for failed ones.
type OutboxRow struct {
	RecordColumns
	EventID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_events_event_id"`
	EventType     string              `gorm:"type:varchar(255);not null"`
	AggregateID   uuid.UUID           `gorm:"type:uuid;not null"`
	AggregateType string              `gorm:"type:varchar(255);not null"`
	Payload       []byte              `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_outbox_status_created,priority:1"`
	RetryCount    int                 `gorm:"not null;default:0"`
	MaxRetries    int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	NextRetryAt   *time.Time          `gorm:"index:idx_outbox_events_next_retry_at"`
	ProcessedAt   *time.Time
}

func (OutboxRow) TableName() string {
	return "outbox_events"
}

// NewOutboxRow maps a domain entry onto its row
func NewOutboxRow(e *shared.OutboxEntry) *OutboxRow {
	row := &OutboxRow{
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Payload:       e.Payload,
	}
	row.setRecord(shared.Record{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt})
	row.applyDelivery(e)
	return row
}

func (m *OutboxRow) applyDelivery(e *shared.OutboxEntry) {
	m.Status = e.Status
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.LastError = e.LastError
	m.NextRetryAt = e.NextRetryAt
	m.ProcessedAt = e.ProcessedAt
}

// DeliveryColumns returns the columns a relay rewrites after an attempt
func DeliveryColumns(e *shared.OutboxEntry) map[string]any {
	return map[string]any{
		"status":        e.Status,
		"retry_count":   e.RetryCount,
		"last_error":    e.LastError,
		"next_retry_at": e.NextRetryAt,
		"processed_at":  e.ProcessedAt,
		"updated_at":    e.UpdatedAt,
	}
}

// Entry rebuilds the domain entry
func (m *OutboxRow) Entry() *shared.OutboxEntry {
	rec := m.record()
	return &shared.OutboxEntry{
		ID:            rec.ID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       m.Payload,
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
