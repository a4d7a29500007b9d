package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox row
type OutboxStatus string

// Rows start PENDING, are claimed as PROCESSING, and end SENT or, after
// MaxRetries failures, DEAD. FAILED rows wait for NextRetryAt.
const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultOutboxMaxRetries = 5
	outboxFirstRetry        = time.Second
	outboxMaxRetryDelay     = 10 * time.Minute
)

// OutboxEntry is one serialized domain event, inserted in the transaction
// that produced it and delivered later by the relay.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte

	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOutboxEntry wraps payload, the encoded form of event, as a pending row
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Claimable reports whether a relay may take the row for delivery
func (e *OutboxEntry) Claimable() bool {
	return e.Status == OutboxStatusPending || e.Status == OutboxStatusFailed
}

// MarkProcessing claims the row
func (e *OutboxEntry) MarkProcessing() error {
	if !e.Claimable() {
		return fmt.Errorf("outbox entry %s is %s and cannot be claimed", e.ID, e.Status)
	}
	e.Status = OutboxStatusProcessing
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSent records a delivery
func (e *OutboxEntry) MarkSent() {
	now := time.Now().UTC()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The row is retried after
// RetryDelay, or becomes DEAD once RetryCount reaches MaxRetries.
func (e *OutboxEntry) MarkFailed(reason string) {
	now := time.Now().UTC()
	e.RetryCount++
	e.LastError = reason
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	next := now.Add(RetryDelay(e.RetryCount))
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &next
}

// IsDead reports whether the row gave up
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// RetryDelay doubles from one second per failed attempt, capped at ten minutes
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxFirstRetry
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= outboxMaxRetryDelay {
			return outboxMaxRetryDelay
		}
	}
	return delay
}

// OutboxRepository is the storage the outbox relay reads and updates
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// ClaimDue moves up to limit PENDING rows and FAILED rows due by now to
	// PROCESSING and returns them. A row is handed to one caller only.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	// Settle persists the delivery state after an attempt
	Settle(ctx context.Context, entry *OutboxEntry) error
	// PurgeDelivered removes SENT rows processed before the cutoff
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
