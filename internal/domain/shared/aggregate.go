package shared

import (
	"time"

	"github.com/google/uuid"
)

// Record holds the identity and audit timestamps of a stored domain object
type Record struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord returns a record with a fresh ID, stamped now
func NewRecord() Record {
	now := time.Now().UTC()
	return Record{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch marks the record as modified now
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// EventSource is anything that queues domain events until they are written
// to the outbox alongside its own state.
type EventSource interface {
	PendingEvents() []DomainEvent
	CommitEvents()
}

// Aggregate is a Record persisted under optimistic locking. Version starts
// at 1 and every accepted mutation advances it by exactly one. A write only
// lands when the stored version still equals the one that was read.
type Aggregate struct {
	Record
	Version int
	pending []DomainEvent
}

// NewAggregate returns a new aggregate at version 1
func NewAggregate() Aggregate {
	return Aggregate{Record: NewRecord(), Version: 1}
}

// Mutated records an accepted state change and queues the events it raised
func (a *Aggregate) Mutated(events ...DomainEvent) {
	a.Touch()
	a.Version++
	a.pending = append(a.pending, events...)
}

// Raise queues an event without moving the version
func (a *Aggregate) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns queued events in the order they were raised
func (a *Aggregate) PendingEvents() []DomainEvent {
	return a.pending
}

// CommitEvents drops the queue once the events are durably stored
func (a *Aggregate) CommitEvents() {
	a.pending = nil
}

var _ EventSource = (*Aggregate)(nil)
