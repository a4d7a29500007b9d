package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_Mutated(t *testing.T) {
	a := NewAggregate()
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)

	first, second := newTestEvent(), newTestEvent()
	a.Mutated()
	a.Mutated(first)
	a.Raise(second)

	assert.Equal(t, 3, a.Version)
	assert.False(t, a.UpdatedAt.Before(a.CreatedAt))
	assert.Equal(t, []DomainEvent{first, second}, a.PendingEvents())

	a.CommitEvents()
	assert.Empty(t, a.PendingEvents())
	assert.Equal(t, 3, a.Version, "committing events leaves the version alone")
}

func TestEventHeader(t *testing.T) {
	e := newTestEvent()
	assert.Equal(t, "TestEvent", e.EventType())
	assert.Equal(t, "Test", e.AggregateType())
	assert.NotEqual(t, e.EventID(), e.AggregateID())
	assert.False(t, e.OccurredAt().IsZero())
}
