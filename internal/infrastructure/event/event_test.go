package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/cache"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.OutboxRow{}))
	return db
}

func newSettledEvent() *finance.InvoiceSettledEvent {
	return &finance.InvoiceSettledEvent{
		EventHeader:   shared.NewEventHeader(finance.EventTypeInvoiceSettled, finance.AggregateTypeInvoice, uuid.New()),
		InvoiceID:     uuid.New(),
		InvoiceNumber: "INV-1",
		ContactID:     uuid.New(),
		TotalAmount:   5000,
	}
}

// recordingHandler records the events it sees and can be told to fail
type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	seen   []shared.DomainEvent
	failOn func(shared.DomainEvent) error
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handle(_ context.Context, e shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, e)
	if h.failOn != nil {
		return h.failOn(e)
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewFinanceEventSerializer()
	assert.Equal(t, []string{finance.EventTypeInvoiceSettled, finance.EventTypePaymentApplied}, s.RegisteredTypes())

	original := newSettledEvent()
	data, err := s.Serialize(original)
	require.NoError(t, err)

	decoded, err := s.Deserialize(finance.EventTypeInvoiceSettled, data)
	require.NoError(t, err)
	settled, ok := decoded.(*finance.InvoiceSettledEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), settled.EventID())
	assert.Equal(t, original.InvoiceNumber, settled.InvoiceNumber)
	assert.Equal(t, int64(5000), settled.TotalAmount)

	_, err = s.Deserialize("Unknown", data)
	assert.ErrorContains(t, err, "unknown event type")
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	settled := &recordingHandler{types: []string{finance.EventTypeInvoiceSettled}}
	all := &recordingHandler{}
	bus.Subscribe(settled)
	bus.Subscribe(all)

	applied := &finance.PaymentAppliedEvent{
		EventHeader: shared.NewEventHeader(finance.EventTypePaymentApplied, finance.AggregateTypePayment, uuid.New()),
	}
	require.NoError(t, bus.Publish(context.Background(), newSettledEvent(), applied))

	assert.Equal(t, 1, settled.count())
	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_ReportsHandlerFailures(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(&recordingHandler{failOn: func(shared.DomainEvent) error { return errors.New("down") }})
	bus.Subscribe(&recordingHandler{failOn: func(shared.DomainEvent) error { panic("boom") }})
	ok := &recordingHandler{}
	bus.Subscribe(ok)

	err := bus.Publish(context.Background(), newSettledEvent())
	require.Error(t, err)
	assert.ErrorContains(t, err, "down")
	assert.ErrorContains(t, err, "panicked")
	assert.Equal(t, 1, ok.count(), "later handlers still run")
}

func TestDedupHandler(t *testing.T) {
	store := cache.NewMemoryProcessedEvents()
	inner := &recordingHandler{types: []string{finance.EventTypeInvoiceSettled}}
	h := NewDedupHandler(inner, store, DefaultDedupTTL, zap.NewNop())
	assert.Equal(t, inner.types, h.EventTypes())

	e := newSettledEvent()
	require.NoError(t, h.Handle(context.Background(), e))
	require.NoError(t, h.Handle(context.Background(), e))
	require.NoError(t, h.Handle(context.Background(), newSettledEvent()))

	assert.Equal(t, 2, inner.count())
	assert.Equal(t, DedupStats{Handled: 2, Skipped: 1}, h.Stats())
}

func TestDedupHandler_FailureReleasesClaim(t *testing.T) {
	store := cache.NewMemoryProcessedEvents()
	calls := 0
	inner := &recordingHandler{failOn: func(shared.DomainEvent) error {
		calls++
		if calls == 1 {
			return errors.New("exporter down")
		}
		return nil
	}}
	h := NewDedupHandler(inner, store, DefaultDedupTTL, zap.NewNop())

	e := newSettledEvent()
	require.Error(t, h.Handle(context.Background(), e))
	require.NoError(t, h.Handle(context.Background(), e), "the retry is not treated as a duplicate")
	require.NoError(t, h.Handle(context.Background(), e))

	assert.Equal(t, DedupStats{Handled: 1, Skipped: 1, Failed: 1}, h.Stats())
}

func TestDedupHandler_Disabled(t *testing.T) {
	inner := &recordingHandler{}
	h := NewDedupHandler(inner, cache.NewMemoryProcessedEvents(), 0, zap.NewNop())

	e := newSettledEvent()
	require.NoError(t, h.Handle(context.Background(), e))
	require.NoError(t, h.Handle(context.Background(), e))
	assert.Equal(t, 2, inner.count())
}

func TestGormOutboxRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	writer := NewOutboxWriter(NewFinanceEventSerializer())
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return writer.SaveEvents(ctx, tx, newSettledEvent(), newSettledEvent())
	}))

	claimed, err := repo.ClaimDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)

	again, err := repo.ClaimDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, again, "processing rows cannot be claimed twice")

	sent := claimed[0]
	sent.MarkSent()
	past := time.Now().UTC().Add(-48 * time.Hour)
	sent.ProcessedAt = &past
	require.NoError(t, repo.Settle(ctx, sent))

	failed := claimed[1]
	failed.MarkFailed("down")
	require.NoError(t, repo.Settle(ctx, failed))

	notYet, err := repo.ClaimDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, notYet, "failed rows wait for their retry time")

	retried, err := repo.ClaimDue(ctx, time.Now().UTC().Add(shared.RetryDelay(1)+time.Second), 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, failed.ID, retried[0].ID)
	assert.Equal(t, 1, retried[0].RetryCount)
	assert.Equal(t, "down", retried[0].LastError)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusProcessing])

	deleted, err := repo.PurgeDelivered(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestOutboxWriter_RollsBackWithTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	writer := NewOutboxWriter(NewFinanceEventSerializer())

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := writer.SaveEvents(ctx, tx, newSettledEvent()); err != nil {
			return err
		}
		return errors.New("version conflict")
	})
	require.Error(t, err)

	var rows int64
	require.NoError(t, db.Model(&models.OutboxRow{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestRelay_Drain(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOutboxRepository(db)
	serializer := NewFinanceEventSerializer()
	ctx := context.Background()

	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{finance.EventTypeInvoiceSettled}}
	bus.Subscribe(handler)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return NewOutboxWriter(serializer).SaveEvents(ctx, tx, newSettledEvent())
	}))
	require.NoError(t, repo.Save(ctx, &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "Garbage",
		AggregateID:   uuid.New(),
		AggregateType: "Invoice",
		Payload:       []byte(`{}`),
		Status:        shared.OutboxStatusPending,
		MaxRetries:    1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}))

	relay := NewRelay(repo, bus, serializer, DefaultRelayConfig(), zap.NewNop())
	res := relay.Drain(ctx)

	assert.Equal(t, DrainResult{Delivered: 1, Dead: 1}, res)
	assert.Equal(t, 1, handler.count())
	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusDead])

	assert.Equal(t, DrainResult{}, relay.Drain(ctx))
	assert.Equal(t, 1, handler.count(), "sent entries are not delivered again")
}

func TestOutboxWriter_RejectsUnregisteredEvents(t *testing.T) {
	db := newTestDB(t)
	writer := NewOutboxWriter(NewEventSerializer(nil))

	err := db.Transaction(func(tx *gorm.DB) error {
		return writer.SaveEvents(context.Background(), tx, newSettledEvent())
	})
	assert.ErrorContains(t, err, "not registered")
}

func TestRelay_Prune(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	entry := shared.NewOutboxEntry(newSettledEvent(), []byte(`{}`))
	entry.MarkSent()
	entry.ProcessedAt = &old
	require.NoError(t, repo.Save(ctx, entry))

	relay := NewRelay(repo, NewInMemoryEventBus(zap.NewNop()), NewFinanceEventSerializer(), DefaultRelayConfig(), zap.NewNop())
	assert.Equal(t, int64(1), relay.Prune(ctx))
	assert.Equal(t, int64(0), relay.Prune(ctx))
}

func TestRelay_StartStop(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultRelayConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PruneInterval = 0

	relay := NewRelay(NewGormOutboxRepository(db), NewInMemoryEventBus(zap.NewNop()),
		NewFinanceEventSerializer(), cfg, zap.NewNop())
	relay.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, relay.Stop(ctx))
}
