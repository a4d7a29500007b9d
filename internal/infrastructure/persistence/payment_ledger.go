package persistence

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxEventSaver writes domain events inside an open transaction
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// GormPaymentLedger implements finance.PaymentLedger: one transaction holds
// the payment insert, the compare-and-swap of every touched invoice and the
// outbox rows for the resulting events.
type GormPaymentLedger struct {
	db     *gorm.DB
	outbox OutboxEventSaver
}

// NewGormPaymentLedger creates a ledger. outbox may be nil, in which case
// domain events are dropped.
func NewGormPaymentLedger(db *gorm.DB, outbox OutboxEventSaver) *GormPaymentLedger {
	return &GormPaymentLedger{db: db, outbox: outbox}
}

// Commit writes payment and invoices atomically
func (l *GormPaymentLedger) Commit(ctx context.Context, payment *finance.Payment, invoices []*finance.Invoice) error {
	sources := make([]shared.EventSource, 0, len(invoices)+1)
	sources = append(sources, payment)
	for _, invoice := range invoices {
		sources = append(sources, invoice)
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pm := models.PaymentModelFromDomain(payment)
		if err := tx.Omit(clause.Associations).Create(pm).Error; err != nil {
			return translateError(err, "insert payment")
		}
		if len(pm.Allocations) > 0 {
			if err := tx.Create(&pm.Allocations).Error; err != nil {
				return translateError(err, "insert payment allocations")
			}
		}

		for _, invoice := range invoices {
			if err := saveInvoiceWithLock(tx, invoice); err != nil {
				return err
			}
		}

		if l.outbox == nil {
			return nil
		}
		var events []shared.DomainEvent
		for _, src := range sources {
			events = append(events, src.PendingEvents()...)
		}
		if err := l.outbox.SaveEvents(ctx, tx, events...); err != nil {
			return translateError(err, "write outbox")
		}
		return nil
	})
	if err != nil {
		return translateError(err, "commit payment")
	}

	for _, src := range sources {
		src.CommitEvents()
	}
	return nil
}

var _ finance.PaymentLedger = (*GormPaymentLedger)(nil)
