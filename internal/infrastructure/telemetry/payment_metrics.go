package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Apply outcomes recorded on lettrage_payment_apply_duration_seconds
const (
	OutcomeCommitted = "committed"
	OutcomeReplayed  = "replayed"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// PaymentMetrics holds the payment allocation instruments. Counters fed
// from ledger events count each committed payment once, however many
// times the request was retried or replayed.
type PaymentMetrics struct {
	paymentsApplied *Counter
	amountAllocated *Counter
	remainingCredit *Counter
	invoicesSettled *Counter
	conflictRetries *Counter
	applyDuration   *Histogram
	currency        string
	logger          *zap.Logger
}

// NewPaymentMetrics registers the payment instruments on meter
func NewPaymentMetrics(meter metric.Meter, currency string, logger *zap.Logger) (*PaymentMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewPaymentMetrics: meter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PaymentMetrics{currency: currency, logger: logger}

	var err error
	if m.paymentsApplied, err = NewCounter(meter, "lettrage_payments_applied_total", "Payments committed", "{payment}"); err != nil {
		return nil, err
	}
	if m.amountAllocated, err = NewCounter(meter, "lettrage_amount_allocated_total", "Minor units applied to invoices", "{minor_unit}"); err != nil {
		return nil, err
	}
	if m.remainingCredit, err = NewCounter(meter, "lettrage_remaining_credit_total", "Minor units left unallocated", "{minor_unit}"); err != nil {
		return nil, err
	}
	if m.invoicesSettled, err = NewCounter(meter, "lettrage_invoices_settled_total", "Invoices that became fully paid", "{invoice}"); err != nil {
		return nil, err
	}
	if m.conflictRetries, err = NewCounter(meter, "lettrage_payment_conflict_retries_total", "Payment applications retried after a version conflict", "{retry}"); err != nil {
		return nil, err
	}
	if m.applyDuration, err = NewHistogram(meter, "lettrage_payment_apply_duration_seconds", "Payment application latency", "s", ApplyDurationBuckets...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordApply records the latency and outcome of one ApplyPayment call
func (m *PaymentMetrics) RecordApply(ctx context.Context, strategy finance.AllocationStrategyType, outcome string, d time.Duration) {
	m.applyDuration.RecordDuration(ctx, d, AttrStrategy.String(string(strategy)), AttrOutcome.String(outcome))
}

// RecordConflictRetry counts one retry after an optimistic conflict
func (m *PaymentMetrics) RecordConflictRetry(ctx context.Context, strategy finance.AllocationStrategyType) {
	m.conflictRetries.Inc(ctx, AttrStrategy.String(string(strategy)))
}

// EventTypes implements shared.EventHandler
func (m *PaymentMetrics) EventTypes() []string {
	return []string{finance.EventTypePaymentApplied, finance.EventTypeInvoiceSettled}
}

// Handle implements shared.EventHandler for events relayed from the outbox
func (m *PaymentMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	currency := AttrCurrency.String(m.currency)
	switch e := event.(type) {
	case *finance.PaymentAppliedEvent:
		strategy := AttrStrategy.String(string(e.Strategy))
		m.paymentsApplied.Inc(ctx, strategy)
		m.amountAllocated.Add(ctx, e.Allocated, strategy, currency)
		if e.RemainingCredit > 0 {
			m.remainingCredit.Add(ctx, e.RemainingCredit, strategy, currency)
		}
	case *finance.InvoiceSettledEvent:
		m.invoicesSettled.Inc(ctx)
	default:
		m.logger.Debug("payment metrics ignoring event", zap.String("event_type", event.EventType()))
	}
	return nil
}

var _ shared.EventHandler = (*PaymentMetrics)(nil)
