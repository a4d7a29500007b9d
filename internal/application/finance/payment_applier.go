package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentApplier commits an allocation plan. It never retries: a version
// mismatch on any planned invoice fails the whole application with
// shared.ErrConflict and nothing is written.
type PaymentApplier struct {
	invoices finance.InvoiceRepository
	payments finance.PaymentRepository
	ledger   finance.PaymentLedger
}

// NewPaymentApplier creates a new PaymentApplier
func NewPaymentApplier(
	invoices finance.InvoiceRepository,
	payments finance.PaymentRepository,
	ledger finance.PaymentLedger,
) *PaymentApplier {
	return &PaymentApplier{invoices: invoices, payments: payments, ledger: ledger}
}

// Apply commits plan for contactID under idempotencyKey. A key already used
// by the contact returns the stored result with Replayed set.
func (a *PaymentApplier) Apply(ctx context.Context, contactID uuid.UUID, plan *finance.AllocationPlan, idempotencyKey string) (*finance.BulkPaymentResult, error) {
	key, err := finance.NormalizeIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Allocation plan is required")
	}
	if plan.ContactID != contactID {
		return nil, shared.NewDomainError(shared.CodeInvalidAllocation, "Plan was computed for another contact")
	}

	if replay, err := a.replay(ctx, contactID, key); replay != nil || err != nil {
		return replay, err
	}

	touched, err := a.applyPlan(ctx, contactID, plan)
	if err != nil {
		return nil, err
	}

	payment, err := finance.NewPayment(key, plan)
	if err != nil {
		return nil, err
	}

	if err := a.ledger.Commit(ctx, payment, touched); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// lost the insert race to a concurrent request with the same key
			logger.L(ctx).Info("Concurrent duplicate payment resolved as replay",
				zap.String("contact_id", contactID.String()),
				zap.String("idempotency_key", key),
			)
			if replay, rerr := a.replay(ctx, contactID, key); replay != nil || rerr != nil {
				return replay, rerr
			}
		}
		return nil, err
	}

	telemetry.AddEvent(trace.SpanFromContext(ctx), "payment_committed",
		telemetry.SpanAttrPaymentID, payment.ID.String(),
		telemetry.SpanAttrAllocations, len(payment.Allocations),
	)
	return finance.ResultFromPayment(payment, false), nil
}

func (a *PaymentApplier) replay(ctx context.Context, contactID uuid.UUID, key string) (*finance.BulkPaymentResult, error) {
	existing, err := a.payments.FindByIdempotencyKey(ctx, contactID, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return finance.ResultFromPayment(existing, true), nil
}

// applyPlan reloads the planned invoices, checks every one still carries the
// version the plan saw, and applies the allocation lines in memory.
func (a *PaymentApplier) applyPlan(ctx context.Context, contactID uuid.UUID, plan *finance.AllocationPlan) ([]*finance.Invoice, error) {
	if len(plan.Allocations) == 0 {
		return nil, nil
	}

	loaded, err := a.invoices.FindByIDs(ctx, plan.InvoiceIDs())
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*finance.Invoice, len(loaded))
	for _, inv := range loaded {
		byID[inv.ID] = inv
	}

	expected := plan.ExpectedVersions()
	for _, id := range plan.InvoiceIDs() {
		inv, ok := byID[id]
		if !ok {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Invoice "+id.String()+" not found")
		}
		if inv.ContactID != contactID {
			return nil, shared.NewDomainError(shared.CodeInvalidAllocation,
				fmt.Sprintf("Invoice %s does not belong to the paying contact", inv.Number))
		}
		if inv.Version != expected[id] {
			return nil, shared.NewDomainError(shared.CodeConflict,
				fmt.Sprintf("Invoice %s changed since the plan was computed (version %d, expected %d)",
					inv.Number, inv.Version, expected[id]))
		}
	}

	touched := make([]*finance.Invoice, 0, len(plan.Allocations))
	for _, line := range plan.Allocations {
		inv := byID[line.InvoiceID]
		if err := inv.ApplyPayment(ctx, line.AppliedAmount); err != nil {
			return nil, err
		}
		touched = append(touched, inv)
	}
	return touched, nil
}
