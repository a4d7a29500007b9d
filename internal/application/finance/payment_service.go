package finance

import (
	"context"
	"errors"
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultConflictAttempts is used when no attempt bound is configured
const DefaultConflictAttempts = 3

// PaymentRecorder receives payment application measurements
type PaymentRecorder interface {
	RecordApply(ctx context.Context, strategy finance.AllocationStrategyType, outcome string, d time.Duration)
	RecordConflictRetry(ctx context.Context, strategy finance.AllocationStrategyType)
}

type noopRecorder struct{}

func (noopRecorder) RecordApply(context.Context, finance.AllocationStrategyType, string, time.Duration) {
}
func (noopRecorder) RecordConflictRetry(context.Context, finance.AllocationStrategyType) {}

// PaymentService orchestrates balance lookup, planning and application of
// incoming payments. It owns the bounded conflict retry: each attempt
// re-reads the balance and recomputes the plan.
type PaymentService struct {
	balances    *BalanceService
	payments    finance.PaymentRepository
	applier     *PaymentApplier
	reporter    *ReconciliationReporter
	recorder    PaymentRecorder
	maxAttempts int
}

// NewPaymentService creates a new PaymentService. maxAttempts bounds the
// number of plan-and-apply rounds made when invoices change concurrently.
func NewPaymentService(
	balances *BalanceService,
	payments finance.PaymentRepository,
	applier *PaymentApplier,
	reporter *ReconciliationReporter,
	maxAttempts int,
) *PaymentService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultConflictAttempts
	}
	return &PaymentService{
		balances:    balances,
		payments:    payments,
		applier:     applier,
		reporter:    reporter,
		recorder:    noopRecorder{},
		maxAttempts: maxAttempts,
	}
}

// SetRecorder sets the metrics recorder
func (s *PaymentService) SetRecorder(recorder PaymentRecorder) {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	s.recorder = recorder
}

// ApplyPayment plans and commits a payment. A repeated idempotency key
// returns the stored result, flagged as replayed, without planning again.
func (s *PaymentService) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (report *PaymentReport, err error) {
	strategyType := parseStrategy(req.Strategy)
	started := time.Now()

	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply",
		telemetry.SpanAttrContactID, req.ContactID.String(),
		telemetry.SpanAttrAmount, req.Amount,
		telemetry.SpanAttrStrategy, strategyType.String(),
	)
	defer span.End()

	telemetry.WithProfilingLabels(ctx, telemetry.PaymentLabels("apply", strategyType.String()), func(ctx context.Context) {
		report, err = s.applyPayment(ctx, req, strategyType)
	})

	outcome := applyOutcome(report, err)
	s.recorder.RecordApply(ctx, strategyType, outcome, time.Since(started))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, report.PaymentID.String(),
		telemetry.SpanAttrReplayed, report.Replayed,
	)
	return report, nil
}

func (s *PaymentService) applyPayment(ctx context.Context, req ApplyPaymentRequest, strategyType finance.AllocationStrategyType) (*PaymentReport, error) {
	if req.Amount <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidAmount, "Payment amount must be positive")
	}
	key, err := finance.NormalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithContactID(ctx, req.ContactID.String())
	log := logger.L(ctx).With(zap.String("idempotency_key", key), zap.String("strategy", strategyType.String()))

	// Replays are answered before planning so that a MANUAL request whose
	// invoices are now settled still returns its original result.
	existing, err := s.payments.FindByIdempotencyKey(ctx, req.ContactID, key)
	switch {
	case err == nil:
		log.Info("Payment replayed", zap.String("payment_id", existing.ID.String()))
		return s.reporter.Present(ctx, finance.ResultFromPayment(existing, true))
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	strat, err := finance.GetStrategy(strategyType, toManualInstructions(req.Allocations))
	if err != nil {
		return nil, err
	}

	var result *finance.BulkPaymentResult
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err = s.attempt(ctx, req.ContactID, req.Amount, strat, key)
		if err == nil {
			break
		}
		if !shared.IsConflict(err) {
			log.Warn("Payment rejected", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		log.Warn("Payment conflicted with a concurrent update",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(err),
		)
		if attempt < s.maxAttempts {
			s.recorder.RecordConflictRetry(ctx, strategyType)
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info("Payment applied",
		zap.String("payment_id", result.PaymentID.String()),
		zap.Int("allocations", len(result.Allocations)),
		zap.Int64("remaining_credit", result.RemainingCredit),
		zap.Bool("replayed", result.Replayed),
	)
	return s.reporter.Present(ctx, result)
}

func (s *PaymentService) attempt(ctx context.Context, contactID uuid.UUID, amount int64, strat finance.AllocationStrategy, key string) (*finance.BulkPaymentResult, error) {
	invoices, err := s.balances.OutstandingInvoices(ctx, contactID)
	if err != nil {
		return nil, err
	}
	plan, err := finance.Plan(contactID, amount, invoices, strat)
	if err != nil {
		return nil, err
	}
	return s.applier.Apply(ctx, contactID, plan, key)
}

// PreviewPayment computes the plan a payment would follow, without committing
func (s *PaymentService) PreviewPayment(ctx context.Context, req PreviewPaymentRequest) (*PlanResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "preview",
		telemetry.SpanAttrContactID, req.ContactID.String(),
		telemetry.SpanAttrAmount, req.Amount,
	)
	defer span.End()

	strat, err := finance.GetStrategy(parseStrategy(req.Strategy), toManualInstructions(req.Allocations))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	invoices, err := s.balances.OutstandingInvoices(ctx, req.ContactID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	plan, err := finance.Plan(req.ContactID, req.Amount, invoices, strat)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	response := ToPlanResponse(plan, s.reporter.Currency())
	return &response, nil
}

// GetPayment retrieves a committed payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentReport, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reporter.Describe(finance.ResultFromPayment(payment, false)), nil
}

func parseStrategy(raw string) finance.AllocationStrategyType {
	if raw == "" {
		return finance.AllocationStrategyAuto
	}
	return finance.AllocationStrategyType(raw)
}

func applyOutcome(report *PaymentReport, err error) string {
	switch {
	case err == nil && report.Replayed:
		return telemetry.OutcomeReplayed
	case err == nil:
		return telemetry.OutcomeCommitted
	case shared.IsConflict(err):
		return telemetry.OutcomeConflict
	case errors.Is(err, shared.ErrStorage):
		return telemetry.OutcomeFailed
	default:
		return telemetry.OutcomeRejected
	}
}
