package finance

import (
	"strings"
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxIdempotencyKeyLength bounds caller-supplied idempotency keys
const MaxIdempotencyKeyLength = 128

// Allocation is one committed line of a payment
type Allocation struct {
	InvoiceID              uuid.UUID
	InvoiceNumber          string
	AppliedAmount          int64
	ResultingInvoiceStatus InvoiceStatus
}

// Payment is an incoming customer payment and the way it was lettered.
// It is created once per successful application and never mutated.
type Payment struct {
	shared.Aggregate
	ContactID       uuid.UUID
	Amount          int64
	IdempotencyKey  string
	Strategy        AllocationStrategyType
	Allocations     []Allocation
	RemainingCredit int64
}

// NormalizeIdempotencyKey trims and validates a caller-supplied key
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Idempotency key is required")
	}
	if len(key) > MaxIdempotencyKeyLength {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Idempotency key is too long")
	}
	return key, nil
}

// NewPayment builds the payment record for a plan
func NewPayment(idempotencyKey string, plan *AllocationPlan) (*Payment, error) {
	key, err := NormalizeIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.Amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if plan.Allocated()+plan.RemainingCredit != plan.Amount {
		return nil, shared.NewDomainError(shared.CodeInvalidAllocation, "Plan does not conserve the payment amount")
	}

	allocations := make([]Allocation, len(plan.Allocations))
	for i, line := range plan.Allocations {
		allocations[i] = Allocation{
			InvoiceID:              line.InvoiceID,
			InvoiceNumber:          line.InvoiceNumber,
			AppliedAmount:          line.AppliedAmount,
			ResultingInvoiceStatus: line.ResultingStatus,
		}
	}

	p := &Payment{
		Aggregate:       shared.NewAggregate(),
		ContactID:       plan.ContactID,
		Amount:          plan.Amount,
		IdempotencyKey:  key,
		Strategy:        plan.Strategy,
		Allocations:     allocations,
		RemainingCredit: plan.RemainingCredit,
	}
	p.Raise(NewPaymentAppliedEvent(p))
	return p, nil
}

// AllocatedAmount returns the part of the payment applied to invoices
func (p *Payment) AllocatedAmount() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.AppliedAmount
	}
	return total
}

// BulkPaymentResult is what the applier hands back for a payment. A replay
// of the same idempotency key yields the same result with Replayed set.
type BulkPaymentResult struct {
	PaymentID       uuid.UUID
	ContactID       uuid.UUID
	Amount          int64
	Strategy        AllocationStrategyType
	Allocations     []Allocation
	RemainingCredit int64
	CreatedAt       time.Time
	Replayed        bool
}

// ResultFromPayment derives the result from a stored payment
func ResultFromPayment(p *Payment, replayed bool) *BulkPaymentResult {
	allocations := make([]Allocation, len(p.Allocations))
	copy(allocations, p.Allocations)
	return &BulkPaymentResult{
		PaymentID:       p.ID,
		ContactID:       p.ContactID,
		Amount:          p.Amount,
		Strategy:        p.Strategy,
		Allocations:     allocations,
		RemainingCredit: p.RemainingCredit,
		CreatedAt:       p.CreatedAt,
		Replayed:        replayed,
	}
}
