package finance

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AllocationStrategyType selects how a payment is spread over invoices
type AllocationStrategyType string

const (
	AllocationStrategyAuto   AllocationStrategyType = "AUTO"   // oldest due date first
	AllocationStrategyManual AllocationStrategyType = "MANUAL" // caller-supplied amounts
)

// IsValid checks if the strategy type is valid
func (t AllocationStrategyType) IsValid() bool {
	switch t {
	case AllocationStrategyAuto, AllocationStrategyManual:
		return true
	}
	return false
}

// String returns the string representation
func (t AllocationStrategyType) String() string {
	return string(t)
}

// ManualInstruction asks for a specific amount to be applied to one invoice
type ManualInstruction struct {
	InvoiceID uuid.UUID
	Amount    int64
}

// PlannedAllocation is one line of an allocation plan
type PlannedAllocation struct {
	InvoiceID         uuid.UUID
	InvoiceNumber     string
	AppliedAmount     int64
	OutstandingBefore int64
	ResultingStatus   InvoiceStatus
	ExpectedVersion   int
}

// AllocationStrategy computes allocation lines for an amount over a set of
// outstanding invoices. Implementations must not touch storage.
type AllocationStrategy interface {
	// Name identifies the strategy in logs and error messages
	Name() string
	StrategyType() AllocationStrategyType
	// Allocate returns the ordered allocation lines. The sum of applied
	// amounts never exceeds amount.
	Allocate(amount int64, invoices []OutstandingInvoice) ([]PlannedAllocation, error)
}

// SortForAllocation orders invoices by due date, then issue date, then id.
// This is a total order, so any two callers see the same sequence.
func SortForAllocation(invoices []OutstandingInvoice) []OutstandingInvoice {
	sorted := make([]OutstandingInvoice, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return invoiceLess(sorted[i], sorted[j])
	})
	return sorted
}

func invoiceLess(a, b OutstandingInvoice) bool {
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	if !a.IssuedAt.Equal(b.IssuedAt) {
		return a.IssuedAt.Before(b.IssuedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func planLine(inv OutstandingInvoice, applied int64) PlannedAllocation {
	return PlannedAllocation{
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.Number,
		AppliedAmount:     applied,
		OutstandingBefore: inv.Outstanding,
		ResultingStatus:   StatusFor(inv.TotalAmount, inv.AmountPaid+applied),
		ExpectedVersion:   inv.Version,
	}
}

// ---------------------------------------------------------------------------
// AUTO
// ---------------------------------------------------------------------------

// AutoAllocationStrategy pays the oldest invoices first
type AutoAllocationStrategy struct{}

// NewAutoAllocationStrategy creates a new AUTO allocation strategy
func NewAutoAllocationStrategy() *AutoAllocationStrategy {
	return &AutoAllocationStrategy{}
}

// Name returns "auto_allocation"
func (s *AutoAllocationStrategy) Name() string { return "auto_allocation" }

// StrategyType returns AUTO
func (s *AutoAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyAuto
}

// Allocate walks the sorted invoices applying min(remaining, outstanding)
// until the payment is exhausted. Whatever is left is the caller's credit.
func (s *AutoAllocationStrategy) Allocate(amount int64, invoices []OutstandingInvoice) ([]PlannedAllocation, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}

	remaining := amount
	lines := make([]PlannedAllocation, 0, len(invoices))
	for _, inv := range SortForAllocation(invoices) {
		if remaining == 0 {
			break
		}
		if inv.Outstanding <= 0 {
			continue
		}
		applied := min(remaining, inv.Outstanding)
		lines = append(lines, planLine(inv, applied))
		remaining -= applied
	}
	return lines, nil
}

// ---------------------------------------------------------------------------
// MANUAL
// ---------------------------------------------------------------------------

// ManualAllocationStrategy applies exactly the amounts the caller asked for
type ManualAllocationStrategy struct {
	instructions []ManualInstruction
}

// NewManualAllocationStrategy creates a MANUAL strategy over the given instructions
func NewManualAllocationStrategy(instructions []ManualInstruction) *ManualAllocationStrategy {
	return &ManualAllocationStrategy{instructions: instructions}
}

// Name returns "manual_allocation"
func (s *ManualAllocationStrategy) Name() string { return "manual_allocation" }

// StrategyType returns MANUAL
func (s *ManualAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyManual
}

// Allocate validates every instruction against the outstanding set and
// rejects the whole request on the first violation. Lines come back in the
// same total order AUTO uses so the audit trail is reproducible.
func (s *ManualAllocationStrategy) Allocate(amount int64, invoices []OutstandingInvoice) ([]PlannedAllocation, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if len(s.instructions) == 0 {
		return nil, invalidAllocation("manual allocation requires at least one invoice")
	}

	byID := make(map[uuid.UUID]OutstandingInvoice, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
	}

	requested := make(map[uuid.UUID]int64, len(s.instructions))
	var total int64
	for _, in := range s.instructions {
		inv, ok := byID[in.InvoiceID]
		if !ok || inv.Outstanding <= 0 {
			return nil, invalidAllocation(fmt.Sprintf("invoice %s is not outstanding for this contact", in.InvoiceID))
		}
		if _, dup := requested[in.InvoiceID]; dup {
			return nil, invalidAllocation(fmt.Sprintf("invoice %s is listed more than once", in.InvoiceID))
		}
		if in.Amount <= 0 {
			return nil, invalidAllocation(fmt.Sprintf("amount for invoice %s must be positive", inv.Number))
		}
		if in.Amount > inv.Outstanding {
			return nil, invalidAllocation(fmt.Sprintf("amount %d exceeds outstanding %d on invoice %s", in.Amount, inv.Outstanding, inv.Number))
		}
		if total > math.MaxInt64-in.Amount {
			return nil, invalidAllocation("requested amounts overflow")
		}
		total += in.Amount
		requested[in.InvoiceID] = in.Amount
	}
	if total > amount {
		return nil, invalidAllocation(fmt.Sprintf("requested total %d exceeds payment amount %d", total, amount))
	}

	targets := make([]OutstandingInvoice, 0, len(requested))
	for id := range requested {
		targets = append(targets, byID[id])
	}

	lines := make([]PlannedAllocation, 0, len(targets))
	for _, inv := range SortForAllocation(targets) {
		lines = append(lines, planLine(inv, requested[inv.ID]))
	}
	return lines, nil
}

func invalidAllocation(msg string) error {
	return shared.NewDomainError(shared.CodeInvalidAllocation, msg)
}

// GetStrategy returns the strategy for the given type
func GetStrategy(strategyType AllocationStrategyType, instructions []ManualInstruction) (AllocationStrategy, error) {
	switch strategyType {
	case AllocationStrategyAuto:
		if len(instructions) > 0 {
			return nil, invalidAllocation("explicit allocations are only accepted with the MANUAL strategy")
		}
		return NewAutoAllocationStrategy(), nil
	case AllocationStrategyManual:
		return NewManualAllocationStrategy(instructions), nil
	default:
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown allocation strategy %q", strategyType))
	}
}
