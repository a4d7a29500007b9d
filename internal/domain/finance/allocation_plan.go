package finance

import (
	"fmt"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AllocationPlan is the planner's output. It is a value: computing it has
// no side effects and the same inputs always produce the same plan.
type AllocationPlan struct {
	ContactID       uuid.UUID
	Amount          int64
	Strategy        AllocationStrategyType
	Allocations     []PlannedAllocation
	RemainingCredit int64
}

// Allocated returns the sum of applied amounts
func (p *AllocationPlan) Allocated() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.AppliedAmount
	}
	return total
}

// ExpectedVersions returns the invoice versions the plan was computed against
func (p *AllocationPlan) ExpectedVersions() map[uuid.UUID]int {
	versions := make(map[uuid.UUID]int, len(p.Allocations))
	for _, a := range p.Allocations {
		versions[a.InvoiceID] = a.ExpectedVersion
	}
	return versions
}

// InvoiceIDs returns the ids of the invoices the plan touches, in plan order
func (p *AllocationPlan) InvoiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Allocations))
	for i, a := range p.Allocations {
		ids[i] = a.InvoiceID
	}
	return ids
}

// Plan computes how amount is spread over the contact's outstanding
// invoices using the given strategy.
func Plan(contactID uuid.UUID, amount int64, invoices []OutstandingInvoice, s AllocationStrategy) (*AllocationPlan, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if s == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "allocation strategy is required")
	}

	lines, err := s.Allocate(amount, invoices)
	if err != nil {
		return nil, err
	}

	plan := &AllocationPlan{
		ContactID:   contactID,
		Amount:      amount,
		Strategy:    s.StrategyType(),
		Allocations: lines,
	}
	allocated := plan.Allocated()
	if allocated > amount {
		// A strategy bug, never a client error.
		return nil, fmt.Errorf("strategy %s allocated %d of a %d payment", s.Name(), allocated, amount)
	}
	plan.RemainingCredit = amount - allocated
	return plan, nil
}
