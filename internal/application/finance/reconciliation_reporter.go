package finance

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared/valueobject"
)

// ReconciliationReporter turns an applier result into the caller-facing
// report. The balance it attaches is recomputed after the commit.
type ReconciliationReporter struct {
	balances *BalanceService
	currency valueobject.Currency
}

// NewReconciliationReporter creates a new ReconciliationReporter
func NewReconciliationReporter(balances *BalanceService, currency valueobject.Currency) *ReconciliationReporter {
	return &ReconciliationReporter{balances: balances, currency: currency}
}

// Currency returns the display currency
func (r *ReconciliationReporter) Currency() valueobject.Currency {
	return r.currency
}

// Present reports result together with the contact's current balance
func (r *ReconciliationReporter) Present(ctx context.Context, result *finance.BulkPaymentResult) (*PaymentReport, error) {
	report := r.Describe(result)

	balance, err := r.balances.GetBalance(ctx, result.ContactID)
	if err != nil {
		return nil, err
	}
	view := ToBalanceResponse(balance, r.currency)
	report.Balance = &view
	return report, nil
}

// Describe reports result without touching storage
func (r *ReconciliationReporter) Describe(result *finance.BulkPaymentResult) *PaymentReport {
	lines := make([]AllocationResponse, len(result.Allocations))
	for i, a := range result.Allocations {
		lines[i] = AllocationResponse{
			InvoiceID:            a.InvoiceID,
			InvoiceNumber:        a.InvoiceNumber,
			AppliedAmount:        a.AppliedAmount,
			AppliedAmountDisplay: valueobject.FormatMinor(a.AppliedAmount, r.currency),
			ResultingStatus:      a.ResultingInvoiceStatus.String(),
		}
	}
	return &PaymentReport{
		PaymentID:              result.PaymentID,
		ContactID:              result.ContactID,
		Currency:               string(r.currency),
		Amount:                 result.Amount,
		AmountDisplay:          valueobject.FormatMinor(result.Amount, r.currency),
		Strategy:               result.Strategy.String(),
		Allocations:            lines,
		RemainingCredit:        result.RemainingCredit,
		RemainingCreditDisplay: valueobject.FormatMinor(result.RemainingCredit, r.currency),
		Replayed:               result.Replayed,
		CreatedAt:              result.CreatedAt,
	}
}
