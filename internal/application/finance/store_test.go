package finance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory implementation of the finance repositories
// and ledger with the same version and idempotency rules as the database.
type memoryStore struct {
	mu       sync.Mutex
	contacts map[uuid.UUID]bool
	invoices map[uuid.UUID]finance.Invoice
	payments map[uuid.UUID]*finance.Payment
	byKey    map[string]uuid.UUID

	// beforeCommit runs ahead of every Commit, outside the lock
	beforeCommit func(attempt int)
	commits      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		contacts: make(map[uuid.UUID]bool),
		invoices: make(map[uuid.UUID]finance.Invoice),
		payments: make(map[uuid.UUID]*finance.Payment),
		byKey:    make(map[string]uuid.UUID),
	}
}

func paymentKey(contactID uuid.UUID, key string) string {
	return contactID.String() + "|" + key
}

func cloneInvoice(inv finance.Invoice) *finance.Invoice {
	inv.CommitEvents()
	return &inv
}

func (s *memoryStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[id], nil
}

func (s *memoryStore) Ensure(_ context.Context, contact *finance.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.ID] = true
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id uuid.UUID) (*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *memoryStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*finance.Invoice, 0, len(ids))
	for _, id := range ids {
		if inv, ok := s.invoices[id]; ok {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

func (s *memoryStore) FindOutstandingByContact(_ context.Context, contactID uuid.UUID) ([]*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*finance.Invoice
	for _, inv := range s.invoices {
		if inv.ContactID == contactID && inv.Status.IsOutstanding() {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

func (s *memoryStore) Create(_ context.Context, invoice *finance.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invoices {
		if existing.Number == invoice.Number {
			return shared.NewDomainError(shared.CodeAlreadyExists, "invoice number already exists")
		}
	}
	s.invoices[invoice.ID] = *cloneInvoice(*invoice)
	return nil
}

func (s *memoryStore) SaveWithLock(_ context.Context, invoice *finance.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(invoice)
}

func (s *memoryStore) saveLocked(invoice *finance.Invoice) error {
	stored, ok := s.invoices[invoice.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != invoice.Version-1 {
		return shared.ErrConflict
	}
	s.invoices[invoice.ID] = *cloneInvoice(*invoice)
	return nil
}

func (s *memoryStore) findPayment(id uuid.UUID) (*finance.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (s *memoryStore) FindByIdempotencyKey(_ context.Context, contactID uuid.UUID, key string) (*finance.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[paymentKey(contactID, key)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.payments[id], nil
}

func (s *memoryStore) Commit(_ context.Context, payment *finance.Payment, invoices []*finance.Invoice) error {
	s.mu.Lock()
	s.commits++
	attempt := s.commits
	hook := s.beforeCommit
	s.mu.Unlock()
	if hook != nil {
		hook(attempt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := paymentKey(payment.ContactID, payment.IdempotencyKey)
	if _, dup := s.byKey[k]; dup {
		return shared.NewDomainError(shared.CodeAlreadyExists, "payment already recorded")
	}
	for _, inv := range invoices {
		stored, ok := s.invoices[inv.ID]
		if !ok || stored.Version != inv.Version-1 {
			return shared.ErrConflict
		}
	}
	for _, inv := range invoices {
		s.invoices[inv.ID] = *cloneInvoice(*inv)
	}
	stored := *payment
	stored.CommitEvents()
	s.payments[payment.ID] = &stored
	s.byKey[k] = payment.ID
	return nil
}

// bump pays amount on the stored invoice as a concurrent writer would
func (s *memoryStore) bump(t *testing.T, id uuid.UUID, amount int64) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := cloneInvoice(s.invoices[id])
	require.NoError(t, inv.ApplyPayment(context.Background(), amount))
	s.invoices[id] = *inv
}

func (s *memoryStore) invoice(id uuid.UUID) finance.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *memoryStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// paymentsView exposes the payment half of the store
type paymentsView struct{ s *memoryStore }

func (v paymentsView) FindByID(_ context.Context, id uuid.UUID) (*finance.Payment, error) {
	return v.s.findPayment(id)
}

func (v paymentsView) FindByIdempotencyKey(ctx context.Context, contactID uuid.UUID, key string) (*finance.Payment, error) {
	return v.s.FindByIdempotencyKey(ctx, contactID, key)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seed registers a contact with invoices A (5000, due 2024-01-10) and
// B (3000, due 2024-02-15)
func seed(t *testing.T, s *memoryStore) (contactID uuid.UUID, a, b *finance.Invoice) {
	t.Helper()
	ctx := context.Background()
	contactID = uuid.New()
	contact, err := finance.NewContact(contactID, "Acme")
	require.NoError(t, err)
	require.NoError(t, s.Ensure(ctx, contact))

	a, err = finance.NewInvoice(contactID, "INV-A", 5000, day(2023, 12, 10), day(2024, 1, 10))
	require.NoError(t, err)
	b, err = finance.NewInvoice(contactID, "INV-B", 3000, day(2024, 1, 15), day(2024, 2, 15))
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	return contactID, a, b
}

var (
	_ finance.ContactRepository = (*memoryStore)(nil)
	_ finance.InvoiceRepository = (*memoryStore)(nil)
	_ finance.PaymentRepository = paymentsView{}
	_ finance.PaymentLedger     = (*memoryStore)(nil)
)
