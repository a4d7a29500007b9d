package persistence

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentRepository implements finance.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment and its allocation lines
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.Payment, error) {
	var m models.PaymentModel
	err := r.db.WithContext(ctx).
		Preload("Allocations").
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "find payment")
	}
	return m.ToDomain(), nil
}

// FindByIdempotencyKey finds the payment recorded for (contactID, key)
func (r *GormPaymentRepository) FindByIdempotencyKey(ctx context.Context, contactID uuid.UUID, key string) (*finance.Payment, error) {
	var m models.PaymentModel
	err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("contact_id = ? AND idempotency_key = ?", contactID, key).
		First(&m).Error
	if err != nil {
		return nil, translateError(err, "find payment by idempotency key")
	}
	return m.ToDomain(), nil
}

var _ finance.PaymentRepository = (*GormPaymentRepository)(nil)
