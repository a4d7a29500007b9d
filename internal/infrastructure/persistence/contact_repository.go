package persistence

import (
	"context"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormContactRepository implements finance.ContactRepository using GORM
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// Exists reports whether the contact is known
func (r *GormContactRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContactModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "check contact")
	}
	return count > 0, nil
}

// Ensure inserts the contact unless a row with the same id exists
func (r *GormContactRepository) Ensure(ctx context.Context, contact *finance.Contact) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(models.ContactModelFromDomain(contact)).Error
	return translateError(err, "ensure contact")
}

var _ finance.ContactRepository = (*GormContactRepository)(nil)
