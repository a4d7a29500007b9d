package event

import (
	"context"
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository stores outbox rows in outbox_events
type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.NewOutboxRow(e))
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// ClaimDue locks up to limit deliverable rows, fresh ones first, and flips
// them to PROCESSING in the same transaction. Rows locked by another relay
// are skipped rather than waited on, so two relays never share a row.
func (r *GormOutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var claimed []*shared.OutboxEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", shared.OutboxStatusPending).
			Or("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, now).
			Order("created_at").
			Limit(limit).
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}

		ids := make([]uuid.UUID, len(rows))
		claimed = make([]*shared.OutboxEntry, len(rows))
		for i := range rows {
			entry := rows[i].Entry()
			if err := entry.MarkProcessing(); err != nil {
				return err
			}
			entry.UpdatedAt = now
			ids[i], claimed[i] = entry.ID, entry
		}
		return tx.Model(&models.OutboxRow{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Settle writes back the outcome of a delivery attempt
func (r *GormOutboxRepository) Settle(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.OutboxRow{}).
		Where("id = ?", entry.ID).
		Updates(models.DeliveryColumns(entry)).Error
}

func (r *GormOutboxRepository) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxRow{})
	return res.RowsAffected, res.Error
}

func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var groups []struct {
		Status shared.OutboxStatus
		N      int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxRow{}).
		Select("status, count(*) AS n").
		Group("status").
		Scan(&groups).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(groups))
	for _, g := range groups {
		counts[g.Status] = g.N
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
