package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/models"
)

// OutboxRepository stores and drains durable notification records.
type OutboxRepository interface {
	Enqueue(ctx context.Context, rec *models.EmailOutbox) error
	FetchPending(ctx context.Context, limit int) ([]models.EmailOutbox, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, final bool) error
}

type gormOutboxRepo struct {
	db *gorm.DB
}

func NewGormOutboxRepo(db *gorm.DB) OutboxRepository {
	return &gormOutboxRepo{db: db}
}

func (r *gormOutboxRepo) Enqueue(ctx context.Context, rec *models.EmailOutbox) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *gormOutboxRepo) FetchPending(ctx context.Context, limit int) ([]models.EmailOutbox, error) {
	var recs []models.EmailOutbox
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *gormOutboxRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  models.OutboxSent,
			"sent_at": at,
		}).Error
}

func (r *gormOutboxRepo) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, final bool) error {
	status := models.OutboxPending
	if final {
		status = models.OutboxFailed
	}
	return r.db.WithContext(ctx).
		Model(&models.EmailOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   attempts,
			"last_error": lastErr,
		}).Error
}
