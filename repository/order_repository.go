package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/models"
)

// ErrVersionConflict is returned when a versioned update lost a race with a
// concurrent writer.
var ErrVersionConflict = errors.New("order was modified concurrently")

// OrderRepository defines the data access surface for the order aggregate.
// All multi-field mutations go through UpdateVersioned; cancellation and
// return-request are single conditional statements so concurrent writers
// cannot both succeed.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, pgOrderID string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int64, updates map[string]interface{}) error
	AppendHistory(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	CancelIfEligible(ctx context.Context, id uuid.UUID, userID, actorID, reason string, allowed []string, at time.Time) (bool, error)
	RequestReturnIfDelivered(ctx context.Context, id uuid.UUID, userID, reason, comments string, images []string, at time.Time) (bool, error)
	ClaimEmailFlag(ctx context.Context, id uuid.UUID, flag string) (bool, error)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// Create persists the order, its items and its first history entry in a
// single transaction.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.position ASC") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("order_status_entries.id ASC") }).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByGatewayOrderID(ctx context.Context, pgOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("gateway_order_id = ?", pgOrderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByUserID retrieves a user's own orders, newest first, with pagination.
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Preload("StatusHistory").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateVersioned applies a set of column updates conditional on the version
// the caller read; the version is bumped in the same statement. A zero
// rows-affected result means a concurrent writer got there first.
func (r *GormOrderRepository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int64, updates map[string]interface{}) error {
	merged := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		merged[k] = v
	}
	merged["version"] = version + 1
	merged["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(merged)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AppendHistory inserts one audit-trail row. The trail is append-only.
func (r *GormOrderRepository) AppendHistory(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	entry := models.OrderStatusEntry{
		OrderID:   id,
		Status:    status,
		Timestamp: at,
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

// CancelIfEligible performs the atomic cancel transition: the update matches
// on id + owner + cancellable status in one statement, so two concurrent
// cancels (or a cancel racing a status advance) cannot both win. The history
// row is appended in the same transaction only when the update matched.
func (r *GormOrderRepository) CancelIfEligible(ctx context.Context, id uuid.UUID, userID, actorID, reason string, allowed []string, at time.Time) (bool, error) {
	matched := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND user_id = ? AND order_status IN ?", id, userID, allowed).
			Updates(map[string]interface{}{
				"order_status":  models.StatusCancelled,
				"cancelled_by":  actorID,
				"cancelled_at":  at,
				"cancel_reason": reason,
				"version":       gorm.Expr("version + 1"),
				"updated_at":    at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		matched = true
		return tx.Create(&models.OrderStatusEntry{
			OrderID:   id,
			Status:    models.StatusCancelled,
			Timestamp: at,
		}).Error
	})
	return matched, err
}

// RequestReturnIfDelivered atomically moves delivered → return_requested,
// recording the return metadata. Same compare-and-set shape as cancellation.
func (r *GormOrderRepository) RequestReturnIfDelivered(ctx context.Context, id uuid.UUID, userID, reason, comments string, images []string, at time.Time) (bool, error) {
	matched := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND user_id = ? AND order_status = ?", id, userID, models.StatusDelivered).
			Updates(map[string]interface{}{
				"order_status":        models.StatusReturnRequested,
				"return_reason":       reason,
				"return_comments":     comments,
				"return_images":       models.StringList(images),
				"return_requested_at": at,
				"version":             gorm.Expr("version + 1"),
				"updated_at":          at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		matched = true
		return tx.Create(&models.OrderStatusEntry{
			OrderID:   id,
			Status:    models.StatusReturnRequested,
			Timestamp: at,
		}).Error
	})
	return matched, err
}

// ClaimEmailFlag flips a notification flag false → true in one conditional
// statement. It reports whether this caller won the claim; at most one
// claim per flag ever succeeds, which is what keeps notifications
// single-shot across the status machine and payment paths.
func (r *GormOrderRepository) ClaimEmailFlag(ctx context.Context, id uuid.UUID, flag string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND "+flag+" = ?", id, false).
		Update(flag, true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
