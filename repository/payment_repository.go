package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/models"
)

// PaymentRepository persists the append-only payment and refund logs.
// Rows are inserted, never updated or deleted.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindPaymentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

type gormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepo{db: db}
}

func (r *gormPaymentRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormPaymentRepo) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *gormPaymentRepo) FindPaymentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
