package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment row statuses. Payments are an append-only log: one row per
// initiation, verification attempt or webhook event, never updated.
const (
	PaymentRowInitialized = "INITIALIZED"
	PaymentRowSuccess     = "SUCCESS"
	PaymentRowFailed      = "FAILED"
)

// Refund row statuses.
const (
	RefundRowInitiated = "INITIATED"
	RefundRowCompleted = "COMPLETED"
	RefundRowFailed    = "FAILED"
)

type Payment struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	GatewayOrderID   string    `gorm:"type:varchar(64);index" json:"pg_order_id"`
	GatewayPaymentID string    `gorm:"type:varchar(64)" json:"pg_payment_id"`
	Amount           float64   `gorm:"not null" json:"amount"`
	Status           string    `gorm:"type:varchar(20);not null" json:"status"`
	Method           string    `gorm:"type:varchar(20)" json:"method"`
	ErrorDescription string    `gorm:"type:varchar(500)" json:"error_description,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Refund struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	GatewayRefundID string    `gorm:"type:varchar(64)" json:"pg_refund_id"`
	Amount          float64   `gorm:"not null" json:"amount"`
	Status          string    `gorm:"type:varchar(20);not null" json:"status"`
	Reason          string    `gorm:"type:varchar(500)" json:"reason"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
