package models

import "time"

// Kafka event types emitted on the order lifecycle stream.
const (
	EventOrderCreated    = "order.created"
	EventStatusChanged   = "order.status_changed"
	EventPaymentCaptured = "payment.captured"
	EventRefundInitiated = "payment.refund_initiated"
)

// OrderEvent is the wire shape published to the order events topic.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status,omitempty"`
	Amount      float64   `json:"amount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
