package models

import (
	"time"

	"github.com/google/uuid"
)

// Email outbox statuses.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// EmailOutbox is a durable record of a notification to send. Rows are
// enqueued inside the business operation and drained by a background worker,
// so a send failure can never fail or block the primary transaction.
type EmailOutbox struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Kind      string     `gorm:"type:varchar(40);not null"`
	Recipient string     `gorm:"type:varchar(255);not null"`
	Subject   string     `gorm:"type:varchar(255);not null"`
	Body      string     `gorm:"type:text;not null"`
	Status    string     `gorm:"type:varchar(10);not null;default:'pending';index"`
	Attempts  int        `gorm:"not null;default:0"`
	LastError string     `gorm:"type:varchar(500)"`
	SentAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
