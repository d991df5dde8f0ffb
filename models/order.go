package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order statuses. The status machine itself is weakly enforced: any staff
// role may write any status, side effects fire per target status.
const (
	StatusPending             = "pending"
	StatusPaymentPending      = "payment_pending"
	StatusPendingVerification = "pending_verification"
	StatusConfirmed           = "confirmed"
	StatusProcessing          = "processing"
	StatusOutForDelivery      = "out_for_delivery"
	StatusDelivered           = "delivered"
	StatusCancelled           = "cancelled"
	StatusReturnRequested     = "return_requested"
)

// Payment methods and payment statuses.
const (
	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"

	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Email idempotency flag columns. Each flag is flipped at most once by a
// conditional update; a flipped flag means the corresponding notification
// has already been enqueued.
const (
	EmailFlagPlaced      = "email_placed_sent"
	EmailFlagConfirmed   = "email_confirmed_sent"
	EmailFlagCancelled   = "email_cancelled_sent"
	EmailFlagDelivered   = "email_delivered_sent"
	EmailFlagPharmacy    = "pharmacy_notified"
	EmailFlagDeliveryReq = "delivery_notified"
)

// DeliveryAddress is the denormalized snapshot of the address the customer
// picked at checkout. Stored as jsonb so later edits to the address book
// never touch past orders.
type DeliveryAddress struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone,omitempty"`
}

func (a DeliveryAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *DeliveryAddress) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		return nil
	}
	return fmt.Errorf("unsupported type for DeliveryAddress: %T", value)
}

// StringList is a jsonb-backed string slice (return images).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("unsupported type for StringList: %T", value)
}

type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber string    `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID      string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PharmacyID  *string   `gorm:"type:varchar(64);index" json:"pharmacy_id,omitempty"`

	Items   []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Address DeliveryAddress `gorm:"type:jsonb" json:"address"`
	Total   float64         `gorm:"not null" json:"total"`

	PaymentMethod string `gorm:"type:varchar(10);not null" json:"payment_method"`
	PaymentStatus string `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	OrderStatus   string `gorm:"type:varchar(30);not null" json:"order_status"`

	RequiresPrescription bool    `gorm:"not null;default:false" json:"requires_prescription"`
	PrescriptionURL      *string `gorm:"type:varchar(1024)" json:"prescription_url,omitempty"`
	DeliveryOTP          *string `gorm:"type:varchar(8)" json:"delivery_otp,omitempty"`

	GatewayOrderID   *string `gorm:"type:varchar(64);index" json:"pg_order_id,omitempty"`
	GatewayPaymentID *string `gorm:"type:varchar(64)" json:"pg_payment_id,omitempty"`
	RefundStatus     *string `gorm:"type:varchar(20)" json:"refund_status,omitempty"`

	CancelledBy  *string    `gorm:"type:varchar(64)" json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `gorm:"type:varchar(500)" json:"cancel_reason,omitempty"`

	ReturnReason      *string    `gorm:"type:varchar(500)" json:"return_reason,omitempty"`
	ReturnComments    *string    `gorm:"type:varchar(1000)" json:"return_comments,omitempty"`
	ReturnImages      StringList `gorm:"type:jsonb" json:"return_images,omitempty"`
	ReturnRequestedAt *time.Time `json:"return_requested_at,omitempty"`

	// Notification dedupe ledger, not business state.
	EmailPlacedSent    bool `gorm:"not null;default:false" json:"-"`
	EmailConfirmedSent bool `gorm:"not null;default:false" json:"-"`
	EmailCancelledSent bool `gorm:"not null;default:false" json:"-"`
	EmailDeliveredSent bool `gorm:"not null;default:false" json:"-"`
	PharmacyNotified   bool `gorm:"not null;default:false" json:"-"`
	DeliveryNotified   bool `gorm:"not null;default:false" json:"-"`

	// Optimistic concurrency token: every multi-field update is conditional
	// on the version it read.
	Version int64 `gorm:"not null;default:1" json:"-"`

	StatusHistory []OrderStatusEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"status_history"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	MedicineID string    `gorm:"type:varchar(64);not null" json:"medicine_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Price      float64   `gorm:"not null" json:"price"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Position   int       `gorm:"not null" json:"-"`
}

// OrderStatusEntry is one row of the append-only status audit trail.
type OrderStatusEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Status    string    `gorm:"type:varchar(30);not null" json:"status"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// DeliveredAt returns the timestamp of the delivered history entry, if any.
func (o *Order) DeliveredAt() (time.Time, bool) {
	for i := len(o.StatusHistory) - 1; i >= 0; i-- {
		if o.StatusHistory[i].Status == StatusDelivered {
			return o.StatusHistory[i].Timestamp, true
		}
	}
	return time.Time{}, false
}
