package gateway

import "context"

// RefundResult is the gateway's answer to a refund initiation.
type RefundResult struct {
	RefundID string
	Status   string
}

// PaymentGateway is the outbound payment-processor surface: create a remote
// order intent before collecting payment, and initiate a full refund against
// a captured payment.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string) (string, error)
	Refund(ctx context.Context, paymentID string, amountPaise int64, notes map[string]interface{}) (*RefundResult, error)
	KeyID() string
}
