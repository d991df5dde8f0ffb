package gateway

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayGateway implements PaymentGateway with the Razorpay SDK.
type RazorpayGateway struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
		keyID:  keyID,
	}
}

func (g *RazorpayGateway) KeyID() string {
	return g.keyID
}

// CreateOrder creates the remote payment intent and returns its id.
// Amount is in the smallest currency unit.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountPaise int64, receipt string) (string, error) {
	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": "INR",
		"receipt":  receipt,
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("gateway order create failed: %w", err)
	}
	id, ok := body["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("gateway order create returned no id")
	}
	return id, nil
}

// Refund initiates a refund for the given captured payment.
func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountPaise int64, notes map[string]interface{}) (*RefundResult, error) {
	data := map[string]interface{}{}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	body, err := g.client.Payment.Refund(paymentID, int(amountPaise), data, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	result := &RefundResult{}
	if id, ok := body["id"].(string); ok {
		result.RefundID = id
	}
	if status, ok := body["status"].(string); ok {
		result.Status = status
	}
	return result, nil
}
