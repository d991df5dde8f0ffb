package services_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/gateway"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/services"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

// ---- payment repo fake ----

type fakePaymentRepo struct {
	payments []models.Payment
	refunds  []models.Refund
}

func (r *fakePaymentRepo) CreatePayment(_ context.Context, payment *models.Payment) error {
	r.payments = append(r.payments, *payment)
	return nil
}

func (r *fakePaymentRepo) CreateRefund(_ context.Context, refund *models.Refund) error {
	r.refunds = append(r.refunds, *refund)
	return nil
}

func (r *fakePaymentRepo) FindPaymentsByOrderID(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---- gateway fake ----

type fakeGateway struct {
	createdOrders int
	refunds       int
	createErr     error
	refundErr     error
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountPaise int64, receipt string) (string, error) {
	if g.createErr != nil {
		return "", g.createErr
	}
	g.createdOrders++
	return fmt.Sprintf("order_rzp_%d", g.createdOrders), nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amountPaise int64, notes map[string]interface{}) (*gateway.RefundResult, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds++
	return &gateway.RefundResult{RefundID: fmt.Sprintf("rfnd_%d", g.refunds)}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

// ---- fixture ----

type paymentFixture struct {
	repo     *memOrderRepo
	payments *fakePaymentRepo
	gw       *fakeGateway
	notifier *spyNotifier
	events   *fakeEvents
	svc      *services.PaymentService
}

func newPaymentFixture() *paymentFixture {
	repo := newMemOrderRepo()
	payments := &fakePaymentRepo{}
	gw := &fakeGateway{}
	notifier := &spyNotifier{}
	events := &fakeEvents{}
	svc := services.NewPaymentService(repo, payments, gw, testKeySecret, testWebhookSecret, notifier, events, zap.NewNop())
	return &paymentFixture{repo: repo, payments: payments, gw: gw, notifier: notifier, events: events, svc: svc}
}

func webhookSign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreatePaymentOrder_Success(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusPaymentPending, models.PaymentMethodOnline)

	resp, svcErr := f.svc.CreatePaymentOrder(context.Background(), order.ID)
	assert.Nil(t, svcErr)
	assert.Equal(t, int64(16000), resp.Amount)
	assert.Equal(t, "order_rzp_1", resp.GatewayOrderID)
	assert.Equal(t, "rzp_test_key", resp.KeyID)

	updated, _ := f.repo.FindByID(context.Background(), order.ID)
	if assert.NotNil(t, updated.GatewayOrderID) {
		assert.Equal(t, "order_rzp_1", *updated.GatewayOrderID)
	}

	if assert.Len(t, f.payments.payments, 1) {
		assert.Equal(t, models.PaymentRowInitialized, f.payments.payments[0].Status)
		assert.Equal(t, 160.0, f.payments.payments[0].Amount)
	}
}

func TestCreatePaymentOrder_NotFound(t *testing.T) {
	f := newPaymentFixture()

	_, svcErr := f.svc.CreatePaymentOrder(context.Background(), uuid.New())
	assert.NotNil(t, svcErr)
	assert.Equal(t, 404, svcErr.StatusCode)
}

func TestVerifyPayment_TamperedSignatureNeverMutates(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusPaymentPending, models.PaymentMethodOnline)
	pgOrder := "order_rzp_1"
	f.repo.orders[order.ID].GatewayOrderID = &pgOrder

	_, svcErr := f.svc.VerifyPayment(context.Background(), &services.VerifyPaymentRequest{
		OrderID:          order.ID.String(),
		GatewayOrderID:   pgOrder,
		GatewayPaymentID: "pay_123",
		Signature:        "deadbeef",
	})

	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)

	// The order is untouched.
	unchanged, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, models.StatusPaymentPending, unchanged.OrderStatus)
	assert.Equal(t, models.PaymentStatusPending, unchanged.PaymentStatus)
	assert.Nil(t, unchanged.GatewayPaymentID)

	// A FAILED payment row with amount 0 records the attempt.
	if assert.Len(t, f.payments.payments, 1) {
		assert.Equal(t, models.PaymentRowFailed, f.payments.payments[0].Status)
		assert.Equal(t, 0.0, f.payments.payments[0].Amount)
		assert.Equal(t, "Invalid Signature", f.payments.payments[0].ErrorDescription)
	}
	assert.Equal(t, 0, f.notifier.confirmed)
}

func TestVerifyPayment_Success(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusPaymentPending, models.PaymentMethodOnline)
	pgOrder := "order_rzp_1"
	f.repo.orders[order.ID].GatewayOrderID = &pgOrder

	resp, svcErr := f.svc.VerifyPayment(context.Background(), &services.VerifyPaymentRequest{
		OrderID:          order.ID.String(),
		GatewayOrderID:   pgOrder,
		GatewayPaymentID: "pay_123",
		Signature:        gateway.SignPayment(pgOrder, "pay_123", testKeySecret),
	})

	assert.Nil(t, svcErr)
	assert.True(t, resp.Verified)
	assert.False(t, resp.AlreadyPaid)

	updated, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, models.StatusConfirmed, updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	if assert.NotNil(t, updated.GatewayPaymentID) {
		assert.Equal(t, "pay_123", *updated.GatewayPaymentID)
	}
	assert.Equal(t, models.StatusConfirmed, updated.StatusHistory[len(updated.StatusHistory)-1].Status)

	if assert.Len(t, f.payments.payments, 1) {
		assert.Equal(t, models.PaymentRowSuccess, f.payments.payments[0].Status)
		assert.Equal(t, 160.0, f.payments.payments[0].Amount)
	}
	assert.Equal(t, 1, f.notifier.confirmed)
	assert.Len(t, f.events.byType(models.EventPaymentCaptured), 1)
}

func TestVerifyPayment_AlreadyPaid(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusConfirmed, models.PaymentMethodOnline)
	pgOrder := "order_rzp_1"
	f.repo.orders[order.ID].GatewayOrderID = &pgOrder
	f.repo.orders[order.ID].PaymentStatus = models.PaymentStatusPaid

	resp, svcErr := f.svc.VerifyPayment(context.Background(), &services.VerifyPaymentRequest{
		OrderID:          order.ID.String(),
		GatewayOrderID:   pgOrder,
		GatewayPaymentID: "pay_123",
		Signature:        gateway.SignPayment(pgOrder, "pay_123", testKeySecret),
	})

	assert.Nil(t, svcErr)
	assert.True(t, resp.Verified)
	assert.True(t, resp.AlreadyPaid)
	assert.Empty(t, f.payments.payments)
	assert.Equal(t, 0, f.notifier.confirmed)
}

func TestRefundPayment_Success(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusConfirmed, models.PaymentMethodOnline)
	pgPayment := "pay_123"
	f.repo.orders[order.ID].GatewayPaymentID = &pgPayment
	f.repo.orders[order.ID].PaymentStatus = models.PaymentStatusPaid

	refund, svcErr := f.svc.RefundPayment(context.Background(), order.ID, "order cancelled")
	assert.Nil(t, svcErr)
	assert.Equal(t, "rfnd_1", refund.GatewayRefundID)
	assert.Equal(t, models.RefundRowInitiated, refund.Status)
	assert.Equal(t, 160.0, refund.Amount)

	updated, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, models.PaymentStatusRefunded, updated.PaymentStatus)
	if assert.NotNil(t, updated.RefundStatus) {
		assert.Equal(t, "initiated", *updated.RefundStatus)
	}
	assert.Len(t, f.events.byType(models.EventRefundInitiated), 1)
}

func TestRefundPayment_NoCapturedPayment(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusConfirmed, models.PaymentMethodOnline)

	_, svcErr := f.svc.RefundPayment(context.Background(), order.ID, "nope")
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
	assert.Equal(t, 0, f.gw.refunds)
}

func TestRefundPayment_GatewayError(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusConfirmed, models.PaymentMethodOnline)
	pgPayment := "pay_123"
	f.repo.orders[order.ID].GatewayPaymentID = &pgPayment
	f.gw.refundErr = errors.New("gateway down")

	_, svcErr := f.svc.RefundPayment(context.Background(), order.ID, "cancel")
	assert.NotNil(t, svcErr)
	assert.Equal(t, 500, svcErr.StatusCode)

	// Nothing applied to the order on a failed remote refund.
	updated, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Nil(t, updated.RefundStatus)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newPaymentFixture()

	body := []byte(`{"event":"payment.failed"}`)
	svcErr := f.svc.HandleWebhook(context.Background(), body, "bogus")
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
}

func TestHandleWebhook_PaymentFailedLogged(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusPaymentPending, models.PaymentMethodOnline)
	pgOrder := "order_rzp_9"
	f.repo.orders[order.ID].GatewayOrderID = &pgOrder

	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_f1","order_id":"order_rzp_9","method":"upi","error_description":"insufficient funds"}}}}`)
	svcErr := f.svc.HandleWebhook(context.Background(), body, webhookSign(body))
	assert.Nil(t, svcErr)

	if assert.Len(t, f.payments.payments, 1) {
		assert.Equal(t, models.PaymentRowFailed, f.payments.payments[0].Status)
		assert.Equal(t, "insufficient funds", f.payments.payments[0].ErrorDescription)
		assert.Equal(t, order.ID, f.payments.payments[0].OrderID)
	}

	// Order itself stays pending.
	unchanged, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, models.StatusPaymentPending, unchanged.OrderStatus)
}

func TestHandleWebhook_CapturedReconciles(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.repo, models.StatusPaymentPending, models.PaymentMethodOnline)
	pgOrder := "order_rzp_9"
	f.repo.orders[order.ID].GatewayOrderID = &pgOrder

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_c1","order_id":"order_rzp_9","method":"card"}}}}`)
	svcErr := f.svc.HandleWebhook(context.Background(), body, webhookSign(body))
	assert.Nil(t, svcErr)

	updated, _ := f.repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, models.StatusConfirmed, updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	// Replay of the same webhook is a no-op.
	svcErr = f.svc.HandleWebhook(context.Background(), body, webhookSign(body))
	assert.Nil(t, svcErr)
	assert.Equal(t, 1, f.notifier.confirmed)
}

func TestHandleWebhook_UnknownOrderStill200(t *testing.T) {
	f := newPaymentFixture()

	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_x","order_id":"order_missing"}}}}`)
	svcErr := f.svc.HandleWebhook(context.Background(), body, webhookSign(body))
	assert.Nil(t, svcErr)
	assert.Empty(t, f.payments.payments)
}
