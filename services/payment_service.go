package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/gateway"
	"github.com/shubhambandhovar/medszop-backend/kafka"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
)

type CreatePaymentResponse struct {
	Amount         int64  `json:"amount"`
	GatewayOrderID string `json:"pg_order_id"`
	KeyID          string `json:"key_id"`
}

type VerifyPaymentRequest struct {
	OrderID          string `json:"order_id" binding:"required"`
	GatewayOrderID   string `json:"pg_order_id" binding:"required"`
	GatewayPaymentID string `json:"pg_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

type VerifyPaymentResponse struct {
	Verified    bool `json:"verified"`
	AlreadyPaid bool `json:"already_paid,omitempty"`
}

// webhookEvent is the gateway's webhook envelope; only the payment entity
// fields the reconciler reads are mapped.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Method           string `json:"method"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentService reconciles gateway payments onto orders: intent creation,
// client signature verification, refunds, and asynchronous webhooks.
type PaymentService struct {
	orders        repository.OrderRepository
	payments      repository.PaymentRepository
	gw            gateway.PaymentGateway
	keySecret     string
	webhookSecret string
	notifier      Notifier
	events        kafka.EventPublisher
	logger        *zap.Logger
}

func NewPaymentService(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	gw gateway.PaymentGateway,
	keySecret, webhookSecret string,
	notifier Notifier,
	events kafka.EventPublisher,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		orders:        orders,
		payments:      payments,
		gw:            gw,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		notifier:      notifier,
		events:        events,
		logger:        logger,
	}
}

// CreatePaymentOrder creates the remote payment intent for an order and
// records it on both the order and the payment log.
func (s *PaymentService) CreatePaymentOrder(ctx context.Context, orderID uuid.UUID) (*CreatePaymentResponse, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("order fetch failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to create payment order")
	}

	amountPaise := int64(math.Round(order.Total * 100))
	pgOrderID, err := s.gw.CreateOrder(ctx, amountPaise, order.OrderNumber)
	if err != nil {
		s.logger.Error("gateway order create failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Payment gateway error")
	}

	if err := s.orders.UpdateVersioned(ctx, order.ID, order.Version, map[string]interface{}{
		"gateway_order_id": pgOrderID,
	}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, newError(http.StatusConflict, "Order was modified concurrently")
		}
		s.logger.Error("order update failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to create payment order")
	}

	if err := s.payments.CreatePayment(ctx, &models.Payment{
		OrderID:        order.ID,
		GatewayOrderID: pgOrderID,
		Amount:         order.Total,
		Status:         models.PaymentRowInitialized,
	}); err != nil {
		s.logger.Error("payment row insert failed", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	return &CreatePaymentResponse{
		Amount:         amountPaise,
		GatewayOrderID: pgOrderID,
		KeyID:          s.gw.KeyID(),
	}, nil
}

// VerifyPayment checks the client-supplied signature against the
// server-computed HMAC and applies the verified outcome to the order.
// A tampered signature never mutates the order.
func (s *PaymentService) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*VerifyPaymentResponse, *ServiceError) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, newError(http.StatusBadRequest, "Invalid order ID format")
	}

	if !gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature, s.keySecret) {
		if err := s.payments.CreatePayment(ctx, &models.Payment{
			OrderID:          orderID,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Amount:           0,
			Status:           models.PaymentRowFailed,
			ErrorDescription: "Invalid Signature",
		}); err != nil {
			s.logger.Error("failed payment row insert failed", zap.String("order_id", req.OrderID), zap.Error(err))
		}
		return nil, newError(http.StatusBadRequest, "Payment verification failed")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("order fetch failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to verify payment")
	}

	// Repeat verification of an already captured payment is harmless.
	if order.PaymentStatus == models.PaymentStatusPaid {
		return &VerifyPaymentResponse{Verified: true, AlreadyPaid: true}, nil
	}

	if svcErr := s.markPaid(ctx, order, req.GatewayPaymentID, "online"); svcErr != nil {
		return nil, svcErr
	}

	return &VerifyPaymentResponse{Verified: true}, nil
}

// markPaid applies the captured-payment outcome: order flips to
// paid/confirmed with a history entry, a SUCCESS payment row is logged,
// and the confirmation notifications fire behind their email flags.
func (s *PaymentService) markPaid(ctx context.Context, order *models.Order, pgPaymentID, method string) *ServiceError {
	now := time.Now()
	if err := s.orders.UpdateVersioned(ctx, order.ID, order.Version, map[string]interface{}{
		"payment_status":     models.PaymentStatusPaid,
		"order_status":       models.StatusConfirmed,
		"gateway_payment_id": pgPaymentID,
	}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return newError(http.StatusConflict, "Order was modified concurrently")
		}
		s.logger.Error("payment apply failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return newError(http.StatusInternalServerError, "Failed to verify payment")
	}
	if err := s.orders.AppendHistory(ctx, order.ID, models.StatusConfirmed, now); err != nil {
		s.logger.Error("history append failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	var pgOrderID string
	if order.GatewayOrderID != nil {
		pgOrderID = *order.GatewayOrderID
	}
	if err := s.payments.CreatePayment(ctx, &models.Payment{
		OrderID:          order.ID,
		GatewayOrderID:   pgOrderID,
		GatewayPaymentID: pgPaymentID,
		Amount:           order.Total,
		Status:           models.PaymentRowSuccess,
		Method:           method,
	}); err != nil {
		s.logger.Error("payment row insert failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	order.OrderStatus = models.StatusConfirmed
	order.PaymentStatus = models.PaymentStatusPaid
	s.notifier.OrderConfirmed(ctx, order)
	if order.PharmacyID != nil {
		s.notifier.PharmacyNew(ctx, order)
	}

	s.publishEvent(models.OrderEvent{
		Type:        models.EventPaymentCaptured,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      models.StatusConfirmed,
		Amount:      order.Total,
		Timestamp:   now,
	})
	return nil
}

// RefundPayment initiates a full refund against the captured payment.
func (s *PaymentService) RefundPayment(ctx context.Context, orderID uuid.UUID, reason string) (*models.Refund, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("order fetch failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to refund payment")
	}
	if order.GatewayPaymentID == nil || *order.GatewayPaymentID == "" {
		return nil, newError(http.StatusBadRequest, "No captured payment found for this order")
	}

	amountPaise := int64(math.Round(order.Total * 100))
	result, err := s.gw.Refund(ctx, *order.GatewayPaymentID, amountPaise, map[string]interface{}{
		"reason": reason,
	})
	if err != nil {
		s.logger.Error("gateway refund failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Payment gateway error")
	}

	if err := s.orders.UpdateVersioned(ctx, order.ID, order.Version, map[string]interface{}{
		"payment_status": models.PaymentStatusRefunded,
		"refund_status":  "initiated",
	}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, newError(http.StatusConflict, "Order was modified concurrently")
		}
		s.logger.Error("refund apply failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to refund payment")
	}

	refund := &models.Refund{
		OrderID:         order.ID,
		GatewayRefundID: result.RefundID,
		Amount:          order.Total,
		Status:          models.RefundRowInitiated,
		Reason:          reason,
	}
	if err := s.payments.CreateRefund(ctx, refund); err != nil {
		s.logger.Error("refund row insert failed", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	s.publishEvent(models.OrderEvent{
		Type:        models.EventRefundInitiated,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      order.Total,
		Timestamp:   time.Now(),
	})

	return refund, nil
}

// HandleWebhook reconciles asynchronous gateway events. Once the signature
// checks out the handler always reports success, even when no matching
// order exists — that is the contract that stops the gateway retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) *ServiceError {
	if !gateway.VerifyWebhookSignature(body, signature, s.webhookSecret) {
		return newError(http.StatusBadRequest, "Invalid webhook signature")
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Warn("unparseable webhook body", zap.Error(err))
		return nil
	}

	entity := event.Payload.Payment.Entity
	switch event.Event {
	case "payment.failed":
		order, err := s.orders.FindByGatewayOrderID(ctx, entity.OrderID)
		if err != nil {
			s.logger.Warn("webhook for unknown gateway order",
				zap.String("pg_order_id", entity.OrderID), zap.Error(err))
			return nil
		}
		if err := s.payments.CreatePayment(ctx, &models.Payment{
			OrderID:          order.ID,
			GatewayOrderID:   entity.OrderID,
			GatewayPaymentID: entity.ID,
			Amount:           0,
			Status:           models.PaymentRowFailed,
			Method:           entity.Method,
			ErrorDescription: entity.ErrorDescription,
		}); err != nil {
			s.logger.Error("payment row insert failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		}

	case "payment.captured":
		order, err := s.orders.FindByGatewayOrderID(ctx, entity.OrderID)
		if err != nil {
			s.logger.Warn("webhook for unknown gateway order",
				zap.String("pg_order_id", entity.OrderID), zap.Error(err))
			return nil
		}
		if order.PaymentStatus == models.PaymentStatusPaid {
			return nil
		}
		if svcErr := s.markPaid(ctx, order, entity.ID, entity.Method); svcErr != nil {
			s.logger.Warn("webhook reconcile did not apply",
				zap.String("order_id", order.ID.String()),
				zap.String("reason", svcErr.Message))
		}

	default:
		s.logger.Info("unhandled webhook event", zap.String("event", event.Event))
	}

	return nil
}

func (s *PaymentService) publishEvent(event models.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.SendOrderEvent(event); err != nil {
		s.logger.Warn("order event publish failed",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}
