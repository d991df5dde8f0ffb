package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/kafka"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
)

// knownStatuses is the full status vocabulary.
var knownStatuses = map[string]bool{
	models.StatusPending:             true,
	models.StatusPaymentPending:      true,
	models.StatusPendingVerification: true,
	models.StatusConfirmed:           true,
	models.StatusProcessing:          true,
	models.StatusOutForDelivery:      true,
	models.StatusDelivered:           true,
	models.StatusCancelled:           true,
	models.StatusReturnRequested:     true,
}

// statusTransitions is the legality table. It is only consulted when strict
// mode is on; the default (weak) mode lets any staff role write any status,
// matching how the platform has always behaved. Side-effect dispatch is
// keyed off the target status either way.
var statusTransitions = map[string][]string{
	models.StatusPending:             {models.StatusConfirmed, models.StatusCancelled},
	models.StatusPaymentPending:      {models.StatusConfirmed, models.StatusCancelled},
	models.StatusPendingVerification: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:           {models.StatusProcessing, models.StatusOutForDelivery, models.StatusCancelled},
	models.StatusProcessing:          {models.StatusOutForDelivery, models.StatusCancelled},
	models.StatusOutForDelivery:      {models.StatusDelivered},
	models.StatusDelivered:           {models.StatusReturnRequested},
}

// otpStatuses are the active fulfillment statuses that require a delivery
// OTP to exist.
var otpStatuses = map[string]bool{
	models.StatusConfirmed:      true,
	models.StatusProcessing:     true,
	models.StatusOutForDelivery: true,
}

// StatusService governs status writes and the side effects each target
// status triggers.
type StatusService struct {
	orders   repository.OrderRepository
	notifier Notifier
	events   kafka.EventPublisher
	logger   *zap.Logger
	strict   bool
}

func NewStatusService(
	orders repository.OrderRepository,
	notifier Notifier,
	events kafka.EventPublisher,
	strict bool,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		orders:   orders,
		notifier: notifier,
		events:   events,
		strict:   strict,
		logger:   logger,
	}
}

// ApplyStatus writes newStatus onto the order and fires the side effects
// the target status demands: pharmacy auto-assignment, OTP generation, COD
// payment sync, history append, notifications. The multi-field write is
// compare-and-set on the order version; a lost race surfaces as 409.
func (s *StatusService) ApplyStatus(ctx context.Context, orderID uuid.UUID, newStatus, actorRole, actorID string) *ServiceError {
	if !knownStatuses[newStatus] {
		return newError(http.StatusBadRequest, fmt.Sprintf("Unknown status: %s", newStatus))
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("order fetch failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return newError(http.StatusInternalServerError, "Failed to update order")
	}

	if s.strict && !transitionAllowed(order.OrderStatus, newStatus) {
		return newError(http.StatusConflict,
			fmt.Sprintf("Illegal transition %s -> %s", order.OrderStatus, newStatus))
	}

	now := time.Now()
	updates := map[string]interface{}{"order_status": newStatus}

	// First confirming pharmacy claims an unassigned order. Write-ordering
	// is the only guard here: two pharmacies confirming at once race, and
	// the version CAS makes the loser see a conflict instead of silently
	// overwriting.
	if actorRole == "pharmacy" && newStatus == models.StatusConfirmed && order.PharmacyID == nil {
		updates["pharmacy_id"] = actorID
		order.PharmacyID = &actorID
	}

	// Delivery OTP is generated once, by whichever call first reaches an
	// active fulfillment status.
	if otpStatuses[newStatus] && order.DeliveryOTP == nil {
		otp := newDeliveryOTP()
		updates["delivery_otp"] = otp
		order.DeliveryOTP = &otp
	}

	// COD is collected on delivery.
	if newStatus == models.StatusDelivered &&
		order.PaymentMethod == models.PaymentMethodCOD &&
		order.PaymentStatus == models.PaymentStatusPending {
		updates["payment_status"] = models.PaymentStatusPaid
		order.PaymentStatus = models.PaymentStatusPaid
	}

	if err := s.orders.UpdateVersioned(ctx, order.ID, order.Version, updates); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return newError(http.StatusConflict, "Order was modified concurrently")
		}
		s.logger.Error("status update failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return newError(http.StatusInternalServerError, "Failed to update order")
	}

	if err := s.orders.AppendHistory(ctx, order.ID, newStatus, now); err != nil {
		s.logger.Error("history append failed", zap.String("order_id", orderID.String()), zap.Error(err))
	}
	order.OrderStatus = newStatus

	switch newStatus {
	case models.StatusConfirmed:
		s.notifier.OrderConfirmed(ctx, order)
		s.notifier.DeliveryBroadcast(ctx, order)
	case models.StatusCancelled:
		s.notifier.OrderCancelled(ctx, order)
	case models.StatusDelivered:
		s.notifier.OrderDelivered(ctx, order)
	}

	s.publishEvent(models.OrderEvent{
		Type:        models.EventStatusChanged,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      newStatus,
		Timestamp:   now,
	})

	return nil
}

func (s *StatusService) publishEvent(event models.OrderEvent) {
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

func transitionAllowed(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func newDeliveryOTP() string {
	return fmt.Sprintf("%04d", rand.Intn(10000))
}
