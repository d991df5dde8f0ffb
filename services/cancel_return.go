package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/models"
)

// cancellableStatuses are the statuses a customer may still cancel from.
// cod_confirmed is a legacy status that older orders can still carry.
var cancellableStatuses = []string{
	models.StatusPending,
	models.StatusPendingVerification,
	models.StatusConfirmed,
	"cod_confirmed",
	models.StatusPaymentPending,
}

type ReturnRequest struct {
	Reason   string   `json:"reason" binding:"required"`
	Comments string   `json:"comments"`
	Images   []string `json:"images"`
}

// CancelOrder performs the customer-initiated cancellation as one atomic
// conditional update. When the update matches nothing, a diagnostic re-read
// produces the precise error; a repeat cancel is idempotent and returns the
// already-cancelled order.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, userID, reason string) (*models.Order, *ServiceError) {
	now := time.Now()
	matched, err := s.orders.CancelIfEligible(ctx, orderID, userID, userID, reason, cancellableStatuses, now)
	if err != nil {
		s.logger.Error("cancel update failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to cancel order")
	}

	if !matched {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, newError(http.StatusNotFound, "Order not found")
			}
			s.logger.Error("cancel re-read failed", zap.String("order_id", orderID.String()), zap.Error(err))
			return nil, newError(http.StatusInternalServerError, "Failed to cancel order")
		}
		if order.UserID != userID {
			return nil, newError(http.StatusForbidden, "This order does not belong to you")
		}
		if order.OrderStatus == models.StatusCancelled {
			return order, nil
		}
		return nil, newError(http.StatusConflict, "Order can no longer be cancelled")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.logger.Error("cancel reload failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to cancel order")
	}

	s.notifier.OrderCancelled(ctx, order)
	s.publishEvent(models.OrderEvent{
		Type:        models.EventStatusChanged,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      models.StatusCancelled,
		Timestamp:   now,
	})

	return order, nil
}

// RequestReturn moves a delivered order to return_requested within the
// return window. The transition is the same compare-and-set shape as
// cancellation; a status change between the read and the write surfaces
// as 409.
func (s *OrderService) RequestReturn(ctx context.Context, orderID uuid.UUID, userID string, req *ReturnRequest, window time.Duration) (*models.Order, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("return read failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to request return")
	}
	if order.UserID != userID {
		return nil, newError(http.StatusForbidden, "This order does not belong to you")
	}
	if order.OrderStatus != models.StatusDelivered {
		return nil, newError(http.StatusBadRequest, "Only delivered orders can be returned")
	}

	now := time.Now()
	deliveredAt, ok := order.DeliveredAt()
	if !ok {
		// A delivered order should always have the history entry; fall
		// back to now so the window math never works on a zero time.
		deliveredAt = now
	}
	if now.Sub(deliveredAt) > window {
		return nil, newError(http.StatusBadRequest, "Return window has expired")
	}

	matched, err := s.orders.RequestReturnIfDelivered(ctx, orderID, userID, req.Reason, req.Comments, req.Images, now)
	if err != nil {
		s.logger.Error("return update failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to request return")
	}
	if !matched {
		return nil, newError(http.StatusConflict, "Order status changed, please retry")
	}

	updated, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.logger.Error("return reload failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to request return")
	}

	s.publishEvent(models.OrderEvent{
		Type:        models.EventStatusChanged,
		OrderID:     updated.ID.String(),
		OrderNumber: updated.OrderNumber,
		UserID:      updated.UserID,
		Status:      models.StatusReturnRequested,
		Timestamp:   now,
	})

	return updated, nil
}
