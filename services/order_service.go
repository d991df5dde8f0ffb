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

	"github.com/shubhambandhovar/medszop-backend/cart"
	"github.com/shubhambandhovar/medszop-backend/catalog"
	"github.com/shubhambandhovar/medszop-backend/kafka"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
	"github.com/shubhambandhovar/medszop-backend/users"
)

// Notifier enqueues customer/pharmacy/delivery notifications. Every method
// is best-effort and idempotent per order: implementations claim the order's
// email flag before enqueuing, so repeat calls never produce a second send.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order)
	PharmacyNew(ctx context.Context, order *models.Order)
	OrderConfirmed(ctx context.Context, order *models.Order)
	DeliveryBroadcast(ctx context.Context, order *models.Order)
	OrderCancelled(ctx context.Context, order *models.Order)
	OrderDelivered(ctx context.Context, order *models.Order)
}

type CreateOrderRequest struct {
	AddressID       string `json:"address_id" binding:"required"`
	PaymentMethod   string `json:"payment_method" binding:"required,oneof=cod online"`
	PrescriptionURL string `json:"prescription_url"`
}

type OrderListResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// staffRoles may read any order and drive status transitions.
var staffRoles = map[string]bool{
	"pharmacy": true,
	"delivery": true,
	"admin":    true,
}

// OrderService is the order assembler plus the read side of the order API.
type OrderService struct {
	orders   repository.OrderRepository
	carts    cart.Repository
	userS    users.Store
	resolver catalog.PriceSource
	notifier Notifier
	events   kafka.EventPublisher
	logger   *zap.Logger
}

func NewOrderService(
	orders repository.OrderRepository,
	carts cart.Repository,
	userStore users.Store,
	resolver catalog.PriceSource,
	notifier Notifier,
	events kafka.EventPublisher,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		carts:    carts,
		userS:    userStore,
		resolver: resolver,
		notifier: notifier,
		events:   events,
		logger:   logger,
	}
}

// CreateOrder converts the user's cart + chosen address + payment method
// into a persisted order. Resolution is all-or-nothing: one genuinely
// unresolvable item aborts the whole order and nothing is persisted.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Order, *ServiceError) {
	user, err := s.userS.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, newError(http.StatusUnauthorized, "User not found")
		}
		s.logger.Error("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to create order")
	}

	userCart, err := s.carts.Get(ctx, userID)
	if err != nil {
		s.logger.Error("cart read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to create order")
	}
	if userCart == nil || len(userCart.Items) == 0 {
		return nil, newError(http.StatusBadRequest, "Cart is empty")
	}

	address, ok := user.AddressByID(req.AddressID)
	if !ok {
		return nil, newError(http.StatusBadRequest, "Invalid address")
	}

	var (
		items      []models.OrderItem
		total      float64
		pharmacyID *string
		requiresRx bool
	)
	for _, line := range userCart.Items {
		if line.MedicineID == "" || line.MedicineID == "undefined" || line.MedicineID == "null" {
			s.logger.Warn("skipping cart line with missing medicine id", zap.String("user_id", userID))
			continue
		}
		if line.Quantity < 1 {
			s.logger.Warn("skipping cart line with invalid quantity",
				zap.String("medicine_id", line.MedicineID),
				zap.Int("quantity", line.Quantity))
			continue
		}

		resolved, err := s.resolver.Resolve(ctx, line.MedicineID)
		if err != nil {
			switch {
			case errors.Is(err, catalog.ErrItemNotFound):
				return nil, newError(http.StatusBadRequest, fmt.Sprintf("Item not found: %s", line.MedicineID))
			case errors.Is(err, catalog.ErrInvalidPrice):
				return nil, newError(http.StatusBadRequest, fmt.Sprintf("Invalid price for item: %s", line.MedicineID))
			default:
				s.logger.Error("item resolution failed", zap.String("medicine_id", line.MedicineID), zap.Error(err))
				return nil, newError(http.StatusInternalServerError, "Failed to create order")
			}
		}

		items = append(items, models.OrderItem{
			ID:         uuid.New(),
			MedicineID: resolved.MedicineID,
			Name:       resolved.Name,
			Price:      resolved.UnitPrice,
			Quantity:   line.Quantity,
			Position:   len(items),
		})
		total += resolved.UnitPrice * float64(line.Quantity)
		// First resolved pharmacy wins; later items are not reconciled
		// against it (single-pharmacy-per-order assumption).
		if pharmacyID == nil && resolved.PharmacyID != nil {
			pharmacyID = resolved.PharmacyID
		}
		requiresRx = requiresRx || resolved.RequiresPrescription
	}

	if len(items) == 0 {
		return nil, newError(http.StatusBadRequest, "Cart has no resolvable items")
	}

	var prescriptionURL *string
	initialStatus := models.StatusPending
	switch {
	case requiresRx && req.PrescriptionURL == "":
		return nil, newError(http.StatusBadRequest, "Prescription required for one or more items")
	case requiresRx:
		u := req.PrescriptionURL
		prescriptionURL = &u
		initialStatus = models.StatusPendingVerification
	case req.PaymentMethod == models.PaymentMethodOnline:
		initialStatus = models.StatusPaymentPending
	}

	now := time.Now()
	order := &models.Order{
		ID:     uuid.New(),
		UserID: userID,
		Items:  items,
		Address: models.DeliveryAddress{
			ID:      address.ID.Hex(),
			Label:   address.Label,
			Line1:   address.Line1,
			Line2:   address.Line2,
			City:    address.City,
			State:   address.State,
			Pincode: address.Pincode,
			Phone:   address.Phone,
		},
		Total:                total,
		PaymentMethod:        req.PaymentMethod,
		PaymentStatus:        models.PaymentStatusPending,
		OrderStatus:          initialStatus,
		RequiresPrescription: requiresRx,
		PrescriptionURL:      prescriptionURL,
		PharmacyID:           pharmacyID,
		Version:              1,
		StatusHistory: []models.OrderStatusEntry{
			{Status: initialStatus, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.createWithFreshNumber(ctx, order); err != nil {
		s.logger.Error("order persist failed", zap.String("user_id", userID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to create order")
	}

	// Best-effort side effects; a failure here never fails the creation.
	s.notifier.OrderPlaced(ctx, order)
	if order.PharmacyID != nil {
		s.notifier.PharmacyNew(ctx, order)
	}
	s.publishEvent(models.OrderEvent{
		Type:        models.EventOrderCreated,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.OrderStatus,
		Amount:      order.Total,
		Timestamp:   now,
	})

	// Clear the cart only after the order is durable; the order stands even
	// if the clear fails.
	if err := s.carts.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart clear failed after order create",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	return order, nil
}

// createWithFreshNumber persists the order, regenerating the order number
// on a duplicate-key rejection. The ORD-<epoch_ms>-<n> format is only
// practically unique; the unique index plus retry closes the gap.
func (s *OrderService) createWithFreshNumber(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		order.OrderNumber = newOrderNumber()
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		s.logger.Warn("order number collision, regenerating", zap.String("order_number", order.OrderNumber))
	}
	return err
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%d", time.Now().UnixMilli(), rand.Intn(1000))
}

// GetUserOrders retrieves the caller's own orders, newest first.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, page, limit int) (*OrderListResponse, *ServiceError) {
	orders, total, err := s.orders.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("order list failed", zap.String("user_id", userID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to fetch orders")
	}

	return &OrderListResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

// GetOrderByID returns one order. Customers may only read their own;
// staff roles may read any.
func (s *OrderService) GetOrderByID(ctx context.Context, requesterID, role string, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(http.StatusNotFound, "Order not found")
		}
		s.logger.Error("order fetch failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, "Failed to fetch order")
	}

	if order.UserID != requesterID && !staffRoles[role] {
		return nil, newError(http.StatusForbidden, "Access denied")
	}
	return order, nil
}

func (s *OrderService) publishEvent(event models.OrderEvent) {
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

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
