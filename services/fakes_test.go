package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shubhambandhovar/medszop-backend/cart"
	"github.com/shubhambandhovar/medszop-backend/catalog"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
	"github.com/shubhambandhovar/medszop-backend/users"
)

// ---- in-memory order repository ----

// memOrderRepo mirrors the conditional-update semantics of the gorm
// implementation: versioned updates, atomic cancel/return transitions and
// single-shot email flag claims.
type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*models.Order
	numbers map[string]bool
	flags   map[uuid.UUID]map[string]bool

	createErr error
	findErr   error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders:  make(map[uuid.UUID]*models.Order),
		numbers: make(map[string]bool),
		flags:   make(map[uuid.UUID]map[string]bool),
	}
}

func (r *memOrderRepo) put(order *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	r.numbers[order.OrderNumber] = true
}

func (r *memOrderRepo) Create(_ context.Context, order *models.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numbers[order.OrderNumber] {
		return gorm.ErrDuplicatedKey
	}
	cp := *order
	r.orders[order.ID] = &cp
	r.numbers[order.OrderNumber] = true
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *memOrderRepo) FindByGatewayOrderID(_ context.Context, pgOrderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.GatewayOrderID != nil && *order.GatewayOrderID == pgOrderID {
			cp := *order
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memOrderRepo) FindByUserID(_ context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) UpdateVersioned(_ context.Context, id uuid.UUID, version int64, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || order.Version != version {
		return repository.ErrVersionConflict
	}
	for col, val := range updates {
		switch col {
		case "order_status":
			order.OrderStatus = val.(string)
		case "payment_status":
			order.PaymentStatus = val.(string)
		case "pharmacy_id":
			v := val.(string)
			order.PharmacyID = &v
		case "delivery_otp":
			v := val.(string)
			order.DeliveryOTP = &v
		case "gateway_order_id":
			v := val.(string)
			order.GatewayOrderID = &v
		case "gateway_payment_id":
			v := val.(string)
			order.GatewayPaymentID = &v
		case "refund_status":
			v := val.(string)
			order.RefundStatus = &v
		}
	}
	order.Version = version + 1
	order.UpdatedAt = time.Now()
	return nil
}

func (r *memOrderRepo) AppendHistory(_ context.Context, id uuid.UUID, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.StatusHistory = append(order.StatusHistory, models.OrderStatusEntry{
		OrderID:   id,
		Status:    status,
		Timestamp: at,
	})
	return nil
}

func (r *memOrderRepo) CancelIfEligible(_ context.Context, id uuid.UUID, userID, actorID, reason string, allowed []string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || order.UserID != userID {
		return false, nil
	}
	eligible := false
	for _, s := range allowed {
		if order.OrderStatus == s {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	order.OrderStatus = models.StatusCancelled
	order.CancelledBy = &actorID
	order.CancelledAt = &at
	order.CancelReason = &reason
	order.Version++
	order.StatusHistory = append(order.StatusHistory, models.OrderStatusEntry{
		OrderID: id, Status: models.StatusCancelled, Timestamp: at,
	})
	return true, nil
}

func (r *memOrderRepo) RequestReturnIfDelivered(_ context.Context, id uuid.UUID, userID, reason, comments string, images []string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || order.UserID != userID || order.OrderStatus != models.StatusDelivered {
		return false, nil
	}
	order.OrderStatus = models.StatusReturnRequested
	order.ReturnReason = &reason
	order.ReturnComments = &comments
	order.ReturnImages = images
	order.ReturnRequestedAt = &at
	order.Version++
	order.StatusHistory = append(order.StatusHistory, models.OrderStatusEntry{
		OrderID: id, Status: models.StatusReturnRequested, Timestamp: at,
	})
	return true, nil
}

func (r *memOrderRepo) ClaimEmailFlag(_ context.Context, id uuid.UUID, flag string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return false, nil
	}
	claimed := r.flags[id]
	if claimed == nil {
		claimed = make(map[string]bool)
		r.flags[id] = claimed
	}
	if claimed[flag] {
		return false, nil
	}
	claimed[flag] = true
	return true, nil
}

// ---- notifier spy ----

type spyNotifier struct {
	mu        sync.Mutex
	placed    int
	pharmacy  int
	confirmed int
	delivery  int
	cancelled int
	delivered int
}

func (n *spyNotifier) OrderPlaced(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed++
}
func (n *spyNotifier) PharmacyNew(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pharmacy++
}
func (n *spyNotifier) OrderConfirmed(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
}
func (n *spyNotifier) DeliveryBroadcast(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivery++
}
func (n *spyNotifier) OrderCancelled(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}
func (n *spyNotifier) OrderDelivered(_ context.Context, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered++
}

// ---- cart fake ----

type fakeCart struct {
	cart    *cart.Cart
	getErr  error
	deleted []string
}

func (c *fakeCart) Get(_ context.Context, userID string) (*cart.Cart, error) {
	return c.cart, c.getErr
}

func (c *fakeCart) Delete(_ context.Context, userID string) error {
	c.deleted = append(c.deleted, userID)
	return nil
}

// ---- user store fake ----

type fakeUserStore struct {
	users map[string]*users.User
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*users.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (s *fakeUserStore) ListByRole(_ context.Context, role string) ([]users.User, error) {
	var out []users.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

// ---- price source fake ----

type fakeResolver struct {
	items map[string]*catalog.ResolvedItem
	errs  map[string]error
}

func (r *fakeResolver) Resolve(_ context.Context, medicineID string) (*catalog.ResolvedItem, error) {
	if err, ok := r.errs[medicineID]; ok {
		return nil, err
	}
	if item, ok := r.items[medicineID]; ok {
		return item, nil
	}
	return nil, catalog.ErrItemNotFound
}

// ---- event publisher fake ----

type fakeEvents struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (e *fakeEvents) SendOrderEvent(event models.OrderEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) Close() {}

func (e *fakeEvents) byType(eventType string) []models.OrderEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.OrderEvent
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
