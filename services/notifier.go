package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/catalog"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
	"github.com/shubhambandhovar/medszop-backend/users"
)

// OutboxNotifier turns lifecycle moments into durable email records. Each
// notification kind is guarded by a per-order flag claimed in a single
// conditional update, so retries and concurrent callers enqueue at most one
// email per kind per order. Every method is best-effort: failures are logged
// and never surfaced to the caller.
type OutboxNotifier struct {
	orders     repository.OrderRepository
	outbox     repository.OutboxRepository
	users      users.Store
	pharmacies catalog.PharmacyStore
	logger     *zap.Logger
}

func NewOutboxNotifier(
	orders repository.OrderRepository,
	outbox repository.OutboxRepository,
	userStore users.Store,
	pharmacies catalog.PharmacyStore,
	logger *zap.Logger,
) *OutboxNotifier {
	return &OutboxNotifier{
		orders:     orders,
		outbox:     outbox,
		users:      userStore,
		pharmacies: pharmacies,
		logger:     logger,
	}
}

func (n *OutboxNotifier) OrderPlaced(ctx context.Context, order *models.Order) {
	if !n.claim(ctx, order, models.EmailFlagPlaced) {
		return
	}
	user, ok := n.customer(ctx, order)
	if !ok {
		return
	}
	subject := fmt.Sprintf("Order %s placed", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>Thank you for your order, %s!</h2>
<p>Your order <b>%s</b> has been placed.</p>
%s
<p><b>Total: ₹%.2f</b></p>
<p>Payment method: %s</p>
<p>We will keep you posted as your order moves.</p>
</body></html>`,
		user.Name, order.OrderNumber, itemsTable(order), order.Total, order.PaymentMethod)
	n.enqueue(ctx, order, "order_placed", user.Email, subject, body)
}

func (n *OutboxNotifier) OrderConfirmed(ctx context.Context, order *models.Order) {
	if !n.claim(ctx, order, models.EmailFlagConfirmed) {
		return
	}
	user, ok := n.customer(ctx, order)
	if !ok {
		return
	}
	subject := fmt.Sprintf("Order %s confirmed", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>Your order is confirmed</h2>
<p>Hi %s, order <b>%s</b> has been confirmed and is being prepared.</p>
%s
<p><b>Total: ₹%.2f</b></p>
</body></html>`,
		user.Name, order.OrderNumber, itemsTable(order), order.Total)
	n.enqueue(ctx, order, "order_confirmed", user.Email, subject, body)
}

func (n *OutboxNotifier) OrderCancelled(ctx context.Context, order *models.Order) {
	if !n.claim(ctx, order, models.EmailFlagCancelled) {
		return
	}
	user, ok := n.customer(ctx, order)
	if !ok {
		return
	}
	reason := "not specified"
	if order.CancelReason != nil && *order.CancelReason != "" {
		reason = *order.CancelReason
	}
	subject := fmt.Sprintf("Order %s cancelled", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>Order cancelled</h2>
<p>Hi %s, your order <b>%s</b> has been cancelled.</p>
<p>Reason: %s</p>
<p>If you paid online, your refund will be initiated shortly.</p>
</body></html>`,
		user.Name, order.OrderNumber, reason)
	n.enqueue(ctx, order, "order_cancelled", user.Email, subject, body)
}

func (n *OutboxNotifier) OrderDelivered(ctx context.Context, order *models.Order) {
	if !n.claim(ctx, order, models.EmailFlagDelivered) {
		return
	}
	user, ok := n.customer(ctx, order)
	if !ok {
		return
	}
	subject := fmt.Sprintf("Order %s delivered", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>Order delivered</h2>
<p>Hi %s, your order <b>%s</b> has been delivered.</p>
<p>We hope everything arrived in good condition. Get well soon!</p>
</body></html>`,
		user.Name, order.OrderNumber)
	n.enqueue(ctx, order, "order_delivered", user.Email, subject, body)
}

// PharmacyNew tells the assigned pharmacy a new order needs fulfilment.
func (n *OutboxNotifier) PharmacyNew(ctx context.Context, order *models.Order) {
	if order.PharmacyID == nil {
		return
	}
	if !n.claim(ctx, order, models.EmailFlagPharmacy) {
		return
	}
	pharmacist, err := n.users.FindByID(ctx, *order.PharmacyID)
	if err != nil {
		n.logger.Warn("pharmacy user lookup failed",
			zap.String("pharmacy_id", *order.PharmacyID), zap.Error(err))
		return
	}
	rx := ""
	if order.RequiresPrescription {
		rx = "<p><b>This order requires a prescription.</b> Verify it before confirming.</p>"
	}
	subject := fmt.Sprintf("New order %s", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>New order received</h2>
<p>Order <b>%s</b> is waiting for fulfilment.</p>
%s
%s
<p><b>Total: ₹%.2f</b></p>
</body></html>`,
		order.OrderNumber, itemsTable(order), rx, order.Total)
	n.enqueue(ctx, order, "pharmacy_new_order", pharmacist.Email, subject, body)
}

// DeliveryBroadcast fans one delivery request out to every delivery partner.
// The flag claim covers the whole broadcast: either all partners get a row
// or the claim was lost to a concurrent caller who is doing the same fan-out.
func (n *OutboxNotifier) DeliveryBroadcast(ctx context.Context, order *models.Order) {
	if !n.claim(ctx, order, models.EmailFlagDeliveryReq) {
		return
	}
	partners, err := n.users.ListByRole(ctx, "delivery")
	if err != nil {
		n.logger.Warn("delivery partner listing failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	if len(partners) == 0 {
		n.logger.Warn("no delivery partners registered",
			zap.String("order_id", order.ID.String()))
		return
	}

	pickup := "the assigned pharmacy"
	if order.PharmacyID != nil && n.pharmacies != nil {
		if pharmacy, err := n.pharmacies.FindByID(ctx, *order.PharmacyID); err == nil {
			pickup = fmt.Sprintf("%s, %s", pharmacy.Name, pharmacy.Address)
		}
	}
	dropoff := fmt.Sprintf("%s, %s, %s %s",
		order.Address.Line1, order.Address.City, order.Address.State, order.Address.Pincode)

	subject := fmt.Sprintf("Delivery request for order %s", order.OrderNumber)
	body := fmt.Sprintf(`<html><body>
<h2>Delivery request</h2>
<p>Order <b>%s</b> is ready for pickup.</p>
<p>Pickup: %s</p>
<p>Drop-off: %s</p>
<p>Open the partner app to accept this delivery.</p>
</body></html>`,
		order.OrderNumber, pickup, dropoff)

	for i := range partners {
		n.enqueue(ctx, order, "delivery_request", partners[i].Email, subject, body)
	}
}

// claim flips the notification flag; false means someone else already sent
// this kind for this order, or the claim itself errored.
func (n *OutboxNotifier) claim(ctx context.Context, order *models.Order, flag string) bool {
	won, err := n.orders.ClaimEmailFlag(ctx, order.ID, flag)
	if err != nil {
		n.logger.Error("email flag claim failed",
			zap.String("order_id", order.ID.String()),
			zap.String("flag", flag), zap.Error(err))
		return false
	}
	return won
}

func (n *OutboxNotifier) customer(ctx context.Context, order *models.Order) (*users.User, bool) {
	user, err := n.users.FindByID(ctx, order.UserID)
	if err != nil {
		n.logger.Warn("customer lookup failed",
			zap.String("user_id", order.UserID), zap.Error(err))
		return nil, false
	}
	if user.Email == "" {
		n.logger.Warn("customer has no email", zap.String("user_id", order.UserID))
		return nil, false
	}
	return user, true
}

func (n *OutboxNotifier) enqueue(ctx context.Context, order *models.Order, kind, recipient, subject, body string) {
	rec := &models.EmailOutbox{
		OrderID:   order.ID,
		Kind:      kind,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Status:    models.OutboxPending,
	}
	if err := n.outbox.Enqueue(ctx, rec); err != nil {
		n.logger.Error("outbox enqueue failed",
			zap.String("order_id", order.ID.String()),
			zap.String("kind", kind), zap.Error(err))
	}
}

func itemsTable(order *models.Order) string {
	var b strings.Builder
	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Medicine</th><th>Qty</th><th>Price</th></tr>`)
	for i := range order.Items {
		item := &order.Items[i]
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>₹%.2f</td></tr>",
			item.Name, item.Quantity, item.Price)
	}
	b.WriteString("</table>")
	return b.String()
}
