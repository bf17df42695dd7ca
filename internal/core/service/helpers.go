package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

const publishTimeout = 3 * time.Second

// publish emits an event after the state change it describes has committed.
// Failures are logged; the event stream is not part of the source of truth.
func publish(ctx context.Context, events port.EventPublisher, logger *slog.Logger, event domain.Event) {
	if events == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("publish event failed",
			slog.String("type", string(event.Type)),
			slog.String(logging.KeyOrderID, event.OrderID),
			logging.Err(err))
	}
}

func requireAdmin(caller domain.Caller) error {
	if !caller.IsAdmin() {
		return ErrAdminOnly
	}
	return nil
}

func orderView(order domain.Order, lines []domain.CartLine, session *domain.CheckoutSession) domain.OrderView {
	items := make([]domain.CartLineView, 0, len(lines))
	total := domain.NewAmount(0)
	for _, line := range lines {
		items = append(items, line.View(false))
		total = total.Add(line.Total())
	}

	updates := order.Updates
	if updates == nil {
		updates = []domain.AuditEntry{}
	}

	return domain.OrderView{
		ID:                 order.ID,
		UserID:             order.UserID,
		CartItems:          items,
		ContactInformation: order.ContactInformation,
		Status:             order.Status,
		Phase:              order.Phase,
		TotalPrice:         total,
		CheckoutDetails:    session,
		PaymentReference:   order.PaymentReference,
		PaymentInitiatedAt: order.PaymentInitiatedAt,
		PaidAt:             order.PaidAt,
		DeliveredAt:        order.DeliveredAt,
		RefundedAt:         order.RefundedAt,
		CreatedAt:          order.CreatedAt,
		LastUpdatedAt:      order.LastUpdatedAt,
		Updates:            updates,
	}
}

// chargeTotal is the amount sent to the gateway, in minor units.
func chargeTotal(lines []domain.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.ChargeMinor()
	}
	return total
}

// promoteIfDelivered marks the order delivered once every one of its lines is.
func promoteIfDelivered(ctx context.Context, orders port.OrderRepository, carts port.CartRepository, order domain.Order, at time.Time) (bool, error) {
	if order.Delivered() {
		return false, nil
	}
	remaining, err := carts.CountUndelivered(ctx, order.CartItems)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	return orders.MarkDelivered(ctx, order.ID, domain.NewAuditEntry("Order delivered!", at))
}
