package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

var ErrCartLineNotFound = domain.NewError(domain.ErrNotFound, "Cart not found")

type DeliveryService struct {
	orders port.OrderRepository
	carts  port.CartRepository
	events port.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewDeliveryService(orders port.OrderRepository, carts port.CartRepository, events port.EventPublisher, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{orders: orders, carts: carts, events: events, logger: logger, now: time.Now}
}

// MarkCartLineDelivered records delivery of one line of a paid order and
// promotes the order once all sibling lines are delivered. Repeating it
// changes nothing.
func (s *DeliveryService) MarkCartLineDelivered(ctx context.Context, caller domain.Caller, lineID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}

	line, err := s.carts.GetLine(ctx, lineID)
	if err != nil {
		return fmt.Errorf("get cart line: %w", err)
	}
	if line == nil {
		return ErrCartLineNotFound
	}
	if line.OrderID == "" {
		return ErrNotPaid
	}

	order, err := s.orders.GetOrder(ctx, line.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if !order.Paid() {
		return ErrNotPaid
	}

	now := s.now().UTC()
	if _, err := s.carts.MarkLineDelivered(ctx, lineID, domain.NewAuditEntry("Product delivered!", now)); err != nil {
		return fmt.Errorf("mark line delivered: %w", err)
	}
	delivered, err := promoteIfDelivered(ctx, s.orders, s.carts, *order, now)
	if err != nil {
		return fmt.Errorf("promote delivery: %w", err)
	}
	if delivered {
		s.delivered(ctx, *order)
	}
	return nil
}

// MarkOrderDelivered marks a paid order and every undelivered line of it
// delivered.
func (s *DeliveryService) MarkOrderDelivered(ctx context.Context, caller domain.Caller, orderID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return domain.NewError(domain.ErrNotFound, "Order not found")
	}
	if !order.Paid() {
		return ErrNotPaid
	}

	now := s.now().UTC()
	if _, err := s.carts.MarkLinesDelivered(ctx, order.CartItems, domain.NewAuditEntry("Product delivered!", now)); err != nil {
		return fmt.Errorf("mark lines delivered: %w", err)
	}
	changed, err := s.orders.MarkDelivered(ctx, order.ID, domain.NewAuditEntry("Order delivered!", now))
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}
	if changed {
		s.delivered(ctx, *order)
	}
	return nil
}

func (s *DeliveryService) delivered(ctx context.Context, order domain.Order) {
	s.logger.Info("order delivered", slog.String(logging.KeyOrderID, order.ID))
	publish(ctx, s.events, s.logger, domain.Event{Type: domain.EventOrderDelivered, OrderID: order.ID, UserID: order.UserID})
}
