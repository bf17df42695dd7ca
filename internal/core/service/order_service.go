package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

type OrderService struct {
	orders port.OrderRepository
	carts  port.CartRepository
	cache  port.CacheRepository
	events port.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewOrderService(orders port.OrderRepository, carts port.CartRepository, cache port.CacheRepository, events port.EventPublisher, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		carts:  carts,
		cache:  cache,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// ContactInput is the delivery contact required when an order has gift lines.
type ContactInput struct {
	SenderName          string   `json:"senderName" validate:"required"`
	ReceiverName        string   `json:"receiverName" validate:"required"`
	ReceiverAddress     string   `json:"receiverAddress" validate:"required"`
	ReceiverPhoneNumber string   `json:"receiverPhoneNumber" validate:"required,phone"`
	Longitude           *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Latitude            *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	ShortNote           string   `json:"shortNote"`
}

func (c ContactInput) info() *domain.ContactInformation {
	return &domain.ContactInformation{
		SenderName:          c.SenderName,
		ReceiverName:        c.ReceiverName,
		ReceiverAddress:     c.ReceiverAddress,
		ReceiverPhoneNumber: c.ReceiverPhoneNumber,
		Longitude:           *c.Longitude,
		Latitude:            *c.Latitude,
		ShortNote:           c.ShortNote,
	}
}

// CreateOrder snapshots the caller's active cart lines into a new PENDING
// order. The lines leave the active cart in the same transaction.
func (s *OrderService) CreateOrder(ctx context.Context, caller domain.Caller, contact *ContactInput) (domain.OrderView, error) {
	var view domain.OrderView

	lines, err := s.carts.ListActiveLines(ctx, caller.UserID)
	if err != nil {
		return view, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return view, ErrEmptyCart
	}

	var info *domain.ContactInformation
	if needsAddress(lines) {
		in := ContactInput{}
		if contact != nil {
			in = *contact
		}
		if err := validateInput("Invalid contact information", in); err != nil {
			return view, err
		}
		info = in.info()
	}

	now := s.now().UTC()
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ID)
	}

	order := domain.Order{
		ID:                 uuid.NewString(),
		UserID:             caller.UserID,
		CartItems:          ids,
		ContactInformation: info,
		Status:             domain.OrderStatusPending,
		Phase:              domain.PhaseAwaitingPayment,
		CreatedAt:          now,
		Updates:            []domain.AuditEntry{domain.NewAuditEntry("Order created", now)},
	}

	lineEntry := domain.NewAuditEntry(fmt.Sprintf("Created order on %s", now.Format(time.DateTime)), now)
	if err := s.orders.CreateOrder(ctx, order, lineEntry); err != nil {
		if errors.Is(err, port.ErrCartChanged) {
			return view, ErrCartChanged
		}
		return view, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		slog.String(logging.KeyOrderID, order.ID),
		slog.String(logging.KeyUserID, caller.UserID),
		slog.Int("lines", len(ids)))
	publish(ctx, s.events, s.logger, domain.Event{
		Type:    domain.EventOrderCreated,
		OrderID: order.ID,
		UserID:  order.UserID,
		Payload: map[string]any{"cart_items": ids, "total": chargeTotal(lines)},
	})

	for i := range lines {
		lines[i].OrderID = order.ID
	}
	return orderView(order, lines, nil), nil
}

// ListOrders pages through the caller's orders, or every order for asAdmin.
func (s *OrderService) ListOrders(ctx context.Context, caller domain.Caller, asAdmin bool, page domain.Page) (domain.PageResult[domain.OrderView], error) {
	var result domain.PageResult[domain.OrderView]
	if asAdmin {
		if err := requireAdmin(caller); err != nil {
			return result, err
		}
	}

	filter := port.OrderFilter{Offset: page.Offset(), Limit: page.Size}
	if !asAdmin {
		filter.UserID = caller.UserID
	}

	total, err := s.orders.CountOrders(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("count orders: %w", err)
	}
	if err := page.Check(total); err != nil {
		return result, err
	}

	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("list orders: %w", err)
	}

	var lineIDs, orderIDs []string
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
		lineIDs = append(lineIDs, order.CartItems...)
	}
	lines, err := s.carts.ListLines(ctx, lineIDs)
	if err != nil {
		return result, fmt.Errorf("list order lines: %w", err)
	}
	byID := make(map[string]domain.CartLine, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}

	sessions, err := s.cache.GetCheckoutSessions(ctx, orderIDs)
	if err != nil {
		s.logger.Warn("load checkout sessions failed", logging.Err(err))
		sessions = nil
	}

	views := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		own := make([]domain.CartLine, 0, len(order.CartItems))
		for _, id := range order.CartItems {
			if line, ok := byID[id]; ok {
				own = append(own, line)
			}
		}
		var session *domain.CheckoutSession
		if cs, ok := sessions[order.ID]; ok {
			session = &cs
		}
		views = append(views, orderView(order, own, session))
	}
	return domain.NewPageResult(views, total, page), nil
}

// GetOrder returns one order. Without asAdmin the caller must own it.
func (s *OrderService) GetOrder(ctx context.Context, caller domain.Caller, id string, asAdmin bool) (domain.OrderView, error) {
	var view domain.OrderView
	if asAdmin {
		if err := requireAdmin(caller); err != nil {
			return view, err
		}
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return view, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return view, ErrOrderNotFound
	}
	if !asAdmin && order.UserID != caller.UserID {
		return view, ErrNotAllowed
	}

	return loadOrderView(ctx, s.carts, s.cache, s.logger, *order)
}

func loadOrderView(ctx context.Context, carts port.CartRepository, cache port.CacheRepository, logger *slog.Logger, order domain.Order) (domain.OrderView, error) {
	lines, err := carts.ListLines(ctx, order.CartItems)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("list order lines: %w", err)
	}

	var session *domain.CheckoutSession
	pending, err := cache.HasCheckoutSession(ctx, order.ID)
	if err != nil {
		logger.Warn("check checkout session failed", slog.String(logging.KeyOrderID, order.ID), logging.Err(err))
	}
	if pending {
		session, err = cache.GetCheckoutSession(ctx, order.ID)
		if err != nil {
			logger.Warn("load checkout session failed", slog.String(logging.KeyOrderID, order.ID), logging.Err(err))
		}
	}
	return orderView(order, lines, session), nil
}

func needsAddress(lines []domain.CartLine) bool {
	for _, line := range lines {
		if line.Product.Type == domain.ProductTypeGift {
			return true
		}
	}
	return false
}
