package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

type CheckoutConfig struct {
	// PublicBaseURL is where the gateway redirects the browser back to.
	PublicBaseURL string
	Currency      string
	RequireHTTPS  bool
}

type PaymentService struct {
	orders     port.OrderRepository
	carts      port.CartRepository
	cache      port.CacheRepository
	gateway    port.PaymentGateway
	tokens     port.CheckoutTokens
	reconciler *Reconciler
	events     port.EventPublisher
	metrics    *metrics.Reconciliation
	logger     *slog.Logger
	cfg        CheckoutConfig
	now        func() time.Time
}

func NewPaymentService(
	db port.DatabaseRepository,
	cache port.CacheRepository,
	gateway port.PaymentGateway,
	tokens port.CheckoutTokens,
	reconciler *Reconciler,
	events port.EventPublisher,
	m *metrics.Reconciliation,
	logger *slog.Logger,
	cfg CheckoutConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencySymbol
	}
	return &PaymentService{
		orders:     db,
		carts:      db,
		cache:      cache,
		gateway:    gateway,
		tokens:     tokens,
		reconciler: reconciler,
		events:     events,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

type checkoutInput struct {
	CallbackURL string `json:"callbackUrl" validate:"required,http_url"`
}

// InitiateCheckout opens a gateway checkout for an unpaid order owned by the
// caller. Nothing is written unless the gateway call succeeds.
func (s *PaymentService) InitiateCheckout(ctx context.Context, caller domain.Caller, orderID, returnURL string) (*domain.CheckoutSession, error) {
	if err := validateInput("Invalid or no callback url detected", checkoutInput{CallbackURL: returnURL}); err != nil {
		return nil, err
	}
	if s.cfg.RequireHTTPS {
		if u, err := url.Parse(returnURL); err != nil || u.Scheme != "https" {
			return nil, domain.NewFieldError("Invalid or no callback url detected",
				map[string]string{"callbackUrl": "callbackUrl must use https"})
		}
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != caller.UserID {
		return nil, ErrNotAllowed
	}
	if order.Paid() {
		return nil, ErrAlreadyPaid
	}

	lines, err := s.carts.ListLines(ctx, order.CartItems)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	total := chargeTotal(lines)
	if total <= 0 {
		return nil, ErrZeroCharge
	}

	initiatedAt := s.now().UTC().Truncate(time.Millisecond)
	token, err := s.tokens.Sign(order.ID, order.UserID, initiatedAt)
	if err != nil {
		return nil, fmt.Errorf("sign checkout token: %w", err)
	}

	session, err := s.gateway.InitializeTransaction(ctx, domain.CheckoutRequest{
		Email:       caller.Email,
		AmountMinor: total,
		Currency:    s.cfg.Currency,
		CallbackURL: s.callbackURL(order.ID, token, returnURL),
		OrderID:     order.ID,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "Couldn't initiate payment!", err)
	}

	entry := domain.NewAuditEntry(fmt.Sprintf("Initiated payment with reference %s", session.Reference), initiatedAt)
	var recorded bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.cache.SetCheckoutSession(gctx, order.ID, *session); err != nil {
			return fmt.Errorf("cache checkout session: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ok, err := s.orders.RecordPaymentInitiated(gctx, order.ID, session.Reference, initiatedAt, entry)
		if err != nil {
			return fmt.Errorf("record payment reference: %w", err)
		}
		recorded = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !recorded {
		if err := s.cache.DeleteCheckoutSession(ctx, order.ID); err != nil {
			s.logger.Warn("drop stale checkout session failed", slog.String(logging.KeyOrderID, order.ID), logging.Err(err))
		}
		return nil, ErrAlreadyPaid
	}

	s.logger.Info("checkout initiated",
		slog.String(logging.KeyOrderID, order.ID),
		slog.String("reference", session.Reference),
		slog.Int64("amount", total))
	publish(ctx, s.events, s.logger, domain.Event{
		Type:    domain.EventPaymentInitiated,
		OrderID: order.ID,
		UserID:  order.UserID,
		Payload: map[string]any{"reference": session.Reference, "amount": total},
	})
	return session, nil
}

func (s *PaymentService) callbackURL(orderID, token, returnURL string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	q := url.Values{"returnUrl": []string{returnURL}}
	return fmt.Sprintf("%s/v1/payment/%s/%s?%s", base, url.PathEscape(orderID), url.PathEscape(token), q.Encode())
}

// VerifyOrderPayment asks the gateway about the order's reference and
// reconciles a successful payment.
func (s *PaymentService) VerifyOrderPayment(ctx context.Context, caller domain.Caller, orderID string) (domain.OrderView, error) {
	var view domain.OrderView

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return view, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return view, ErrOrderNotFound
	}
	if !caller.IsAdmin() && order.UserID != caller.UserID {
		return view, ErrNotAllowed
	}

	return s.confirm(ctx, *order, SourceVerify)
}

// CompleteCheckout handles the browser returning from the gateway. The token
// must match the latest checkout of the order; the payment itself is only
// ever confirmed through the gateway.
func (s *PaymentService) CompleteCheckout(ctx context.Context, orderID, token string) (domain.OrderView, error) {
	var view domain.OrderView

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return view, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.PaymentInitiatedAt == nil {
		return view, ErrUnknownOrder
	}
	if err := s.tokens.Verify(token, order.ID, order.UserID, *order.PaymentInitiatedAt); err != nil {
		s.logger.Warn("checkout callback rejected", slog.String(logging.KeyOrderID, orderID), logging.Err(err))
		return view, ErrBadCallback
	}

	return s.confirm(ctx, *order, SourceCallback)
}

func (s *PaymentService) confirm(ctx context.Context, order domain.Order, source PaymentSource) (domain.OrderView, error) {
	var view domain.OrderView
	if order.PaymentReference == "" {
		return view, ErrNoPayment
	}

	tx, err := s.gateway.VerifyTransaction(ctx, order.PaymentReference)
	if err != nil {
		return view, domain.WrapError(domain.ErrUpstream, "Couldn't verify payment!", err)
	}

	if tx.Successful() && !order.Paid() {
		paidAt := s.now()
		if tx.PaidAt != nil {
			paidAt = *tx.PaidAt
		}
		if _, err := s.reconciler.ApplyPayment(ctx, order.ID, paidAt, source); err != nil {
			return view, fmt.Errorf("apply payment: %w", err)
		}
		fresh, err := s.orders.GetOrder(ctx, order.ID)
		if err != nil {
			return view, fmt.Errorf("reload order: %w", err)
		}
		if fresh != nil {
			order = *fresh
		}
	}

	view, err = loadOrderView(ctx, s.carts, s.cache, s.logger, order)
	if err != nil {
		return view, err
	}
	view.PaymentMethod = tx.Channel
	return view, nil
}

// WebhookResult reports what a webhook delivery did: applied, duplicate or ignored.
type WebhookResult struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

// HandleWebhook verifies and applies a gateway event. Unsigned or tampered
// bodies are rejected before anything is read from the store.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.metrics.Webhook("invalid_signature")
		return WebhookResult{}, ErrBadSignature
	}

	event, err := s.gateway.ParseWebhookEvent(body)
	if err != nil {
		s.metrics.Webhook("malformed")
		return WebhookResult{}, ErrBadWebhook
	}
	if event.Type != domain.PaymentEventChargeSuccess {
		s.metrics.Webhook("ignored")
		s.logger.Info("webhook event ignored", slog.String("event", event.Type))
		return WebhookResult{Status: "ignored"}, nil
	}

	order, err := s.findOrder(ctx, event)
	if err != nil {
		return WebhookResult{}, err
	}
	if order == nil {
		s.metrics.Webhook("unknown_reference")
		s.logger.Warn("webhook for unknown reference",
			slog.String("reference", event.Reference),
			slog.String(logging.KeyOrderID, event.OrderID))
		return WebhookResult{Status: "ignored"}, nil
	}

	paidAt := s.now()
	if event.PaidAt != nil {
		paidAt = *event.PaidAt
	}
	out, err := s.reconciler.ApplyPayment(ctx, order.ID, paidAt, SourceWebhook)
	if err != nil {
		s.metrics.Webhook("error")
		return WebhookResult{}, fmt.Errorf("apply payment: %w", err)
	}

	result := WebhookResult{Status: "duplicate", OrderID: order.ID}
	if out.Applied {
		result.Status = "applied"
	}
	s.metrics.Webhook(result.Status)
	return result, nil
}

// findOrder matches an event by reference, then by the order id carried in
// the transaction metadata (a re-initiated checkout replaces the reference).
func (s *PaymentService) findOrder(ctx context.Context, event domain.PaymentEvent) (*domain.Order, error) {
	if event.Reference != "" {
		order, err := s.orders.GetOrderByReference(ctx, event.Reference)
		if err != nil {
			return nil, fmt.Errorf("get order by reference: %w", err)
		}
		if order != nil {
			return order, nil
		}
	}
	if event.OrderID == "" {
		return nil, nil
	}
	order, err := s.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}
