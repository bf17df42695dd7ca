package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const (
	lockKeyPrefix  = "reconcile:lock:"
	defaultLockTTL = 30 * time.Second
)

// PaymentSource names the entry point that confirmed a payment.
type PaymentSource string

const (
	SourceWebhook  PaymentSource = "webhook"
	SourceVerify   PaymentSource = "verify"
	SourceCallback PaymentSource = "callback"
	SourceSweep    PaymentSource = "sweep"
)

// Outcome describes what a reconciliation run did.
type Outcome struct {
	// Applied is true only for the run that won the paid gate.
	Applied   bool
	Phase     domain.Phase
	Status    domain.OrderStatus
	Shortfall []string
	// Skipped is true when Resume found another run holding the order lock.
	Skipped bool
}

// Reconciler turns a confirmed payment into its side effects exactly once:
// lines paid, stock decremented, credentials assigned, delivery promoted.
// Progress is persisted as the order phase so an interrupted run can resume.
type Reconciler struct {
	orders      port.OrderRepository
	carts       port.CartRepository
	credentials port.CredentialRepository
	cache       port.CacheRepository
	events      port.EventPublisher
	metrics     *metrics.Reconciliation
	logger      *slog.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

func NewReconciler(db port.DatabaseRepository, cache port.CacheRepository, events port.EventPublisher, m *metrics.Reconciliation, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orders:      db,
		carts:       db,
		credentials: db,
		cache:       cache,
		events:      events,
		metrics:     m,
		logger:      logger,
		lockTTL:     defaultLockTTL,
		now:         time.Now,
	}
}

// SetLockTTL overrides how long an order lock is held before it expires.
func (r *Reconciler) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		r.lockTTL = ttl
	}
}

// ApplyPayment records that orderID was paid at paidAt and runs fulfillment.
// Calling it again for a paid order is a no-op that reports success.
// A lock held elsewhere does not stop it: the paid gate picks one winner and
// the holder may have died before reaching it.
func (r *Reconciler) ApplyPayment(ctx context.Context, orderID string, paidAt time.Time, source PaymentSource) (Outcome, error) {
	release, _ := r.lock(ctx, orderID)
	defer release()

	log := r.logger.With(slog.String(logging.KeyOrderID, orderID), slog.String("source", string(source)))

	won, err := r.orders.MarkPaid(ctx, orderID, paidAt.UTC(), domain.NewAuditEntry("Payment made!", r.now().UTC()))
	if err != nil {
		return Outcome{}, fmt.Errorf("mark order paid: %w", err)
	}
	if !won {
		r.metrics.PaymentDuplicate(string(source))
		log.Info("payment already applied", slog.String(logging.KeyStep, "gate"))
		return Outcome{}, nil
	}

	r.metrics.PaymentApplied(string(source))
	log.Info("payment applied", slog.String(logging.KeyStep, "gate"))
	publish(ctx, r.events, r.logger, domain.Event{
		Type:    domain.EventOrderPaid,
		OrderID: orderID,
		Payload: map[string]any{"paid_at": paidAt.UTC(), "source": string(source)},
	})

	out, err := r.fulfill(ctx, orderID, log)
	out.Applied = true
	return out, err
}

// Resume continues fulfillment of a paid order stuck in a resumable phase.
func (r *Reconciler) Resume(ctx context.Context, orderID string) (Outcome, error) {
	release, contended := r.lock(ctx, orderID)
	defer release()
	if contended {
		return Outcome{Skipped: true}, nil
	}

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil || !order.Paid() || !order.Phase.Resumable() {
		return Outcome{}, nil
	}

	log := r.logger.With(slog.String(logging.KeyOrderID, orderID), slog.String("source", string(SourceSweep)))
	return r.fulfill(ctx, orderID, log)
}

func (r *Reconciler) fulfill(ctx context.Context, orderID string, log *slog.Logger) (Outcome, error) {
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return Outcome{}, fmt.Errorf("order %s vanished during reconciliation", orderID)
	}

	lines, err := r.carts.ListLines(ctx, order.CartItems)
	if err != nil {
		return Outcome{}, fmt.Errorf("list order lines: %w", err)
	}

	now := r.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := r.carts.MarkLinesPaid(gctx, order.CartItems, domain.NewAuditEntry("Payment made!", *order.PaidAt)); err != nil {
			return fmt.Errorf("mark lines paid: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		applied, err := r.orders.ApplyStock(gctx, order.ID, stockDecrements(order.ID, lines, now), domain.NewAuditEntry("Stock applied", now))
		if err != nil {
			return fmt.Errorf("apply stock: %w", err)
		}
		if applied {
			log.Info("stock applied", slog.String(logging.KeyStep, "stock"))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var shortfall []string
	for _, line := range lines {
		if line.Product.Type != domain.ProductTypeCredential || line.Delivered() {
			continue
		}
		entry := domain.NewAuditEntry("Product delivered!", r.now().UTC())
		ok, err := r.credentials.FulfillCredentialLine(ctx, line, order.UserID, entry)
		if err != nil {
			return Outcome{}, fmt.Errorf("assign credentials for line %s: %w", line.ID, err)
		}
		if !ok {
			shortfall = append(shortfall, line.ID)
			r.metrics.CredentialShortfall()
			log.Warn("credential pool short",
				slog.String(logging.KeyStep, "credentials"),
				slog.String("line_id", line.ID),
				slog.String("product_id", line.Product.ID),
				slog.Int("quantity", line.Quantity))
		}
	}

	if err := r.cache.DeleteCheckoutSession(ctx, order.ID); err != nil {
		log.Warn("delete checkout session failed", slog.String(logging.KeyStep, "session"), logging.Err(err))
	}

	// Delivery is promoted before the phase leaves the resumable set, so a
	// run that dies in between is picked up again by the sweeper.
	status := order.Status
	delivered, err := promoteIfDelivered(ctx, r.orders, r.carts, *order, r.now().UTC())
	if err != nil {
		return Outcome{}, fmt.Errorf("promote delivery: %w", err)
	}
	if delivered {
		status = domain.OrderStatusDelivered
		publish(ctx, r.events, r.logger, domain.Event{Type: domain.EventOrderDelivered, OrderID: order.ID, UserID: order.UserID})
	} else if status == domain.OrderStatusPending {
		status = domain.OrderStatusPaid
	}

	next := domain.PhaseFulfilled
	if len(shortfall) > 0 {
		next = domain.PhaseBackordered
	}
	if order.Phase != next {
		desc := "Fulfilled"
		if next == domain.PhaseBackordered {
			desc = fmt.Sprintf("Awaiting restock for %d line(s)", len(shortfall))
		}
		from := []domain.Phase{domain.PhaseStockApplied, domain.PhaseBackordered}
		if _, err := r.orders.AdvancePhase(ctx, order.ID, from, next, domain.NewAuditEntry(desc, r.now().UTC())); err != nil {
			return Outcome{}, fmt.Errorf("advance phase: %w", err)
		}
		if next == domain.PhaseBackordered {
			publish(ctx, r.events, r.logger, domain.Event{
				Type:    domain.EventCredentialShort,
				OrderID: order.ID,
				UserID:  order.UserID,
				Payload: map[string]any{"lines": shortfall},
			})
		}
	}

	log.Info("reconciliation finished",
		slog.String(logging.KeyStep, "done"),
		slog.String(logging.KeyStatus, string(status)),
		slog.String("phase", string(next)))
	return Outcome{Phase: next, Status: status, Shortfall: shortfall}, nil
}

// lock takes the advisory order lock. contended reports that another run
// holds it. Cache failures fall through to the database guards, so the run
// proceeds without the lock. release is always safe to call.
func (r *Reconciler) lock(ctx context.Context, orderID string) (release func(), contended bool) {
	key := lockKeyPrefix + orderID
	token, acquired, err := r.cache.AcquireLock(ctx, key, r.lockTTL)
	if err != nil {
		r.logger.Warn("acquire order lock failed", slog.String(logging.KeyOrderID, orderID), logging.Err(err))
		return func() {}, false
	}
	if !acquired {
		r.logger.Info("order lock held elsewhere", slog.String(logging.KeyOrderID, orderID))
		return func() {}, true
	}
	return func() {
		if err := r.cache.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			r.logger.Warn("release order lock failed", slog.String(logging.KeyOrderID, orderID), logging.Err(err))
		}
	}, false
}

// stockDecrements sums line quantities per distinct product.
func stockDecrements(orderID string, lines []domain.CartLine, at time.Time) []domain.StockDecrement {
	totals := make(map[string]int)
	var order []string
	for _, line := range lines {
		if _, ok := totals[line.Product.ID]; !ok {
			order = append(order, line.Product.ID)
		}
		totals[line.Product.ID] += line.Quantity
	}

	out := make([]domain.StockDecrement, 0, len(order))
	for _, id := range order {
		n := totals[id]
		out = append(out, domain.StockDecrement{
			ProductID: id,
			Quantity:  n,
			Entry:     domain.NewAuditEntry(fmt.Sprintf("Sold %d unit(s) on order %s", n, orderID), at),
		})
	}
	return out
}
