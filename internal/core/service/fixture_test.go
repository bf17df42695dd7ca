package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
)

const validSignature = "signed"

type fakeGateway struct {
	mu        sync.Mutex
	requests  []domain.CheckoutRequest
	status    string
	paidAt    *time.Time
	initErr   error
	verifyErr error
}

func (f *fakeGateway) InitializeTransaction(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.requests = append(f.requests, req)
	return &domain.CheckoutSession{
		AuthorizationURL: "https://checkout.paystack.test/" + req.OrderID,
		AccessCode:       "code-" + req.OrderID,
		Reference:        fmt.Sprintf("ref-%s-%d", req.OrderID, len(f.requests)),
	}, nil
}

func (f *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &domain.Transaction{Reference: reference, Status: f.status, Channel: "card", PaidAt: f.paidAt}, nil
}

func (f *fakeGateway) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature == validSignature
}

func (f *fakeGateway) ParseWebhookEvent(body []byte) (domain.PaymentEvent, error) {
	var event domain.PaymentEvent
	err := json.Unmarshal(body, &event)
	return event, err
}

func (f *fakeGateway) succeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = domain.TransactionSuccess
	paidAt := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	f.paidAt = &paidAt
}

func (f *fakeGateway) lastRequest() domain.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(typ domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	t          *testing.T
	store      *storage.MemoryAdapter
	gateway    *fakeGateway
	events     *recordingPublisher
	reconciler *Reconciler
	carts      *CartService
	orders     *OrderService
	payments   *PaymentService
	delivery   *DeliveryService
	catalog    *CatalogService
	addresses  *AddressService
	sweeper    *Sweeper
}

var (
	admin = domain.Caller{UserID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin}
	alice = domain.Caller{UserID: "alice", Email: "alice@example.com", Role: domain.RoleUser}
	bob   = domain.Caller{UserID: "bob", Email: "bob@example.com", Role: domain.RoleUser}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryAdapter()
	gateway := &fakeGateway{status: "abandoned"}
	events := &recordingPublisher{}
	logger := logging.Discard()
	rec := metrics.NewServerMetrics("test").Reconciliation()

	reconciler := NewReconciler(store, store, events, rec, logger)
	sweeper := NewSweeper(store, reconciler, logger, SweeperConfig{Workers: 4, Interval: time.Hour, Grace: time.Minute, Batch: 50})
	// every order looks stale to the sweeper
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }

	return &fixture{
		t:          t,
		store:      store,
		gateway:    gateway,
		events:     events,
		reconciler: reconciler,
		carts:      NewCartService(store, store, logger),
		orders:     NewOrderService(store, store, store, events, logger),
		payments: NewPaymentService(store, store, gateway, auth.NewCheckoutTokens("order-key"), reconciler, events, rec, logger,
			CheckoutConfig{PublicBaseURL: "https://shop.example.com", Currency: "NGN"}),
		delivery:  NewDeliveryService(store, store, events, logger),
		catalog:   NewCatalogService(store, store, logger),
		addresses: NewAddressService(store, logger),
		sweeper:   sweeper,
	}
}

func (f *fixture) gift(quantity int, price float64) domain.Product {
	f.t.Helper()
	out, err := f.catalog.CreateProduct(context.Background(), admin, ProductInput{
		Name:        "Flowers",
		Type:        string(domain.ProductTypeGift),
		Quantity:    quantity,
		Amount:      price,
		Image:       "https://cdn.example.com/flowers.png",
		Description: "A bunch of flowers",
	})
	require.NoError(f.t, err)
	return out.Product
}

func (f *fixture) credentialProduct(pool int) domain.Product {
	f.t.Helper()
	logs := make([]CredentialInput, pool)
	for i := range logs {
		logs[i] = CredentialInput{Email: fmt.Sprintf("acct-%d@example.com", i), Password: "secret-pass"}
	}
	out, err := f.catalog.CreateProduct(context.Background(), admin, ProductInput{
		Name:        "Streaming account",
		Type:        string(domain.ProductTypeCredential),
		Amount:      5,
		Image:       "https://cdn.example.com/stream.png",
		Description: "One month",
		Logs:        logs,
	})
	require.NoError(f.t, err)
	return out.Product
}

func contact() *ContactInput {
	lng, lat := 3.3792, 6.5244
	return &ContactInput{
		SenderName:          "Alice",
		ReceiverName:        "Carol",
		ReceiverAddress:     "12 Marina Road, Lagos",
		ReceiverPhoneNumber: "+2348012345678",
		Longitude:           &lng,
		Latitude:            &lat,
	}
}

// checkout puts quantity units of p in the caller's cart and creates the order.
func (f *fixture) checkout(caller domain.Caller, p domain.Product, quantity int) domain.OrderView {
	f.t.Helper()
	ctx := context.Background()
	_, _, err := f.carts.AddItem(ctx, caller, CartItemInput{ProductID: p.ID, Quantity: quantity})
	require.NoError(f.t, err)

	var in *ContactInput
	if p.Type == domain.ProductTypeGift {
		in = contact()
	}
	order, err := f.orders.CreateOrder(ctx, caller, in)
	require.NoError(f.t, err)
	return order
}

func (f *fixture) order(id string) domain.Order {
	f.t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(f.t, err)
	require.NotNil(f.t, o)
	return *o
}

func (f *fixture) stock(productID string) int {
	f.t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(f.t, err)
	require.NotNil(f.t, p)
	return p.Quantity
}

func requireKind(t *testing.T, kind domain.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}
