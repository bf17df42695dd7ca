package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/adapter/events"
	"github.com/rl1809/storefront/internal/adapter/gateway"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
)

const testSecret = "sk_test_handler"

// fakePaystack answers initialize and verify like the real API would for a
// single reference per order.
type fakePaystack struct {
	paid      atomic.Bool
	lastOrder atomic.Value
}

func (f *fakePaystack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/transaction/initialize":
		var body struct {
			Amount   int64             `json:"amount"`
			Metadata map[string]string `json:"metadata"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.lastOrder.Store(body.Metadata["order_id"])
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.test/abc",
				"access_code":       "abc",
				"reference":         "ref-" + body.Metadata["order_id"],
			},
		})
	case strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		status := "abandoned"
		if f.paid.Load() {
			status = "success"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data": map[string]any{
				"reference": strings.TrimPrefix(r.URL.Path, "/transaction/verify/"),
				"status":    status,
				"channel":   "card",
				"paid_at":   "2026-01-02T10:00:00.000Z",
			},
		})
	default:
		http.NotFound(w, r)
	}
}

type testServer struct {
	t       *testing.T
	server  *httptest.Server
	store   *storage.MemoryAdapter
	gateway *fakePaystack
	auth    *auth.Authenticator
	user    string
	admin   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	fake := &fakePaystack{}
	api := httptest.NewServer(fake)
	t.Cleanup(api.Close)

	store := storage.NewMemoryAdapter()
	logger := logging.Discard()
	m := metrics.NewServerMetrics("test")
	rec := m.Reconciliation()
	publisher := events.NopPublisher{}

	paystack := gateway.NewPaystackClient(gateway.PaystackConfig{BaseURL: api.URL, SecretKey: testSecret})
	tokens := auth.NewCheckoutTokens("order-key")
	reconciler := service.NewReconciler(store, store, publisher, rec, logger)

	svc := Services{
		Carts:     service.NewCartService(store, store, logger),
		Orders:    service.NewOrderService(store, store, store, publisher, logger),
		Payments:  service.NewPaymentService(store, store, paystack, tokens, reconciler, publisher, rec, logger, service.CheckoutConfig{PublicBaseURL: "http://api.test"}),
		Delivery:  service.NewDeliveryService(store, store, publisher, logger),
		Catalog:   service.NewCatalogService(store, store, logger),
		Addresses: service.NewAddressService(store, logger),
	}

	authenticator := auth.NewAuthenticator("jwt-key", time.Hour)
	probes := []Probe{{Name: "store", Check: store.Ping}}
	h := NewHTTPHandler(svc, authenticator, probes, m, logger)

	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)

	ts := &testServer{t: t, server: server, store: store, gateway: fake, auth: authenticator}
	ts.user = ts.token(domain.Caller{UserID: "user-1", Email: "buyer@example.com", Role: domain.RoleUser})
	ts.admin = ts.token(domain.Caller{UserID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin})
	return ts
}

func (ts *testServer) token(caller domain.Caller) string {
	token, err := ts.auth.Issue(caller, time.Now())
	require.NoError(ts.t, err)
	return token
}

func (ts *testServer) do(method, path, token string, body any) (*http.Response, map[string]any) {
	ts.t.Helper()

	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if raw, ok := body.([]byte); ok {
		req.Header.Set(gateway.SignatureHeader, sign(raw))
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (ts *testServer) createGift(quantity int, amount float64) string {
	ts.t.Helper()
	resp, body := ts.do(http.MethodPost, "/v1/products", ts.admin, map[string]any{
		"name":        "Gift box",
		"type":        "gift",
		"quantity":    quantity,
		"amount":      amount,
		"image":       "https://cdn.example.com/gift.png",
		"description": "A box",
	})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode, body)
	return body["data"].(map[string]any)["id"].(string)
}

var contact = map[string]any{
	"senderName":          "Ada",
	"receiverName":        "Grace",
	"receiverAddress":     "12 Marina, Lagos",
	"receiverPhoneNumber": "+2348012345678",
	"longitude":           3.39,
	"latitude":            6.45,
}

func TestHTTP_RequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodGet, "/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["message"])

	resp, _ = ts.do(http.MethodGet, "/v1/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_AdminRoutesForbidUsers(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(http.MethodPost, "/v1/products", ts.user, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTP_PageOutOfBound(t *testing.T) {
	ts := newTestServer(t)
	ts.createGift(3, 10)

	for _, q := range []string{"page=0", "page=abc", "page=5"} {
		resp, body := ts.do(http.MethodGet, "/v1/products?"+q, "", nil)
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode, q)
		assert.Equal(t, "Page out of bound!", body["message"], q)
	}
}

func TestHTTP_ProductListEnvelope(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.createGift(1, 10)
	}

	resp, body := ts.do(http.MethodGet, "/v1/products?page=2&max=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 3, body["pageNum"])
	assert.EqualValues(t, 2, body["activePage"])
	assert.Len(t, body["data"], 1)

	prev := body["previousLink"].(map[string]any)
	next := body["nextLink"].(map[string]any)
	assert.Equal(t, "/products?page=1", prev["commonUrl"])
	assert.Equal(t, "/products?page=3", next["commonUrl"])
	assert.True(t, strings.HasSuffix(prev["baseUrl"].(string), "/v1"))
}

func TestHTTP_CartQuantityBeyondStock(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createGift(2, 10)

	resp, body := ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"productId": id, "quantity": 3})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode, body)

	resp, _ = ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"productId": id, "quantity": 2})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"productId": id, "quantity": 1})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
}

func TestHTTP_ValidationFieldErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, ok := body["error"].(map[string]any)
	require.True(t, ok, body)
	assert.Contains(t, fields, "productId")
	assert.Contains(t, fields, "quantity")
}

func TestHTTP_WebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte(`{"event":"charge.success","data":{"reference":"nope","status":"success"}}`)
	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/v1/payment/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(gateway.SignatureHeader, "deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_CheckoutToDelivery(t *testing.T) {
	ts := newTestServer(t)
	productID := ts.createGift(5, 10)

	resp, _ := ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"productId": productID, "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(http.MethodPost, "/v1/orders", ts.user, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "gift orders need contact information")

	resp, body = ts.do(http.MethodPost, "/v1/orders", ts.user, contact)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	order := body["data"].(map[string]any)
	orderID := order["id"].(string)
	assert.Equal(t, "PENDING", order["status"])
	assert.EqualValues(t, 2000, order["totalPrice"].(map[string]any)["amount"])

	resp, body = ts.do(http.MethodPost, "/v1/payment/"+orderID, ts.user, map[string]any{"callbackUrl": "https://shop.example.com/done"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, orderID, ts.gateway.lastOrder.Load())

	webhook := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"ref-%s","status":"success","paid_at":"2026-01-02T10:00:00Z","metadata":{"order_id":"%s"}}}`, orderID, orderID))
	resp, body = ts.do(http.MethodPost, "/v1/payment/webhook", "", webhook)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "applied", body["data"].(map[string]any)["status"])

	resp, body = ts.do(http.MethodPost, "/v1/payment/webhook", "", webhook)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["data"].(map[string]any)["status"])

	product, err := ts.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Quantity)

	resp, body = ts.do(http.MethodGet, "/v1/orders/"+orderID, ts.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paid := body["data"].(map[string]any)
	assert.Equal(t, "PAID", paid["status"])
	assert.Equal(t, "FULFILLED", paid["phase"])
	assert.Equal(t, "ref-"+orderID, paid["paymentReference"])
	assert.NotEmpty(t, paid["paymentInitiatedAt"])
	assert.NotContains(t, paid, "fulfillmentPhase")

	resp, _ = ts.do(http.MethodPost, "/v1/orders/"+orderID+"/delivered", ts.user, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(http.MethodPost, "/v1/orders/"+orderID+"/delivered", ts.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(http.MethodGet, "/v1/orders/"+orderID, ts.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DELIVERED", body["data"].(map[string]any)["status"])
}

func TestHTTP_CallbackRedirectsToReturnURL(t *testing.T) {
	ts := newTestServer(t)
	productID := ts.createGift(5, 10)

	ts.do(http.MethodPost, "/v1/cart", ts.user, map[string]any{"productId": productID, "quantity": 1})
	_, body := ts.do(http.MethodPost, "/v1/orders", ts.user, contact)
	orderID := body["data"].(map[string]any)["id"].(string)

	ts.do(http.MethodPost, "/v1/payment/"+orderID, ts.user, map[string]any{"callbackUrl": "https://shop.example.com/done"})
	order, err := ts.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order.PaymentInitiatedAt)

	token, err := auth.NewCheckoutTokens("order-key").Sign(orderID, "user-1", *order.PaymentInitiatedAt)
	require.NoError(t, err)

	resp, _ := ts.do(http.MethodGet, "/v1/payment/"+orderID+"/forged", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ts.gateway.paid.Store(true)
	resp, _ = ts.do(http.MethodGet, "/v1/payment/"+orderID+"/"+token+"?returnUrl=https%3A%2F%2Fshop.example.com%2Fdone", "", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.Contains(t, location, "https://shop.example.com/done")
	assert.Contains(t, location, "status=PAID")
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(ts.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
