package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	DefaultBaseURL  = "https://api.paystack.co"
	SignatureHeader = "x-paystack-signature"

	maxResponseBytes = 1 << 20
)

var ErrGatewayRejected = errors.New("paystack rejected request")

type PaystackConfig struct {
	BaseURL           string
	SecretKey         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// PaystackClient talks to the Paystack transaction API.
type PaystackClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	limiter   *rate.Limiter
}

func NewPaystackClient(cfg PaystackConfig) *PaystackClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &PaystackClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 10),
	}
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Channel   string          `json:"channel"`
	PaidAt    string          `json:"paid_at"`
	PaidAtAlt string          `json:"paidAt"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (c *PaystackClient) InitializeTransaction(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	body := initializeRequest{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		CallbackURL: req.CallbackURL,
	}
	if req.OrderID != "" {
		body.Metadata = map[string]string{"order_id": req.OrderID}
	}

	var out envelope[initializeData]
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	if !out.Status || out.Data.Reference == "" {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, out.Message)
	}
	return &domain.CheckoutSession{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        out.Data.Reference,
	}, nil
}

func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	var out envelope[transactionData]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, out.Message)
	}
	return &domain.Transaction{
		Reference:   out.Data.Reference,
		Status:      out.Data.Status,
		Channel:     out.Data.Channel,
		AmountMinor: out.Data.Amount,
		PaidAt:      out.Data.paidAt(),
	}, nil
}

// VerifyWebhookSignature compares the hex HMAC-SHA512 of the raw body in
// constant time.
func (c *PaystackClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *PaystackClient) ParseWebhookEvent(body []byte) (domain.PaymentEvent, error) {
	var payload struct {
		Event string          `json:"event"`
		Data  transactionData `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	if payload.Event == "" {
		return domain.PaymentEvent{}, errors.New("webhook without event type")
	}
	return domain.PaymentEvent{
		Type:      payload.Event,
		Reference: payload.Data.Reference,
		OrderID:   payload.Data.orderID(),
		Status:    payload.Data.Status,
		PaidAt:    payload.Data.paidAt(),
	}, nil
}

func (c *PaystackClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("paystack rate limit: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode paystack request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read paystack response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var failure envelope[json.RawMessage]
		_ = json.Unmarshal(data, &failure)
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrGatewayRejected, method, path, resp.StatusCode, failure.Message)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode paystack response: %w", err)
	}
	return nil
}

func (d transactionData) paidAt() *time.Time {
	raw := d.PaidAt
	if raw == "" {
		raw = d.PaidAtAlt
	}
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// orderID reads metadata.order_id. Paystack sends metadata as an object, a
// JSON-encoded string, or an empty string.
func (d transactionData) orderID() string {
	if len(d.Metadata) == 0 {
		return ""
	}
	raw := d.Metadata
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return ""
		}
		raw = json.RawMessage(s)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	id, _ := meta["order_id"].(string)
	return id
}
