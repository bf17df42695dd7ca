package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type PaymentGateway interface {
	// InitializeTransaction opens a hosted checkout for the request
	InitializeTransaction(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)

	// VerifyTransaction asks the gateway for the current state of a reference
	VerifyTransaction(ctx context.Context, reference string) (*domain.Transaction, error)

	// VerifyWebhookSignature checks the signature header against the raw body
	VerifyWebhookSignature(body []byte, signature string) bool

	ParseWebhookEvent(body []byte) (domain.PaymentEvent, error)
}

// CheckoutTokens binds a browser callback to the checkout that produced it.
type CheckoutTokens interface {
	Sign(orderID, userID string, initiatedAt time.Time) (string, error)
	Verify(token, orderID, userID string, initiatedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
