package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CacheRepository interface {
	// SetCheckoutSession stores the pending checkout for an order, replacing any previous one
	SetCheckoutSession(ctx context.Context, orderID string, session domain.CheckoutSession) error

	// GetCheckoutSession returns nil when no checkout is pending
	GetCheckoutSession(ctx context.Context, orderID string) (*domain.CheckoutSession, error)

	// GetCheckoutSessions fetches pending checkouts for many orders in one round trip
	GetCheckoutSessions(ctx context.Context, orderIDs []string) (map[string]domain.CheckoutSession, error)

	HasCheckoutSession(ctx context.Context, orderID string) (bool, error)
	DeleteCheckoutSession(ctx context.Context, orderID string) error

	// AcquireLock takes an advisory lock, returns false if someone else holds it
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseLock frees the lock only if token still owns it
	ReleaseLock(ctx context.Context, key, token string) error

	Ping(ctx context.Context) error
}
