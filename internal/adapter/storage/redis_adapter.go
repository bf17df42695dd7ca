package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const checkoutKeyPrefix = "checkout:"

// releaseLockScript deletes the lock only while it still holds our token.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetCheckoutSession(ctx context.Context, orderID string, session domain.CheckoutSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode checkout session: %w", err)
	}
	return r.client.Set(ctx, checkoutKeyPrefix+orderID, data, 0).Err()
}

func (r *RedisAdapter) GetCheckoutSession(ctx context.Context, orderID string) (*domain.CheckoutSession, error) {
	data, err := r.client.Get(ctx, checkoutKeyPrefix+orderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session domain.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}

func (r *RedisAdapter) GetCheckoutSessions(ctx context.Context, orderIDs []string) (map[string]domain.CheckoutSession, error) {
	out := make(map[string]domain.CheckoutSession, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		keys[i] = checkoutKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var session domain.CheckoutSession
		if err := json.Unmarshal([]byte(s), &session); err != nil {
			continue
		}
		out[orderIDs[i]] = session
	}
	return out, nil
}

func (r *RedisAdapter) HasCheckoutSession(ctx context.Context, orderID string) (bool, error) {
	n, err := r.client.Exists(ctx, checkoutKeyPrefix+orderID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisAdapter) DeleteCheckoutSession(ctx context.Context, orderID string) error {
	return r.client.Del(ctx, checkoutKeyPrefix+orderID).Err()
}

func (r *RedisAdapter) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (r *RedisAdapter) ReleaseLock(ctx context.Context, key, token string) error {
	return releaseLockScript.Run(ctx, r.client, []string{key}, token).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
