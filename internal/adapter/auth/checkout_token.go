package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenMismatch = errors.New("checkout token does not match order")

// CheckoutTokens signs the callback token handed to the gateway. The token is
// a deterministic HS256 JWT over the order id, owner and the millisecond the
// checkout was initiated, so it is invalidated by re-initiating checkout.
type CheckoutTokens struct {
	key []byte
}

func NewCheckoutTokens(secret string) *CheckoutTokens {
	return &CheckoutTokens{key: []byte(secret)}
}

type checkoutClaims struct {
	OrderID     string `json:"oid"`
	UserID      string `json:"uid"`
	InitiatedAt int64  `json:"pia"`
	jwt.RegisteredClaims
}

func (c *CheckoutTokens) Sign(orderID, userID string, initiatedAt time.Time) (string, error) {
	claims := checkoutClaims{
		OrderID:     orderID,
		UserID:      userID,
		InitiatedAt: initiatedAt.UnixMilli(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign checkout token: %w", err)
	}
	return token, nil
}

func (c *CheckoutTokens) Verify(token, orderID, userID string, initiatedAt time.Time) error {
	var claims checkoutClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("parse checkout token: %w", err)
	}

	if claims.OrderID != orderID || claims.UserID != userID || claims.InitiatedAt != initiatedAt.UnixMilli() {
		return ErrTokenMismatch
	}
	return nil
}
