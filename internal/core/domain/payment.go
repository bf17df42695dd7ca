package domain

import "time"

// CheckoutSession is what the gateway returns when a transaction is
// initialized. It is cached per order until the payment is reconciled.
type CheckoutSession struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type CheckoutRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	CallbackURL string
	OrderID     string
}

const TransactionSuccess = "success"

type Transaction struct {
	Reference   string
	Status      string
	Channel     string
	AmountMinor int64
	PaidAt      *time.Time
}

func (t Transaction) Successful() bool { return t.Status == TransactionSuccess }

const PaymentEventChargeSuccess = "charge.success"

// PaymentEvent is a verified gateway webhook.
type PaymentEvent struct {
	Type      string
	Reference string
	OrderID   string
	Status    string
	PaidAt    *time.Time
}
