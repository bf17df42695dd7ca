package domain

import "time"

type CartLine struct {
	ID            string
	UserID        string
	Product       ProductSnapshot
	Quantity      int
	OrderID       string
	PaidAt        *time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	LastUpdatedAt *time.Time
	Updates       []AuditEntry
}

// Active reports whether the line is still in the cart, not yet tagged to an order.
func (l CartLine) Active() bool { return l.OrderID == "" }

func (l CartLine) Delivered() bool { return l.DeliveredAt != nil }

func (l CartLine) Total() Amount { return l.Product.Amount.Times(l.Quantity) }

// ChargeMinor is the line total in minor units as sent to the gateway.
func (l CartLine) ChargeMinor() int64 {
	return int64(l.Quantity) * l.Product.Amount.Amount
}

type CartLineView struct {
	ID             string          `json:"id"`
	ProductDetails ProductSnapshot `json:"productDetails"`
	Quantity       int             `json:"quantity"`
	TotalPrice     Amount          `json:"totalPrice"`
	IsAvailable    bool            `json:"isAvailable"`
	OrderID        string          `json:"orderId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
}

func (l CartLine) View(available bool) CartLineView {
	return CartLineView{
		ID:             l.ID,
		ProductDetails: l.Product,
		Quantity:       l.Quantity,
		TotalPrice:     l.Total(),
		IsAvailable:    available,
		OrderID:        l.OrderID,
		CreatedAt:      l.CreatedAt,
		PaidAt:         l.PaidAt,
		DeliveredAt:    l.DeliveredAt,
	}
}

type CartView struct {
	Items           []CartLineView `json:"items"`
	IsAddressNeeded bool           `json:"isAddressNeeded"`
}
