package domain

import "time"

type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventPaymentInitiated EventType = "payment.initiated"
	EventOrderPaid        EventType = "order.paid"
	EventCredentialShort  EventType = "order.backordered"
	EventOrderDelivered   EventType = "order.delivered"
)

// Event is published to the event stream after a state change commits.
type Event struct {
	EventID   string         `json:"event_id"`
	Type      EventType      `json:"type"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}
