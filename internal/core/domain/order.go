package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Phase tracks how far payment reconciliation got, so an interrupted run can
// be resumed without repeating side effects.
type Phase string

const (
	PhaseAwaitingPayment        Phase = "AWAITING_PAYMENT"
	PhasePaidPendingFulfillment Phase = "PAID_PENDING_FULFILLMENT"
	PhaseStockApplied           Phase = "STOCK_APPLIED"
	PhaseBackordered            Phase = "BACKORDERED"
	PhaseFulfilled              Phase = "FULFILLED"
)

// ResumablePhases are the phases a paid order may be stuck in.
var ResumablePhases = []Phase{PhasePaidPendingFulfillment, PhaseStockApplied, PhaseBackordered}

func (p Phase) Resumable() bool {
	for _, r := range ResumablePhases {
		if p == r {
			return true
		}
	}
	return false
}

type ContactInformation struct {
	SenderName          string  `json:"senderName"`
	ReceiverName        string  `json:"receiverName"`
	ReceiverAddress     string  `json:"receiverAddress"`
	ReceiverPhoneNumber string  `json:"receiverPhoneNumber"`
	Longitude           float64 `json:"longitude"`
	Latitude            float64 `json:"latitude"`
	ShortNote           string  `json:"shortNote,omitempty"`
}

type Order struct {
	ID                 string
	UserID             string
	CartItems          []string
	ContactInformation *ContactInformation
	Status             OrderStatus
	Phase              Phase
	PaymentReference   string
	PaymentInitiatedAt *time.Time
	PaidAt             *time.Time
	DeliveredAt        *time.Time
	RefundedAt         *time.Time
	CreatedAt          time.Time
	LastUpdatedAt      *time.Time
	Updates            []AuditEntry
}

func (o Order) Paid() bool { return o.PaidAt != nil }

func (o Order) Delivered() bool { return o.DeliveredAt != nil }

type OrderView struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"userId"`
	CartItems          []CartLineView      `json:"cartItems"`
	ContactInformation *ContactInformation `json:"contactInformation,omitempty"`
	Status             OrderStatus         `json:"status"`
	Phase              Phase               `json:"phase"`
	TotalPrice         Amount              `json:"totalPrice"`
	CheckoutDetails    *CheckoutSession    `json:"checkoutDetails,omitempty"`
	PaymentReference   string              `json:"paymentReference,omitempty"`
	PaymentInitiatedAt *time.Time          `json:"paymentInitiatedAt,omitempty"`
	PaymentMethod      string              `json:"paymentMethod,omitempty"`
	PaidAt             *time.Time          `json:"paidAt,omitempty"`
	DeliveredAt        *time.Time          `json:"deliveredAt,omitempty"`
	RefundedAt         *time.Time          `json:"refundedAt,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	LastUpdatedAt      *time.Time          `json:"lastUpdatedAt,omitempty"`
	Updates            []AuditEntry        `json:"updates"`
}
