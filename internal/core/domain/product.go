package domain

import "time"

type ProductType string

const (
	ProductTypeCredential ProductType = "log"
	ProductTypeGift       ProductType = "gift"
)

func (t ProductType) Valid() bool {
	return t == ProductTypeCredential || t == ProductTypeGift
}

// AuditEntry is one element of an entity's append-only update history.
type AuditEntry struct {
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewAuditEntry(description string, at time.Time) AuditEntry {
	return AuditEntry{Description: description, UpdatedAt: at}
}

type Product struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Type          ProductType  `json:"type"`
	Quantity      int          `json:"quantity"`
	Amount        Amount       `json:"amount"`
	Description   string       `json:"description"`
	Image         string       `json:"image"`
	CreatedBy     string       `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastUpdatedAt *time.Time   `json:"lastUpdatedAt,omitempty"`
	Updates       []AuditEntry `json:"updates"`
}

// ProductSnapshot is the copy of a product frozen into a cart line when it is
// added. Later catalog edits do not change it.
type ProductSnapshot struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Image       string      `json:"image"`
	Amount      Amount      `json:"amount"`
	Type        ProductType `json:"type"`
	Description string      `json:"description"`
}

func SnapshotOf(p Product) ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Image:       p.Image,
		Amount:      p.Amount,
		Type:        p.Type,
		Description: p.Description,
	}
}

// Credential is a single pre-provisioned account handed to a buyer of a
// credential product. AssignedTo, OrderID and CartLineID are set together.
type Credential struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"productId"`
	Email         string       `json:"email"`
	Secret        string       `json:"password"`
	AssignedTo    string       `json:"assignedTo,omitempty"`
	OrderID       string       `json:"orderId,omitempty"`
	CartLineID    string       `json:"cartLineId,omitempty"`
	CreatedBy     string       `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastUpdatedAt *time.Time   `json:"lastUpdatedAt,omitempty"`
	Updates       []AuditEntry `json:"updates"`
}

func (c Credential) Assigned() bool { return c.AssignedTo != "" }

// StockDecrement is one product's share of a paid order.
type StockDecrement struct {
	ProductID string
	Quantity  int
	Entry     AuditEntry
}
