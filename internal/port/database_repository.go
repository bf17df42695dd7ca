package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ErrCartChanged is returned by CreateOrder when one of the snapshotted lines
// was tagged to another order before the transaction committed.
var ErrCartChanged = errors.New("cart lines changed during order creation")

type ProductFilter struct {
	Type   domain.ProductType
	Offset int
	Limit  int
}

type CredentialFilter struct {
	ProductID  string
	AssignedTo string
	Unassigned bool
	Offset     int
	Limit      int
}

type OrderFilter struct {
	UserID string
	Offset int
	Limit  int
}

type ProductRepository interface {
	// CreateProduct inserts a product and its credential pool in one transaction
	CreateProduct(ctx context.Context, product domain.Product, credentials []domain.Credential) error

	// GetProduct returns nil when the product does not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetProducts returns the products that still exist, keyed by id
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)

	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	CountProducts(ctx context.Context, filter ProductFilter) (int, error)

	// UpdateProduct overwrites the editable fields and appends entry to the history
	UpdateProduct(ctx context.Context, product domain.Product, entry domain.AuditEntry) error

	DeleteProduct(ctx context.Context, id string) (bool, error)
}

type CredentialRepository interface {
	// AddCredentials inserts records and raises the product's stock by their count.
	// Returns false when the product does not exist.
	AddCredentials(ctx context.Context, productID string, credentials []domain.Credential, entry domain.AuditEntry) (bool, error)

	GetCredential(ctx context.Context, id string) (*domain.Credential, error)
	ListCredentials(ctx context.Context, filter CredentialFilter) ([]domain.Credential, error)
	CountCredentials(ctx context.Context, filter CredentialFilter) (int, error)
	UpdateCredential(ctx context.Context, credential domain.Credential, entry domain.AuditEntry) error

	// DeleteCredential removes an unassigned record and lowers the product's stock.
	// Returns false when the record is missing or already assigned.
	DeleteCredential(ctx context.Context, id string, entry domain.AuditEntry) (bool, error)

	// FulfillCredentialLine assigns line.Quantity unassigned records of the line's
	// product to userID and marks the line delivered, all or nothing. Returns
	// false on a pool shortfall. An already delivered line reports true.
	FulfillCredentialLine(ctx context.Context, line domain.CartLine, userID string, entry domain.AuditEntry) (bool, error)
}

type CartRepository interface {
	CreateLine(ctx context.Context, line domain.CartLine) error

	// GetLine returns nil when the line does not exist
	GetLine(ctx context.Context, id string) (*domain.CartLine, error)

	// FindActiveLine returns the caller's untagged line for a product, or nil
	FindActiveLine(ctx context.Context, userID, productID string) (*domain.CartLine, error)

	ListActiveLines(ctx context.Context, userID string) ([]domain.CartLine, error)

	// ListLines returns existing lines in the order of ids
	ListLines(ctx context.Context, ids []string) ([]domain.CartLine, error)

	// UpdateLineQuantity only touches active lines
	UpdateLineQuantity(ctx context.Context, id string, quantity int, entry domain.AuditEntry) (bool, error)

	// DeleteLine only removes active lines
	DeleteLine(ctx context.Context, id string) (bool, error)

	DeleteActiveLines(ctx context.Context, userID string) (int64, error)

	// MarkLinesPaid sets paid_at on lines that have none
	MarkLinesPaid(ctx context.Context, ids []string, entry domain.AuditEntry) (int64, error)

	// MarkLineDelivered sets delivered_at if unset, reporting whether it changed
	MarkLineDelivered(ctx context.Context, id string, entry domain.AuditEntry) (bool, error)

	MarkLinesDelivered(ctx context.Context, ids []string, entry domain.AuditEntry) (int64, error)

	// CountUndelivered counts lines among ids without delivered_at
	CountUndelivered(ctx context.Context, ids []string) (int, error)
}

type OrderRepository interface {
	// CreateOrder inserts the order and tags its cart lines in one transaction.
	// Returns ErrCartChanged if any line was already tagged.
	CreateOrder(ctx context.Context, order domain.Order, lineEntry domain.AuditEntry) error

	// GetOrder returns nil when the order does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// GetOrderByReference returns nil when no order carries the reference
	GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error)

	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	CountOrders(ctx context.Context, filter OrderFilter) (int, error)

	// RecordPaymentInitiated stores the gateway reference while the order is unpaid
	RecordPaymentInitiated(ctx context.Context, id, reference string, at time.Time, entry domain.AuditEntry) (bool, error)

	// MarkPaid is the reconciliation gate: it succeeds for exactly one caller
	MarkPaid(ctx context.Context, id string, paidAt time.Time, entry domain.AuditEntry) (bool, error)

	// ApplyStock moves the phase to STOCK_APPLIED and decrements stock in one
	// transaction, only if the order is still PAID_PENDING_FULFILLMENT
	ApplyStock(ctx context.Context, id string, decrements []domain.StockDecrement, entry domain.AuditEntry) (bool, error)

	// AdvancePhase moves the phase to `to` if it is currently one of `from`
	AdvancePhase(ctx context.Context, id string, from []domain.Phase, to domain.Phase, entry domain.AuditEntry) (bool, error)

	// MarkDelivered sets status DELIVERED if the order is not delivered yet
	MarkDelivered(ctx context.Context, id string, entry domain.AuditEntry) (bool, error)

	// ListStalled returns paid orders in one of phases last touched before `before`
	ListStalled(ctx context.Context, phases []domain.Phase, before time.Time, limit int) ([]domain.Order, error)
}

type AddressRepository interface {
	CreateAddress(ctx context.Context, address domain.Address) error
	GetAddress(ctx context.Context, id string) (*domain.Address, error)
	FindAddressByCoordinates(ctx context.Context, userID string, coordinates domain.Coordinates) (*domain.Address, error)
	ListAddresses(ctx context.Context, userID string, offset, limit int) ([]domain.Address, error)
	CountAddresses(ctx context.Context, userID string) (int, error)
	UpdateAddress(ctx context.Context, address domain.Address, entry domain.AuditEntry) error
	DeleteAddress(ctx context.Context, id string) (bool, error)
}

type DatabaseRepository interface {
	ProductRepository
	CredentialRepository
	CartRepository
	OrderRepository
	AddressRepository

	Ping(ctx context.Context) error
}
