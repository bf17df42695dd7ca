package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

// CatalogService manages products and the credential pools behind them.
type CatalogService struct {
	products    port.ProductRepository
	credentials port.CredentialRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewCatalogService(products port.ProductRepository, credentials port.CredentialRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{products: products, credentials: credentials, logger: logger, now: time.Now}
}

type CredentialInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type ProductInput struct {
	Name        string            `json:"name" validate:"required"`
	Type        string            `json:"type" validate:"required,oneof=log gift"`
	Quantity    int               `json:"quantity" validate:"gte=0"`
	Amount      float64           `json:"amount" validate:"required,gt=0"`
	Image       string            `json:"image" validate:"required,http_url"`
	Description string            `json:"description" validate:"required,max=500"`
	Logs        []CredentialInput `json:"logs" validate:"dive"`
}

// ProductUpdate holds the fields to change; nil fields are left alone.
type ProductUpdate struct {
	Name        *string  `json:"name" validate:"omitnil,min=1"`
	Quantity    *int     `json:"quantity" validate:"omitnil,gte=0"`
	Amount      *float64 `json:"amount" validate:"omitnil,gt=0"`
	Image       *string  `json:"image" validate:"omitnil,http_url"`
	Description *string  `json:"description" validate:"omitnil,max=500"`
}

type ProductDetails struct {
	domain.Product
	Logs []domain.Credential `json:"logs,omitempty"`
}

func (s *CatalogService) CreateProduct(ctx context.Context, caller domain.Caller, in ProductInput) (ProductDetails, error) {
	var out ProductDetails
	if err := requireAdmin(caller); err != nil {
		return out, err
	}
	if err := validateInput("Invalid fields detected", in); err != nil {
		return out, err
	}

	productType := domain.ProductType(in.Type)
	if productType == domain.ProductTypeCredential && len(in.Logs) == 0 {
		return out, domain.NewFieldError("Invalid fields detected",
			map[string]string{"logs": `At least one log is required when the product type is "log".`})
	}
	if productType == domain.ProductTypeGift && in.Quantity < 1 {
		return out, domain.NewFieldError("Invalid fields detected",
			map[string]string{"quantity": "Product quantity must be at least 1"})
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Type:        productType,
		Quantity:    in.Quantity,
		Amount:      domain.NewAmount(in.Amount),
		Description: in.Description,
		Image:       in.Image,
		CreatedBy:   caller.UserID,
		CreatedAt:   now,
		Updates:     []domain.AuditEntry{},
	}

	var creds []domain.Credential
	if productType == domain.ProductTypeCredential {
		creds = s.newCredentials(product.ID, caller.UserID, in.Logs, now)
		product.Quantity = len(creds)
	}

	if err := s.products.CreateProduct(ctx, product, creds); err != nil {
		return out, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created", slog.String("product_id", product.ID), slog.Int("quantity", product.Quantity))
	return ProductDetails{Product: product, Logs: creds}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return domain.Product{}, ErrProductMissing
	}
	return *product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, page domain.Page, productType string) (domain.PageResult[domain.Product], error) {
	var result domain.PageResult[domain.Product]

	filter := port.ProductFilter{Offset: page.Offset(), Limit: page.Size}
	if productType != "" {
		filter.Type = domain.ProductType(productType)
		if !filter.Type.Valid() {
			return result, domain.NewFieldError("Invalid fields detected",
				map[string]string{"type": "The selected type must either be gift or log"})
		}
	}

	total, err := s.products.CountProducts(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("count products: %w", err)
	}
	if err := page.Check(total); err != nil {
		return result, err
	}
	products, err := s.products.ListProducts(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("list products: %w", err)
	}
	return domain.NewPageResult(products, total, page), nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, caller domain.Caller, id string, in ProductUpdate) (domain.Product, error) {
	if err := requireAdmin(caller); err != nil {
		return domain.Product{}, err
	}
	if err := validateInput("Invalid fields detected", in); err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return domain.Product{}, ErrProductMissing
	}

	var changed []string
	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
		changed = append(changed, "name")
	}
	if in.Quantity != nil {
		if product.Type == domain.ProductTypeCredential {
			return domain.Product{}, domain.NewFieldError("Invalid fields detected",
				map[string]string{"quantity": "Stock of a log product follows its logs"})
		}
		product.Quantity = *in.Quantity
		changed = append(changed, "quantity")
	}
	if in.Amount != nil {
		product.Amount = domain.NewAmount(*in.Amount)
		changed = append(changed, "amount")
	}
	if in.Image != nil {
		product.Image = *in.Image
		changed = append(changed, "image")
	}
	if in.Description != nil {
		product.Description = *in.Description
		changed = append(changed, "description")
	}
	if len(changed) == 0 {
		return *product, nil
	}

	now := s.now().UTC()
	entry := domain.NewAuditEntry(fmt.Sprintf("Made an update to %s", strings.Join(changed, ", ")), now)
	if err := s.products.UpdateProduct(ctx, *product, entry); err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	product.LastUpdatedAt = &now
	product.Updates = append(product.Updates, entry)
	return *product, nil
}

// DeleteProduct removes a product. Cart lines pointing at it are purged the
// next time their owner touches the cart.
func (s *CatalogService) DeleteProduct(ctx context.Context, caller domain.Caller, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	ok, err := s.products.DeleteProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if !ok {
		return ErrProductMissing
	}
	s.logger.Info("product deleted", slog.String("product_id", id))
	return nil
}

// AddCredentials restocks a log product.
func (s *CatalogService) AddCredentials(ctx context.Context, caller domain.Caller, productID string, logs []CredentialInput) ([]domain.Credential, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, domain.NewFieldError("Invalid fields detected", map[string]string{"logs": "At least one log is required"})
	}
	for _, l := range logs {
		if err := validateInput("Invalid fields detected", l); err != nil {
			return nil, err
		}
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductMissing
	}
	if product.Type != domain.ProductTypeCredential {
		return nil, domain.NewError(domain.ErrValidation, "Only log products hold logs")
	}

	now := s.now().UTC()
	creds := s.newCredentials(productID, caller.UserID, logs, now)
	entry := domain.NewAuditEntry(fmt.Sprintf("Restocked %d log(s)", len(creds)), now)
	ok, err := s.credentials.AddCredentials(ctx, productID, creds, entry)
	if err != nil {
		return nil, fmt.Errorf("add credentials: %w", err)
	}
	if !ok {
		return nil, ErrProductMissing
	}
	s.logger.Info("credentials restocked", slog.String("product_id", productID), slog.Int("count", len(creds)))
	return creds, nil
}

// ListProductCredentials pages through the unassigned pool of a product.
func (s *CatalogService) ListProductCredentials(ctx context.Context, caller domain.Caller, productID string, page domain.Page) (domain.PageResult[domain.Credential], error) {
	if err := requireAdmin(caller); err != nil {
		return domain.PageResult[domain.Credential]{}, err
	}
	return s.listCredentials(ctx, port.CredentialFilter{ProductID: productID, Unassigned: true}, page)
}

// ListMyCredentials pages through the credentials delivered to the caller.
func (s *CatalogService) ListMyCredentials(ctx context.Context, caller domain.Caller, page domain.Page) (domain.PageResult[domain.Credential], error) {
	return s.listCredentials(ctx, port.CredentialFilter{AssignedTo: caller.UserID}, page)
}

func (s *CatalogService) listCredentials(ctx context.Context, filter port.CredentialFilter, page domain.Page) (domain.PageResult[domain.Credential], error) {
	var result domain.PageResult[domain.Credential]
	filter.Offset, filter.Limit = page.Offset(), page.Size

	total, err := s.credentials.CountCredentials(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("count credentials: %w", err)
	}
	if err := page.Check(total); err != nil {
		return result, err
	}
	creds, err := s.credentials.ListCredentials(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("list credentials: %w", err)
	}
	return domain.NewPageResult(creds, total, page), nil
}

type CredentialUpdate struct {
	Email    *string `json:"email" validate:"omitnil,min=1"`
	Password *string `json:"password" validate:"omitnil,min=6"`
}

func (s *CatalogService) UpdateCredential(ctx context.Context, caller domain.Caller, id string, in CredentialUpdate) (domain.Credential, error) {
	if err := requireAdmin(caller); err != nil {
		return domain.Credential{}, err
	}
	if err := validateInput("Invalid fields detected", in); err != nil {
		return domain.Credential{}, err
	}

	cred, err := s.credentials.GetCredential(ctx, id)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return domain.Credential{}, ErrCredentialGone
	}
	if cred.Assigned() {
		return domain.Credential{}, ErrCredentialUsed
	}

	if in.Email != nil {
		cred.Email = *in.Email
	}
	if in.Password != nil {
		cred.Secret = *in.Password
	}
	now := s.now().UTC()
	entry := domain.NewAuditEntry("Updated log details", now)
	if err := s.credentials.UpdateCredential(ctx, *cred, entry); err != nil {
		return domain.Credential{}, fmt.Errorf("update credential: %w", err)
	}
	cred.LastUpdatedAt = &now
	cred.Updates = append(cred.Updates, entry)
	return *cred, nil
}

func (s *CatalogService) DeleteCredential(ctx context.Context, caller domain.Caller, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}

	cred, err := s.credentials.GetCredential(ctx, id)
	if err != nil {
		return fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return ErrCredentialGone
	}
	if cred.Assigned() {
		return ErrCredentialUsed
	}

	entry := domain.NewAuditEntry("Removed 1 log from stock", s.now().UTC())
	ok, err := s.credentials.DeleteCredential(ctx, id, entry)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if !ok {
		// assigned between the read and the delete
		return ErrCredentialUsed
	}
	s.logger.Info("credential deleted", slog.String("credential_id", id), slog.String(logging.KeyUserID, caller.UserID))
	return nil
}

func (s *CatalogService) newCredentials(productID, createdBy string, logs []CredentialInput, at time.Time) []domain.Credential {
	creds := make([]domain.Credential, 0, len(logs))
	for _, l := range logs {
		creds = append(creds, domain.Credential{
			ID:        uuid.NewString(),
			ProductID: productID,
			Email:     l.Email,
			Secret:    l.Password,
			CreatedBy: createdBy,
			CreatedAt: at,
			Updates:   []domain.AuditEntry{},
		})
	}
	return creds
}
