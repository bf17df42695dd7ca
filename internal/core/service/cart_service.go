package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

type CartService struct {
	carts    port.CartRepository
	products port.ProductRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewCartService(carts port.CartRepository, products port.ProductRepository, logger *slog.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

type CartItemInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// AddItem puts quantity units of a product in the caller's cart, merging with
// an existing active line. created reports whether a new line was made.
func (s *CartService) AddItem(ctx context.Context, caller domain.Caller, in CartItemInput) (view domain.CartLineView, created bool, err error) {
	if err := validateInput("Invalid fields detected", in); err != nil {
		return view, false, err
	}

	product, line, err := s.lookup(ctx, caller.UserID, in.ProductID)
	if err != nil {
		return view, false, err
	}
	if product == nil {
		s.purge(ctx, line)
		return view, false, ErrProductGone
	}

	now := s.now().UTC()
	if line != nil {
		quantity := line.Quantity + in.Quantity
		if quantity > product.Quantity {
			return view, false, ErrOutOfStock
		}
		entry := domain.NewAuditEntry(fmt.Sprintf("Added %d more product to the cart", in.Quantity), now)
		ok, err := s.carts.UpdateLineQuantity(ctx, line.ID, quantity, entry)
		if err != nil {
			return view, false, fmt.Errorf("update cart line: %w", err)
		}
		if !ok {
			return view, false, ErrCartItemAbsent
		}
		line.Quantity = quantity
		return line.View(quantity <= product.Quantity), false, nil
	}

	if in.Quantity > product.Quantity {
		return view, false, ErrOutOfStock
	}

	newLine := domain.CartLine{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		Product:   domain.SnapshotOf(*product),
		Quantity:  in.Quantity,
		CreatedAt: now,
		Updates:   []domain.AuditEntry{},
	}
	if err := s.carts.CreateLine(ctx, newLine); err != nil {
		return view, false, fmt.Errorf("create cart line: %w", err)
	}
	return newLine.View(true), true, nil
}

// SubtractItem removes quantity units. The line is deleted, and removed is
// true, when nothing would be left.
func (s *CartService) SubtractItem(ctx context.Context, caller domain.Caller, in CartItemInput) (view domain.CartLineView, removed bool, err error) {
	if err := validateInput("Invalid fields detected", in); err != nil {
		return view, false, err
	}

	product, line, err := s.lookup(ctx, caller.UserID, in.ProductID)
	if err != nil {
		return view, false, err
	}
	if product == nil {
		s.purge(ctx, line)
		return view, false, ErrProductGone
	}
	if line == nil {
		return view, false, ErrCartItemAbsent
	}

	if in.Quantity >= line.Quantity {
		if _, err := s.carts.DeleteLine(ctx, line.ID); err != nil {
			return view, false, fmt.Errorf("delete cart line: %w", err)
		}
		return view, true, nil
	}

	quantity := line.Quantity - in.Quantity
	entry := domain.NewAuditEntry(fmt.Sprintf("Subtracted %d products from cart", in.Quantity), s.now().UTC())
	ok, err := s.carts.UpdateLineQuantity(ctx, line.ID, quantity, entry)
	if err != nil {
		return view, false, fmt.Errorf("update cart line: %w", err)
	}
	if !ok {
		return view, false, ErrCartItemAbsent
	}
	line.Quantity = quantity
	return line.View(quantity <= product.Quantity), false, nil
}

// SetQuantity replaces the quantity of an existing active line.
func (s *CartService) SetQuantity(ctx context.Context, caller domain.Caller, in CartItemInput) (domain.CartLineView, error) {
	var view domain.CartLineView
	if err := validateInput("Invalid fields detected", in); err != nil {
		return view, err
	}

	product, line, err := s.lookup(ctx, caller.UserID, in.ProductID)
	if err != nil {
		return view, err
	}
	if line == nil {
		return view, ErrCartItemAbsent
	}
	if product == nil {
		s.purge(ctx, line)
		return view, ErrProductGone
	}
	if in.Quantity > product.Quantity {
		return view, ErrOutOfStock
	}

	entry := domain.NewAuditEntry(fmt.Sprintf("Changed the product quantity to %d", in.Quantity), s.now().UTC())
	ok, err := s.carts.UpdateLineQuantity(ctx, line.ID, in.Quantity, entry)
	if err != nil {
		return view, fmt.Errorf("update cart line: %w", err)
	}
	if !ok {
		return view, ErrCartItemAbsent
	}
	line.Quantity = in.Quantity
	return line.View(true), nil
}

// RemoveLine deletes one active line owned by the caller.
func (s *CartService) RemoveLine(ctx context.Context, caller domain.Caller, lineID string) error {
	line, err := s.carts.GetLine(ctx, lineID)
	if err != nil {
		return fmt.Errorf("get cart line: %w", err)
	}
	if line == nil || !line.Active() {
		return ErrCartItemAbsent
	}
	if line.UserID != caller.UserID {
		return ErrNotAllowed
	}
	if _, err := s.carts.DeleteLine(ctx, lineID); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

// Clear removes every active line of the caller. Ordered lines are kept.
func (s *CartService) Clear(ctx context.Context, caller domain.Caller) error {
	if _, err := s.carts.DeleteActiveLines(ctx, caller.UserID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// List returns the caller's active lines. Lines whose product was deleted are
// purged on the way.
func (s *CartService) List(ctx context.Context, caller domain.Caller) (domain.CartView, error) {
	view := domain.CartView{Items: []domain.CartLineView{}}

	lines, err := s.carts.ListActiveLines(ctx, caller.UserID)
	if err != nil {
		return view, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return view, nil
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.Product.ID] {
			seen[line.Product.ID] = true
			ids = append(ids, line.Product.ID)
		}
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return view, fmt.Errorf("get products: %w", err)
	}

	for _, line := range lines {
		product, ok := products[line.Product.ID]
		if !ok {
			s.purge(ctx, &line)
			continue
		}
		view.Items = append(view.Items, line.View(line.Quantity <= product.Quantity))
		if line.Product.Type == domain.ProductTypeGift {
			view.IsAddressNeeded = true
		}
	}
	return view, nil
}

func (s *CartService) lookup(ctx context.Context, userID, productID string) (*domain.Product, *domain.CartLine, error) {
	var (
		product *domain.Product
		line    *domain.CartLine
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.products.GetProduct(gctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		product = p
		return nil
	})
	g.Go(func() error {
		l, err := s.carts.FindActiveLine(gctx, userID, productID)
		if err != nil {
			return fmt.Errorf("find cart line: %w", err)
		}
		line = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return product, line, nil
}

// purge drops a line whose product no longer exists.
func (s *CartService) purge(ctx context.Context, line *domain.CartLine) {
	if line == nil {
		return
	}
	if _, err := s.carts.DeleteLine(ctx, line.ID); err != nil {
		s.logger.Warn("purge cart line failed",
			slog.String("line_id", line.ID),
			logging.Err(err))
	}
}
