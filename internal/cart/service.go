package cart

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrStockExceeded   = errors.New("stock not sufficient")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

type StockError struct {
	ProductID int64
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("stock not sufficient for product %d, available %d", e.ProductID, e.Available)
}

func (e *StockError) Unwrap() error { return ErrStockExceeded }

type Store interface {
	Product(ctx context.Context, id int64) (orders.Product, error)
	// AddLine merges qty into the user's line while stock allows it. ok is false otherwise.
	AddLine(ctx context.Context, userID string, productID int64, qty int) (total int, ok bool, err error)
	SetQuantity(ctx context.Context, userID string, productID int64, qty int) (ok bool, err error)
	Lines(ctx context.Context, userID string) ([]orders.CartLine, error)
	Remove(ctx context.Context, userID string, productID int64) (bool, error)
	Clear(ctx context.Context, userID string) error
}

type Summary struct {
	TotalItems    int
	TotalQuantity int
	TotalPrice    decimal.Decimal
}

type Cart struct {
	Items   []orders.CartLine
	Summary Summary
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, log: logger}
}

// Add puts qty of a product into the cart, merging with an existing line.
func (s *Service) Add(ctx context.Context, userID string, productID int64, qty int) (int, error) {
	if qty < 1 {
		return 0, ErrInvalidQuantity
	}
	p, err := s.store.Product(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p.Stock < qty {
		return 0, &StockError{ProductID: productID, Available: p.Stock}
	}
	total, ok, err := s.store.AddLine(ctx, userID, productID, qty)
	if err != nil {
		return 0, fmt.Errorf("add cart line: %w", err)
	}
	if !ok {
		return 0, &StockError{ProductID: productID, Available: p.Stock}
	}
	return total, nil
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	lines, err := s.store.Lines(ctx, userID)
	if err != nil {
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	c := Cart{Items: lines, Summary: Summary{TotalItems: len(lines), TotalPrice: decimal.Zero}}
	for _, l := range lines {
		c.Summary.TotalQuantity += l.Quantity
		c.Summary.TotalPrice = c.Summary.TotalPrice.Add(l.Subtotal())
	}
	return c, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID string, productID int64, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	p, err := s.store.Product(ctx, productID)
	if err != nil {
		return err
	}
	if p.Stock < qty {
		return &StockError{ProductID: productID, Available: p.Stock}
	}
	ok, err := s.store.SetQuantity(ctx, userID, productID, qty)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userID string, productID int64) error {
	ok, err := s.store.Remove(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}
