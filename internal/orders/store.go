package orders

import (
	"context"
	"time"
)

// Store is the ledger. Every mutation of stock or order status goes through WithinTx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) (Page, error)
	// SetPaymentSession only touches orders that are still PENDING.
	SetPaymentSession(ctx context.Context, id int64, ref, token, redirectURL string) error
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

type Tx interface {
	LoadCart(ctx context.Context, userID string) ([]CartLine, error)
	ClearCart(ctx context.Context, userID string) error

	// DecrementStock returns false when stock < qty; nothing is changed then.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, qty int) error

	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id int64) (Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	// UpdateStatus keeps the stored payment type when paymentType is empty.
	UpdateStatus(ctx context.Context, id int64, status Status, paymentType string) error
	CancelPending(ctx context.Context, id int64, userID string) (bool, error)
	CancelAbandoned(ctx context.Context, id int64, cutoff time.Time) (bool, error)
}
