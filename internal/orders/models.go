package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Product struct {
	ID       int64
	SellerID string
	Name     string
	Price    decimal.Decimal
	Stock    int
}

// CartLine is a cart item joined with the current product snapshot.
type CartLine struct {
	ProductID   int64
	ProductName string
	SellerID    string
	Quantity    int
	UnitPrice   decimal.Decimal
	Stock       int
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID           int64
	UserID       string
	TotalPrice   decimal.Decimal
	Status       Status
	SessionToken string
	RedirectURL  string
	ExternalRef  string
	PaymentType  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Items        []OrderItem
}

// OrderItem harga disalin dari product saat checkout, tidak ikut berubah.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type ListFilter struct {
	UserID string
	Status Status
	Page   int
	Limit  int
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func (p Page) HasNext() bool { return p.Page < p.TotalPages() }
func (p Page) HasPrev() bool { return p.Page > 1 }

// Checkout is what the caller gets back from CreateOrder and RetryPayment.
type Checkout struct {
	OrderID      int64
	SessionToken string
	RedirectURL  string
}
