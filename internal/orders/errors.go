package orders

import (
	"errors"
	"fmt"
)

var (
	ErrCartEmpty             = errors.New("cart is empty")
	ErrCartTooLarge          = errors.New("cart has too many items")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrPaymentSessionFailed  = errors.New("payment session could not be created")
	ErrInvalidSignature      = errors.New("invalid notification signature")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrMalformedReference    = errors.New("malformed order reference")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrReferenceMismatch     = errors.New("notification does not match gateway status")
	ErrAmountMismatch        = errors.New("gross amount does not match order total")
	ErrOrderNotFound         = errors.New("order not found")
	ErrCannotCancel          = errors.New("order cannot be canceled")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrNotPayable            = errors.New("order is not awaiting payment")
)

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PaymentSessionError: order sudah tersimpan, hanya sesi pembayaran yang gagal.
type PaymentSessionError struct {
	OrderID int64
	Err     error
}

func (e *PaymentSessionError) Error() string {
	return fmt.Sprintf("order %d: %v: %v", e.OrderID, ErrPaymentSessionFailed, e.Err)
}

func (e *PaymentSessionError) Unwrap() []error { return []error{ErrPaymentSessionFailed, e.Err} }
