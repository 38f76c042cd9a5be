package payment

import (
	"errors"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("payment: transaction not found")
	ErrGateway             = errors.New("payment: gateway error")
)

type Item struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

type SessionRequest struct {
	OrderRef    string
	GrossAmount decimal.Decimal
	CustomerID  string
	Items       []Item
}

type Session struct {
	Token       string
	RedirectURL string
}

// TransactionStatus is the gateway's own answer to a status query.
type TransactionStatus struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}
