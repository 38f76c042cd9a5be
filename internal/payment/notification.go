package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Notification is the webhook body posted by the gateway.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// Signature = hex(sha512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the decoded signature in constant time. A signature
// that is not hex or has the wrong length is invalid.
func VerifySignature(n Notification, serverKey string) bool {
	expected, _ := hex.DecodeString(Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey))
	provided, err := hex.DecodeString(n.SignatureKey)
	if err != nil || len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, provided) == 1
}
