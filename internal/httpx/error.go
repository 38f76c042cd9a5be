package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/cart"
	"github.com/ariefcatur/go-order-reconciler/internal/idempotency"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
)

// APIError is the JSON error envelope returned by every endpoint.
type APIError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) APIError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return APIError{Code: code, Message: message, Status: status}
}

func (e APIError) With(key string, v any) APIError {
	d := make(map[string]any, len(e.Details)+1)
	for k, val := range e.Details {
		d[k] = val
	}
	d[key] = v
	e.Details = d
	return e
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, r *http.Request, e APIError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}
	for k, v := range e.Details {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	writeJSON(w, e.Status, payload)
}

// classify maps a domain failure to its stable code. Unknown errors become 500.
func classify(err error) APIError {
	// dicek paling awal supaya 502 membawa order_id; Err di dalamnya berasal dari payment.ErrGateway
	var pse *orders.PaymentSessionError
	if errors.As(err, &pse) {
		return NewError("payment_session_failed", "order created but payment session could not be opened", http.StatusBadGateway).
			With("order_id", pse.OrderID)
	}
	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		return NewError("insufficient_stock", ise.Error(), http.StatusBadRequest).
			With("product_id", ise.ProductID)
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		e := NewError("validation_failed", ve.Error(), http.StatusBadRequest)
		if len(ve.Fields) > 0 {
			e = e.With("fields", ve.Fields)
		}
		return e
	}
	var cse *cart.StockError
	if errors.As(err, &cse) {
		return NewError("stock_exceeded", cse.Error(), http.StatusBadRequest).
			With("available", cse.Available)
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return NewError(m.code, m.err.Error(), m.status)
		}
	}
	return NewError("internal_error", "internal server error", http.StatusInternalServerError)
}

var errorTable = []struct {
	err    error
	code   string
	status int
}{
	{orders.ErrCartEmpty, "cart_empty", http.StatusBadRequest},
	{orders.ErrCartTooLarge, "cart_too_large", http.StatusBadRequest},
	{orders.ErrInsufficientStock, "insufficient_stock", http.StatusBadRequest},
	{orders.ErrInvalidSignature, "invalid_signature", http.StatusBadRequest},
	{orders.ErrMalformedReference, "malformed_reference", http.StatusBadRequest},
	{orders.ErrMalformedNotification, "malformed_notification", http.StatusBadRequest},
	{orders.ErrReferenceMismatch, "reference_mismatch", http.StatusBadRequest},
	{orders.ErrAmountMismatch, "amount_mismatch", http.StatusBadRequest},
	{orders.ErrCannotCancel, "cannot_cancel", http.StatusBadRequest},
	{orders.ErrInvalidStatus, "invalid_status", http.StatusBadRequest},
	{orders.ErrNotPayable, "order_not_payable", http.StatusBadRequest},
	{orders.ErrForbidden, "forbidden", http.StatusForbidden},
	{orders.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{orders.ErrGatewayUnavailable, "gateway_unavailable", http.StatusServiceUnavailable},
	{orders.ErrPaymentSessionFailed, "payment_session_failed", http.StatusBadGateway},
	{cart.ErrInvalidQuantity, "invalid_quantity", http.StatusBadRequest},
	{cart.ErrStockExceeded, "stock_exceeded", http.StatusBadRequest},
	{cart.ErrProductNotFound, "product_not_found", http.StatusNotFound},
	{cart.ErrItemNotFound, "item_not_found", http.StatusNotFound},
	{idempotency.ErrKeyMisuse, "idempotency_key_misuse", http.StatusBadRequest},
	{idempotency.ErrKeyReused, "idempotency_key_reused", http.StatusBadRequest},
	{idempotency.ErrKeyInProgress, "idempotency_in_progress", http.StatusConflict},
	{auth.ErrInvalidToken, "unauthorized", http.StatusUnauthorized},
}

// errorWriter renders err and logs anything that ended up as a 5xx.
func errorWriter(logger *zap.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		e := classify(err)
		if e.Status >= http.StatusInternalServerError {
			logging.For(r.Context(), logger).Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("code", e.Code),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
		}
		writeAPIError(w, r, e)
	}
}
