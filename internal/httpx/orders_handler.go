package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"io"
	"net/http"
	"time"
)

type CheckoutService interface {
	CreateOrder(ctx context.Context, userID string) (orders.Checkout, error)
	RetryPayment(ctx context.Context, userID string, orderID int64) (orders.Checkout, error)
}

type NotificationService interface {
	Handle(ctx context.Context, n payment.Notification) (orders.Outcome, error)
}

type LifecycleService interface {
	CancelOrder(ctx context.Context, userID string, orderID int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) (orders.Order, error)
	GetOrder(ctx context.Context, p auth.Principal, orderID int64) (orders.Order, error)
	ListMyOrders(ctx context.Context, userID string, page, limit int) (orders.Page, error)
	ListOrders(ctx context.Context, status orders.Status, page, limit int) (orders.Page, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.OrderStatus, bool, error)
	Put(ctx context.Context, s redisx.OrderStatus) (bool, error)
}

type OrdersHandler struct {
	Checkout      CheckoutService
	Notifications NotificationService
	Lifecycle     LifecycleService
	Cache         StatusCache
	Log           *zap.Logger

	writeErr func(w http.ResponseWriter, r *http.Request, err error)
}

type CheckoutResp struct {
	Message             string `json:"message"`
	OrderID             int64  `json:"orderId"`
	PaymentSessionToken string `json:"paymentSessionToken"`
	RedirectURL         string `json:"redirectUrl"`
}

type OrderItemResp struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type OrderResp struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"userId"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      orders.Status   `json:"status"`
	PaymentType string          `json:"paymentType,omitempty"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Items       []OrderItemResp `json:"items"`
}

type PageMeta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type OrderListResp struct {
	Data []OrderResp `json:"data"`
	Meta PageMeta    `json:"meta"`
}

type StatusResp struct {
	OrderID   int64     `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Cached    bool      `json:"cached"`
}

type UpdateStatusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router, authn, idem func(http.Handler) http.Handler) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.writeErr == nil {
		h.writeErr = errorWriter(h.Log)
	}

	// webhook publik: keaslian dijaga signature + re-query ke gateway, bukan auth
	r.Post("/order/notification", h.notification)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.With(idem).Post("/order", h.createOrder)
		r.With(idem).Post("/order/{id}/payment", h.retryPayment)
		r.Get("/order/my-orders", h.myOrders)
		r.Get("/order", h.listOrders)
		r.Get("/order/{id}", h.getOrder)
		r.Get("/order/{id}/status", h.getStatus)
		r.Delete("/order/{id}", h.cancelOrder)
		r.Patch("/order/{id}/status", h.updateStatus)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	co, err := h.Checkout.CreateOrder(r.Context(), p.UserID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResp{
		Message:             "order created",
		OrderID:             co.OrderID,
		PaymentSessionToken: co.SessionToken,
		RedirectURL:         co.RedirectURL,
	})
}

func (h *OrdersHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	co, err := h.Checkout.RetryPayment(r.Context(), principal(r).UserID, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResp{
		Message:             "payment session created",
		OrderID:             co.OrderID,
		PaymentSessionToken: co.SessionToken,
		RedirectURL:         co.RedirectURL,
	})
}

func (h *OrdersHandler) notification(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &n)
	}
	if err != nil || n.OrderID == "" {
		logging.For(r.Context(), h.Log).Warn("malformed notification", zap.Error(err))
		h.writeErr(w, r, orders.ErrMalformedNotification)
		return
	}

	outcome, err := h.Notifications.Handle(r.Context(), n)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.Lifecycle.ListMyOrders(r.Context(), principal(r).UserID, page, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResp(res))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(principal(r), auth.RoleAdmin); err != nil {
		h.writeErr(w, r, err)
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var status orders.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, err = orders.ParseStatus(raw); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	res, err := h.Lifecycle.ListOrders(r.Context(), status, page, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResp(res))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	o, err := h.Lifecycle.GetOrder(r.Context(), principal(r), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	p := principal(r)
	ctx := r.Context()

	// 1) coba cache
	if h.Cache != nil {
		cached, ok, err := h.Cache.Get(ctx, id)
		if err != nil {
			logging.For(ctx, h.Log).Warn("status cache read failed", zap.Int64("order_id", id), zap.Error(err))
		}
		if ok && (p.IsAdmin() || cached.UserID == p.UserID) {
			writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: cached.Status, UpdatedAt: cached.UpdatedAt, Cached: true})
			return
		}
	}

	// 2) fallback DB, sekalian cek kepemilikan
	o, err := h.Lifecycle.GetOrder(ctx, p, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	// Put tidak menimpa entry projector yang lebih baru dari hasil baca ini
	if h.Cache != nil {
		entry := redisx.OrderStatus{OrderID: o.ID, UserID: o.UserID, Status: string(o.Status), UpdatedAt: o.UpdatedAt}
		if _, err := h.Cache.Put(ctx, entry); err != nil {
			logging.For(ctx, h.Log).Warn("status cache write failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: o.ID, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.Lifecycle.CancelOrder(r.Context(), principal(r).UserID, id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "order canceled", "orderId": id})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(principal(r), auth.RoleAdmin); err != nil {
		h.writeErr(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	o, err := h.Lifecycle.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func pageParams(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func toOrderResp(o orders.Order) OrderResp {
	items := make([]OrderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResp{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return OrderResp{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalPrice:  o.TotalPrice,
		Status:      o.Status,
		PaymentType: o.PaymentType,
		RedirectURL: o.RedirectURL,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       items,
	}
}

func toListResp(p orders.Page) OrderListResp {
	data := make([]OrderResp, 0, len(p.Orders))
	for _, o := range p.Orders {
		data = append(data, toOrderResp(o))
	}
	return OrderListResp{
		Data: data,
		Meta: PageMeta{
			Total:      p.Total,
			Page:       p.Page,
			Limit:      p.Limit,
			TotalPages: p.TotalPages(),
			HasNext:    p.HasNext(),
			HasPrev:    p.HasPrev(),
		},
	}
}
