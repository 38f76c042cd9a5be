package httpx

import (
	"context"
	"github.com/ariefcatur/go-order-reconciler/internal/cart"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
)

type CartService interface {
	Add(ctx context.Context, userID string, productID int64, qty int) (int, error)
	Get(ctx context.Context, userID string) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID string, productID int64, qty int) error
	Remove(ctx context.Context, userID string, productID int64) error
	Clear(ctx context.Context, userID string) error
}

type CartHandler struct {
	Cart CartService
	Log  *zap.Logger

	writeErr func(w http.ResponseWriter, r *http.Request, err error)
}

type AddCartReq struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

type UpdateCartReq struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

type CartLineResp struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type CartResp struct {
	Items   []CartLineResp `json:"items"`
	Summary struct {
		TotalItems    int             `json:"totalItems"`
		TotalQuantity int             `json:"totalQuantity"`
		TotalPrice    decimal.Decimal `json:"totalPrice"`
	} `json:"summary"`
}

func (h *CartHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.writeErr == nil {
		h.writeErr = errorWriter(h.Log)
	}
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/cart", h.add)
		r.Get("/cart", h.get)
		r.Patch("/cart/{productId}", h.update)
		r.Delete("/cart/{productId}", h.remove)
		r.Delete("/cart", h.clear)
	})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddCartReq
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	qty, err := h.Cart.Add(r.Context(), principal(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "added to cart",
		"productId": req.ProductID,
		"quantity":  qty,
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cart.Get(r.Context(), principal(r).UserID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var resp CartResp
	resp.Items = make([]CartLineResp, 0, len(c.Items))
	for _, l := range c.Items {
		resp.Items = append(resp.Items, CartLineResp{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal(),
		})
	}
	resp.Summary.TotalItems = c.Summary.TotalItems
	resp.Summary.TotalQuantity = c.Summary.TotalQuantity
	resp.Summary.TotalPrice = c.Summary.TotalPrice
	writeJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req UpdateCartReq
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.Cart.UpdateQuantity(r.Context(), principal(r).UserID, productID, req.Quantity); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "cart updated", "productId": productID, "quantity": req.Quantity})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.Cart.Remove(r.Context(), principal(r).UserID, productID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item removed"})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), principal(r).UserID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}
