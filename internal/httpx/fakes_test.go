package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/cart"
	"github.com/ariefcatur/go-order-reconciler/internal/idempotency"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeCheckout struct {
	mu       sync.Mutex
	calls    int
	checkout orders.Checkout
	err      error
}

func (f *fakeCheckout) CreateOrder(_ context.Context, _ string) (orders.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.checkout, f.err
}

func (f *fakeCheckout) RetryPayment(_ context.Context, _ string, orderID int64) (orders.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	co := f.checkout
	co.OrderID = orderID
	return co, f.err
}

type fakeNotifications struct {
	got     []payment.Notification
	outcome orders.Outcome
	err     error
}

func (f *fakeNotifications) Handle(_ context.Context, n payment.Notification) (orders.Outcome, error) {
	f.got = append(f.got, n)
	return f.outcome, f.err
}

type fakeLifecycle struct {
	orders     map[int64]orders.Order
	page       orders.Page
	lastStatus orders.Status
	lastPage   int
	lastLimit  int
	getCalls   int
	afterGet   func()
	err        error
}

func (f *fakeLifecycle) CancelOrder(_ context.Context, userID string, orderID int64) error {
	if f.err != nil {
		return f.err
	}
	o, ok := f.orders[orderID]
	if !ok || o.UserID != userID || o.Status != orders.StatusPending {
		return orders.ErrCannotCancel
	}
	o.Status = orders.StatusCanceled
	f.orders[orderID] = o
	return nil
}

func (f *fakeLifecycle) UpdateOrderStatus(_ context.Context, orderID int64, status orders.Status) (orders.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o.Status = status
	f.orders[orderID] = o
	return o, nil
}

func (f *fakeLifecycle) GetOrder(_ context.Context, p auth.Principal, orderID int64) (orders.Order, error) {
	f.getCalls++
	if f.afterGet != nil {
		defer f.afterGet()
	}
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if !p.IsAdmin() && o.UserID != p.UserID {
		return orders.Order{}, orders.ErrForbidden
	}
	return o, nil
}

func (f *fakeLifecycle) ListMyOrders(_ context.Context, _ string, page, limit int) (orders.Page, error) {
	f.lastPage, f.lastLimit = page, limit
	return f.page, f.err
}

func (f *fakeLifecycle) ListOrders(_ context.Context, status orders.Status, page, limit int) (orders.Page, error) {
	f.lastStatus, f.lastPage, f.lastLimit = status, page, limit
	return f.page, f.err
}

type fakeCache struct {
	entries map[int64]redisx.OrderStatus
	puts    int
}

func (c *fakeCache) Get(_ context.Context, id int64) (redisx.OrderStatus, bool, error) {
	s, ok := c.entries[id]
	return s, ok, nil
}

func (c *fakeCache) Put(_ context.Context, s redisx.OrderStatus) (bool, error) {
	c.puts++
	if cur, ok := c.entries[s.OrderID]; ok && cur.UpdatedAt.After(s.UpdatedAt) {
		return false, nil
	}
	c.entries[s.OrderID] = s
	return true, nil
}

type fakeCart struct {
	cart   cart.Cart
	addErr error
	added  int
}

func (f *fakeCart) Add(_ context.Context, _ string, _ int64, qty int) (int, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.added += qty
	return f.added, nil
}

func (f *fakeCart) Get(context.Context, string) (cart.Cart, error) { return f.cart, nil }

func (f *fakeCart) UpdateQuantity(_ context.Context, _ string, productID int64, _ int) error {
	for _, l := range f.cart.Items {
		if l.ProductID == productID {
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCart) Remove(_ context.Context, _ string, productID int64) error {
	return f.UpdateQuantity(context.Background(), "", productID, 1)
}

func (f *fakeCart) Clear(context.Context, string) error { return nil }

type memIdemStore struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
}

func (s *memIdemStore) Get(_ context.Context, key string) (idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, idempotency.ErrNotFound
	}
	return rec, nil
}

func (s *memIdemStore) Insert(_ context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key]; ok {
		return idempotency.ErrDuplicateRecord
	}
	s.records[rec.Key] = rec
	return nil
}

func (s *memIdemStore) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

type env struct {
	t         *testing.T
	router    http.Handler
	verifier  *auth.Verifier
	checkout  *fakeCheckout
	notify    *fakeNotifications
	lifecycle *fakeLifecycle
	cache     *fakeCache
	cart      *fakeCart
	idem      *memIdemStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:         t,
		verifier:  auth.NewVerifier(testSecret),
		checkout:  &fakeCheckout{checkout: orders.Checkout{OrderID: 7, SessionToken: "snap-token", RedirectURL: "https://pay.example/7"}},
		notify:    &fakeNotifications{outcome: orders.OutcomeOK},
		lifecycle: &fakeLifecycle{orders: map[int64]orders.Order{}},
		cache:     &fakeCache{entries: map[int64]redisx.OrderStatus{}},
		cart:      &fakeCart{},
		idem:      &memIdemStore{records: map[string]idempotency.Record{}},
	}
	e.router = NewRouter(Deps{
		Verifier: e.verifier,
		Orders: &OrdersHandler{
			Checkout:      e.checkout,
			Notifications: e.notify,
			Lifecycle:     e.lifecycle,
			Cache:         e.cache,
		},
		Cart: &CartHandler{Cart: e.cart},
		Idem: e.idem,
	})
	return e
}

func (e *env) token(userID string, role auth.Role) string {
	tok, err := e.verifier.Issue(auth.Principal{UserID: userID, Role: role}, time.Hour)
	require.NoError(e.t, err)
	return tok
}

// do sends a request; token may be empty for anonymous calls.
func (e *env) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
