package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory ledger. WithinTx serialises transactions and only
// publishes the working copy when fn returns nil.
type memStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	products  map[int64]Product
	carts     map[string]map[int64]int
	orders    map[int64]Order
	nextOrder int64
	nextItem  int64
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		products: map[int64]Product{},
		carts:    map[string]map[int64]int{},
		orders:   map[int64]Order{},
	}}
}

func (s memState) clone() memState {
	out := memState{
		products:  make(map[int64]Product, len(s.products)),
		carts:     make(map[string]map[int64]int, len(s.carts)),
		orders:    make(map[int64]Order, len(s.orders)),
		nextOrder: s.nextOrder,
		nextItem:  s.nextItem,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for u, lines := range s.carts {
		m := make(map[int64]int, len(lines))
		for k, v := range lines {
			m[k] = v
		}
		out.carts[u] = m
	}
	for k, v := range s.orders {
		out.orders[k] = copyOrder(v)
	}
	return out
}

func copyOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func (s *memStore) addProduct(id int64, name, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[id] = Product{ID: id, SellerID: "seller-1", Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func (s *memStore) addToCart(userID string, productID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.carts[userID] == nil {
		s.state.carts[userID] = map[int64]int{}
	}
	s.state.carts[userID][productID] += qty
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id].Stock
}

func (s *memStore) cartSize(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.carts[userID])
}

func (s *memStore) order(id int64) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.state.orders[id])
}

func (s *memStore) backdate(id int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.state.orders[id]
	o.CreatedAt = o.CreatedAt.Add(-d)
	s.state.orders[id] = o
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *memStore) ListOrders(_ context.Context, f ListFilter) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Order
	for _, o := range s.state.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, copyOrder(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	p := Page{Total: len(all), Page: f.Page, Limit: f.Limit}
	start := f.Offset()
	if start < len(all) {
		end := start + f.Limit
		if end > len(all) {
			end = len(all)
		}
		p.Orders = all[start:end]
	}
	return p, nil
}

func (s *memStore) SetPaymentSession(_ context.Context, id int64, ref, token, redirectURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok || o.Status != StatusPending {
		return nil
	}
	o.ExternalRef, o.SessionToken, o.RedirectURL = ref, token, redirectURL
	s.state.orders[id] = o
	return nil
}

func (s *memStore) ListAbandoned(_ context.Context, cutoff time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, o := range s.state.orders {
		if o.Status == StatusPending && o.SessionToken == "" && o.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memTx struct{ st *memState }

func (t *memTx) LoadCart(_ context.Context, userID string) ([]CartLine, error) {
	var out []CartLine
	for pid, qty := range t.st.carts[userID] {
		p := t.st.products[pid]
		out = append(out, CartLine{ProductID: pid, ProductName: p.Name, SellerID: p.SellerID, Quantity: qty, UnitPrice: p.Price, Stock: p.Stock})
	}
	return out, nil
}

func (t *memTx) ClearCart(_ context.Context, userID string) error {
	delete(t.st.carts, userID)
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) (bool, error) {
	p, ok := t.st.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	t.st.products[productID] = p
	return true, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID int64, qty int) error {
	p := t.st.products[productID]
	p.Stock += qty
	t.st.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	t.st.nextOrder++
	o.ID = t.st.nextOrder
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		t.st.nextItem++
		o.Items[i].ID = t.st.nextItem
		o.Items[i].OrderID = o.ID
	}
	t.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) OrderItems(_ context.Context, orderID int64) ([]OrderItem, error) {
	return copyOrder(t.st.orders[orderID]).Items, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id int64, status Status, paymentType string) error {
	o, ok := t.st.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if paymentType != "" {
		o.PaymentType = paymentType
	}
	t.st.orders[id] = o
	return nil
}

func (t *memTx) CancelPending(_ context.Context, id int64, userID string) (bool, error) {
	o, ok := t.st.orders[id]
	if !ok || o.UserID != userID || o.Status != StatusPending {
		return false, nil
	}
	o.Status = StatusCanceled
	t.st.orders[id] = o
	return true, nil
}

func (t *memTx) CancelAbandoned(_ context.Context, id int64, cutoff time.Time) (bool, error) {
	o, ok := t.st.orders[id]
	if !ok || o.Status != StatusPending || o.SessionToken != "" || !o.CreatedAt.Before(cutoff) {
		return false, nil
	}
	o.Status = StatusCanceled
	t.st.orders[id] = o
	return true, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	sessionErr  error
	sessions    []payment.SessionRequest
	statuses    map[string]payment.TransactionStatus
	statusErr   error
	statusDelay time.Duration
	statusCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]payment.TransactionStatus{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return payment.Session{}, g.sessionErr
	}
	g.sessions = append(g.sessions, req)
	return payment.Session{Token: "snap-" + req.OrderRef, RedirectURL: "https://pay.example/" + req.OrderRef}, nil
}

func (g *fakeGateway) Status(ctx context.Context, id string) (payment.TransactionStatus, error) {
	g.mu.Lock()
	g.statusCalls++
	delay, err := g.statusDelay, g.statusErr
	st, ok := g.statuses[id]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return payment.TransactionStatus{}, ctx.Err()
		}
	}
	if err != nil {
		return payment.TransactionStatus{}, err
	}
	if !ok {
		return payment.TransactionStatus{}, payment.ErrTransactionNotFound
	}
	return st, nil
}

func (g *fakeGateway) setStatus(st payment.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[st.TransactionID] = st
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (p *recordingPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}
