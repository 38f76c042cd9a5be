package orders

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultMaxCartLines = 20

var tracer = otel.Tracer("github.com/ariefcatur/go-order-reconciler/internal/orders")

// Gateway is the payment gateway as seen by the order services.
type Gateway interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error)
	Status(ctx context.Context, id string) (payment.TransactionStatus, error)
}

type Builder struct {
	store    Store
	gateway  Gateway
	events   *EventBus
	log      *zap.Logger
	maxLines int
	now      func() time.Time
}

func NewBuilder(store Store, gw Gateway, events *EventBus, logger *zap.Logger, maxLines int) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxCartLines
	}
	return &Builder{store: store, gateway: gw, events: events, log: logger, maxLines: maxLines, now: time.Now}
}

// CreateOrder turns the user's cart into a PENDING order and opens a payment session.
// When only the session fails the order is kept and a *PaymentSessionError is returned
// together with the order id.
func (b *Builder) CreateOrder(ctx context.Context, userID string) (Checkout, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var order Order
	err := b.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.LoadCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}
		if len(lines) > b.maxLines {
			return ErrCartTooLarge
		}

		// urutan lock konsisten antar checkout yang barangnya overlap
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		total := decimal.Zero
		items := make([]OrderItem, 0, len(lines))
		for _, l := range lines {
			ok, err := tx.DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return fmt.Errorf("reserve product %d: %w", l.ProductID, err)
			}
			if !ok {
				return &InsufficientStockError{ProductID: l.ProductID, ProductName: l.ProductName}
			}
			total = total.Add(l.Subtotal())
			items = append(items, OrderItem{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
			})
		}

		order = Order{UserID: userID, TotalPrice: total, Status: StatusPending, Items: items}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Checkout{}, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	logging.For(ctx, b.log).Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", order.TotalPrice.String()),
		zap.Int("lines", len(order.Items)),
	)
	b.events.orderCreated(ctx, order)

	return b.openSession(ctx, order)
}

// RetryPayment opens a fresh gateway session for a PENDING order owned by userID.
func (b *Builder) RetryPayment(ctx context.Context, userID string, orderID int64) (Checkout, error) {
	ctx, span := tracer.Start(ctx, "orders.RetryPayment")
	defer span.End()

	o, err := b.store.GetOrder(ctx, orderID)
	if err != nil {
		return Checkout{}, err
	}
	if o.UserID != userID {
		return Checkout{}, ErrForbidden
	}
	if o.Status != StatusPending {
		return Checkout{}, ErrNotPayable
	}
	return b.openSession(ctx, o)
}

// Dipanggil di luar transaksi: jangan tahan lock DB selama call ke gateway.
func (b *Builder) openSession(ctx context.Context, o Order) (Checkout, error) {
	ref := ExternalRef(o.ID, b.now())
	req := payment.SessionRequest{
		OrderRef:    ref,
		GrossAmount: o.TotalPrice,
		CustomerID:  o.UserID,
		Items:       make([]payment.Item, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, payment.Item{
			ID:       strconv.FormatInt(it.ProductID, 10),
			Name:     it.ProductName,
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
		})
	}

	log := logging.For(ctx, b.log).With(zap.Int64("order_id", o.ID), zap.String("order_ref", ref))

	sess, err := b.gateway.CreateSession(ctx, req)
	if err != nil {
		log.Warn("payment session failed, order stays pending", zap.Error(err))
		return Checkout{OrderID: o.ID}, &PaymentSessionError{OrderID: o.ID, Err: err}
	}

	if err := b.store.SetPaymentSession(context.WithoutCancel(ctx), o.ID, ref, sess.Token, sess.RedirectURL); err != nil {
		log.Error("persist payment session", zap.Error(err))
		return Checkout{OrderID: o.ID}, &PaymentSessionError{OrderID: o.ID, Err: err}
	}

	log.Info("payment session created")
	return Checkout{OrderID: o.ID, SessionToken: sess.Token, RedirectURL: sess.RedirectURL}, nil
}

// ExternalRef builds the gateway-facing reference, unique per session attempt.
func ExternalRef(orderID int64, at time.Time) string {
	return fmt.Sprintf("order-%d-%d", orderID, at.UnixMilli())
}

// ParseExternalRef extracts the internal order id from "order-{id}-{ts}".
func ParseExternalRef(ref string) (int64, error) {
	parts := strings.Split(ref, "-")
	if len(parts) != 3 || parts[0] != "order" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}
	return id, nil
}
