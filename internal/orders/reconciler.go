package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"sort"
	"time"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeIgnored Outcome = "ignored"
)

const defaultStatusTimeout = 10 * time.Second

// Reconciler applies gateway notifications to orders. The webhook body is only
// trusted for its signature; the state change comes from the gateway status API.
type Reconciler struct {
	store     Store
	gateway   Gateway
	events    *EventBus
	log       *zap.Logger
	serverKey string
	timeout   time.Duration
}

func NewReconciler(store Store, gw Gateway, events *EventBus, logger *zap.Logger, serverKey string, statusTimeout time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if statusTimeout <= 0 {
		statusTimeout = defaultStatusTimeout
	}
	return &Reconciler{store: store, gateway: gw, events: events, log: logger, serverKey: serverKey, timeout: statusTimeout}
}

// MapStatus translates gateway vocabulary. ok is false when no transition applies.
func MapStatus(transactionStatus, fraudStatus string) (Status, bool) {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "accept":
			return StatusPaid, true
		case "challenge":
			return StatusProcessing, true
		}
		return "", false
	case "settlement":
		return StatusPaid, true
	case "cancel", "deny", "expire", "failure":
		return StatusCanceled, true
	}
	return "", false
}

func (r *Reconciler) Handle(ctx context.Context, n payment.Notification) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "orders.HandleNotification")
	defer span.End()
	span.SetAttributes(attribute.String("order.ref", n.OrderID), attribute.String("gateway.status", n.TransactionStatus))

	outcome, err := r.handle(ctx, n)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, n payment.Notification) (Outcome, error) {
	log := logging.For(ctx, r.log).With(zap.String("order_ref", n.OrderID), zap.String("transaction_id", n.TransactionID))

	if !payment.VerifySignature(n, r.serverKey) {
		log.Error("security: invalid notification signature",
			zap.String("status_code", n.StatusCode),
			zap.String("gross_amount", n.GrossAmount),
		)
		return "", ErrInvalidSignature
	}

	st, err := r.queryStatus(ctx, n)
	if err != nil {
		log.Warn("gateway status query failed", zap.Error(err))
		return "", err
	}
	if st.OrderID != n.OrderID {
		log.Error("security: notification reference differs from gateway status",
			zap.String("gateway_order_ref", st.OrderID),
		)
		return "", ErrReferenceMismatch
	}

	orderID, err := ParseExternalRef(st.OrderID)
	if err != nil {
		return "", err
	}
	gross := st.GrossAmount
	if gross == "" {
		gross = n.GrossAmount
	}
	amount, err := decimal.NewFromString(gross)
	if err != nil {
		return "", fmt.Errorf("%w: gross_amount %q", ErrMalformedNotification, gross)
	}
	target, mapped := MapStatus(st.TransactionStatus, st.FraudStatus)

	log = log.With(zap.Int64("order_id", orderID))

	var (
		outcome  = OutcomeIgnored
		from     Status
		to       Status
		owner    string
		mismatch bool
	)
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from, owner = o.Status, o.UserID

		// PAID/CANCELED/SHIPPED/DELIVERED tidak boleh berubah lagi, termasuk oleh notifikasi yang telat
		if o.Status.Terminal() {
			if !amount.Equal(o.TotalPrice) {
				log.Error("security: amount mismatch on closed order",
					zap.String("expected", o.TotalPrice.String()),
					zap.String("received", gross),
					zap.String("status", string(o.Status)),
				)
			}
			return nil
		}

		if !amount.Equal(o.TotalPrice) {
			log.Error("security: amount mismatch, canceling order",
				zap.String("expected", o.TotalPrice.String()),
				zap.String("received", gross),
				zap.String("user_id", o.UserID),
			)
			if err := tx.UpdateStatus(ctx, o.ID, StatusCanceled, ""); err != nil {
				return err
			}
			mismatch, to = true, StatusCanceled
			return restoreStock(ctx, tx, o.Items)
		}

		if !mapped || target == o.Status || !CanTransition(o.Status, target) {
			return nil
		}

		paymentType := ""
		if target == StatusPaid {
			paymentType = st.PaymentType
		}
		if err := tx.UpdateStatus(ctx, o.ID, target, paymentType); err != nil {
			return err
		}
		if target == StatusCanceled {
			if err := restoreStock(ctx, tx, o.Items); err != nil {
				return err
			}
		}
		outcome, to = OutcomeOK, target
		return nil
	})
	if err != nil {
		return "", err
	}

	if mismatch {
		r.events.statusChanged(ctx, OrderStatusChangedPayload{OrderID: orderID, UserID: owner, From: from, To: to, Source: SourceGateway})
		return "", ErrAmountMismatch
	}
	if outcome == OutcomeOK {
		log.Info("order reconciled", zap.String("from", string(from)), zap.String("to", string(to)))
		r.events.statusChanged(ctx, OrderStatusChangedPayload{
			OrderID:     orderID,
			UserID:      owner,
			From:        from,
			To:          to,
			Source:      SourceGateway,
			PaymentType: st.PaymentType,
		})
	} else {
		log.Debug("notification ignored", zap.String("status", string(from)), zap.String("gateway_status", st.TransactionStatus))
	}
	return outcome, nil
}

// queryStatus bounded by timeout. Any failure is retryable: the gateway redelivers.
func (r *Reconciler) queryStatus(ctx context.Context, n payment.Notification) (payment.TransactionStatus, error) {
	id := n.TransactionID
	if id == "" {
		id = n.OrderID
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st, err := r.gateway.Status(ctx, id)
	if err != nil {
		if errors.Is(err, payment.ErrTransactionNotFound) {
			return payment.TransactionStatus{}, fmt.Errorf("%w: %v", ErrReferenceMismatch, err)
		}
		return payment.TransactionStatus{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return st, nil
}

// restoreStock is the exact inverse of the reservation, in the same product order.
func restoreStock(ctx context.Context, tx Tx, items []OrderItem) error {
	sorted := make([]OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	for _, it := range sorted {
		if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore product %d: %w", it.ProductID, err)
		}
	}
	return nil
}
