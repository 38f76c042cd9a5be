package orders

import (
	"context"
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"go.uber.org/zap"
	"time"
)

const (
	DefaultPageLimit  = 10
	DefaultAdminLimit = 20
	MaxPageLimit      = 50
)

type Lifecycle struct {
	store  Store
	events *EventBus
	log    *zap.Logger
}

func NewLifecycle(store Store, events *EventBus, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, events: events, log: logger}
}

// CancelOrder cancels a PENDING order owned by userID and returns its stock.
// Not found, not owned and not pending all yield ErrCannotCancel.
func (l *Lifecycle) CancelOrder(ctx context.Context, userID string, orderID int64) error {
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.CancelPending(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCannotCancel
		}
		items, err := tx.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		return restoreStock(ctx, tx, items)
	})
	if err != nil {
		return err
	}

	logging.For(ctx, l.log).Info("order canceled by user", zap.Int64("order_id", orderID), zap.String("user_id", userID))
	l.events.statusChanged(ctx, OrderStatusChangedPayload{
		OrderID: orderID,
		UserID:  userID,
		From:    StatusPending,
		To:      StatusCanceled,
		Source:  SourceUser,
	})
	return nil
}

// UpdateOrderStatus is the admin override. Stock is returned only on the way into CANCELED.
func (l *Lifecycle) UpdateOrderStatus(ctx context.Context, orderID int64, status Status) (Order, error) {
	if !status.Valid() {
		return Order{}, ErrInvalidStatus
	}

	var (
		updated Order
		prev    Status
	)
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		prev = o.Status
		updated = o
		if prev == status {
			return nil
		}
		if err := tx.UpdateStatus(ctx, orderID, status, ""); err != nil {
			return err
		}
		updated.Status = status
		if prev != StatusCanceled && status == StatusCanceled {
			return restoreStock(ctx, tx, o.Items)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if prev != status {
		logging.For(ctx, l.log).Info("order status overridden",
			zap.Int64("order_id", orderID),
			zap.String("from", string(prev)),
			zap.String("to", string(status)),
		)
		l.events.statusChanged(ctx, OrderStatusChangedPayload{
			OrderID: orderID,
			UserID:  updated.UserID,
			From:    prev,
			To:      status,
			Source:  SourceAdmin,
		})
	}
	return updated, nil
}

func (l *Lifecycle) GetOrder(ctx context.Context, p auth.Principal, orderID int64) (Order, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !p.IsAdmin() && o.UserID != p.UserID {
		return Order{}, ErrForbidden
	}
	return o, nil
}

func (l *Lifecycle) ListMyOrders(ctx context.Context, userID string, page, limit int) (Page, error) {
	page, limit = normalizePage(page, limit, DefaultPageLimit)
	return l.store.ListOrders(ctx, ListFilter{UserID: userID, Page: page, Limit: limit})
}

// ListOrders lists every order, optionally filtered by status. Admin only.
func (l *Lifecycle) ListOrders(ctx context.Context, status Status, page, limit int) (Page, error) {
	if status != "" && !status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	page, limit = normalizePage(page, limit, DefaultAdminLimit)
	return l.store.ListOrders(ctx, ListFilter{Status: status, Page: page, Limit: limit})
}

// ReleaseAbandoned cancels PENDING orders older than olderThan that never got a
// payment session and returns their stock. It returns how many were released.
func (l *Lifecycle) ReleaseAbandoned(ctx context.Context, olderThan time.Duration, batch int) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	ids, err := l.store.ListAbandoned(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		var (
			ok    bool
			owner string
		)
		err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			o, err := tx.LockOrder(ctx, id)
			if err != nil {
				return err
			}
			owner = o.UserID
			// kondisi dicek ulang di dalam transaksi, sesi bisa saja baru dibuat
			ok, err = tx.CancelAbandoned(ctx, id, cutoff)
			if err != nil || !ok {
				return err
			}
			return restoreStock(ctx, tx, o.Items)
		})
		if err != nil {
			return released, err
		}
		if ok {
			released++
			l.events.statusChanged(ctx, OrderStatusChangedPayload{
				OrderID: id,
				UserID:  owner,
				From:    StatusPending,
				To:      StatusCanceled,
				Source:  SourceSweeper,
			})
		}
	}
	if released > 0 {
		logging.For(ctx, l.log).Info("abandoned orders released", zap.Int("count", released))
	}
	return released, nil
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
