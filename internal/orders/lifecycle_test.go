package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newFixture(t)
	f.store.addProduct(1, "Laptop", "100", 5)
	f.store.addProduct(2, "Mouse", "10", 4)
	f.store.addToCart("u-1", 1, 2)
	f.store.addToCart("u-1", 2, 4)
	before := []int{f.store.stock(1), f.store.stock(2)}

	co, err := f.builder.CreateOrder(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Zero(t, f.store.stock(2))

	require.ErrorIs(t, f.life.CancelOrder(context.Background(), "u-2", co.OrderID), ErrCannotCancel)
	require.NoError(t, f.life.CancelOrder(context.Background(), "u-1", co.OrderID))

	assert.Equal(t, StatusCanceled, f.store.order(co.OrderID).Status)
	assert.Equal(t, before, []int{f.store.stock(1), f.store.stock(2)})

	require.ErrorIs(t, f.life.CancelOrder(context.Background(), "u-1", co.OrderID), ErrCannotCancel)
	require.ErrorIs(t, f.life.CancelOrder(context.Background(), "u-1", 12345), ErrCannotCancel)
	assert.Equal(t, before, []int{f.store.stock(1), f.store.stock(2)})
}

func TestCancelOrderAfterPaymentFails(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f)
	_, err := f.recon.Handle(context.Background(), deliver(f, o, "tx-1", "settlement", "", "6000000"))
	require.NoError(t, err)

	require.ErrorIs(t, f.life.CancelOrder(context.Background(), "u-1", o.ID), ErrCannotCancel)
	assert.Equal(t, 3, f.store.stock(1))
}

func TestUpdateOrderStatusRestoresOnlyIntoCanceled(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f)

	got, err := f.life.UpdateOrderStatus(context.Background(), o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Equal(t, 3, f.store.stock(1))

	_, err = f.life.UpdateOrderStatus(context.Background(), o.ID, StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.stock(1))

	_, err = f.life.UpdateOrderStatus(context.Background(), o.ID, StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.stock(1), "no double credit")

	// re-open tidak mengurangi stok lagi
	_, err = f.life.UpdateOrderStatus(context.Background(), o.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.stock(1))
	assert.Equal(t, 3, f.changed.count())

	_, err = f.life.UpdateOrderStatus(context.Background(), o.ID, Status("LOST"))
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.life.UpdateOrderStatus(context.Background(), 999, StatusPaid)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetOrderAccess(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f)

	got, err := f.life.GetOrder(context.Background(), auth.Principal{UserID: "u-1", Role: auth.RoleUser}, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	_, err = f.life.GetOrder(context.Background(), auth.Principal{UserID: "u-2", Role: auth.RoleUser}, o.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.life.GetOrder(context.Background(), auth.Principal{UserID: "admin", Role: auth.RoleAdmin}, o.ID)
	require.NoError(t, err)

	_, err = f.life.GetOrder(context.Background(), auth.Principal{UserID: "u-1"}, 999)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrdersPaging(t *testing.T) {
	f := newFixture(t)
	f.store.addProduct(1, "Pen", "1", 100)
	for i := 0; i < 12; i++ {
		f.store.addToCart("u-1", 1, 1)
		_, err := f.builder.CreateOrder(context.Background(), "u-1")
		require.NoError(t, err)
	}
	f.store.addToCart("u-2", 1, 1)
	_, err := f.builder.CreateOrder(context.Background(), "u-2")
	require.NoError(t, err)

	p, err := f.life.ListMyOrders(context.Background(), "u-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageLimit, p.Limit)
	assert.Len(t, p.Orders, 10)
	assert.True(t, p.HasNext())
	assert.False(t, p.HasPrev())
	assert.Equal(t, 2, p.TotalPages())

	p, err = f.life.ListMyOrders(context.Background(), "u-1", 2, 500)
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, p.Limit)
	assert.Empty(t, p.Orders)

	all, err := f.life.ListOrders(context.Background(), "", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 13, all.Total)
	assert.Equal(t, DefaultAdminLimit, all.Limit)

	paid, err := f.life.ListOrders(context.Background(), StatusPaid, 1, 0)
	require.NoError(t, err)
	assert.Zero(t, paid.Total)

	_, err = f.life.ListOrders(context.Background(), Status("nope"), 1, 0)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReleaseAbandoned(t *testing.T) {
	f := newFixture(t)
	f.store.addProduct(1, "Pen", "1", 10)
	f.gateway.sessionErr = fmt.Errorf("down")

	var ids []int64
	for i := 0; i < 3; i++ {
		f.store.addToCart("u-1", 1, 2)
		co, _ := f.builder.CreateOrder(context.Background(), "u-1")
		ids = append(ids, co.OrderID)
	}
	f.gateway.sessionErr = nil
	f.store.addToCart("u-1", 1, 2)
	withSession, err := f.builder.CreateOrder(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.stock(1))

	f.store.backdate(ids[0], time.Hour)
	f.store.backdate(ids[1], time.Hour)
	f.store.backdate(withSession.OrderID, time.Hour)

	n, err := f.life.ReleaseAbandoned(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 6, f.store.stock(1))
	assert.Equal(t, StatusCanceled, f.store.order(ids[0]).Status)
	assert.Equal(t, StatusPending, f.store.order(ids[2]).Status, "too recent")
	assert.Equal(t, StatusPending, f.store.order(withSession.OrderID).Status)

	n, err = f.life.ReleaseAbandoned(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatusHelpers(t *testing.T) {
	st, err := ParseStatus(" paid ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, st)
	assert.True(t, st.Terminal())
	assert.True(t, StatusShipped.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())

	_, err = ParseStatus("refunded")
	require.ErrorIs(t, err, ErrInvalidStatus)

	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusProcessing, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusCanceled))
	assert.False(t, CanTransition(StatusProcessing, StatusPending))
	assert.False(t, CanTransition(StatusShipped, StatusPaid))
}
