package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

// Repo is the Postgres ledger. NUMERIC columns travel as text so decimals never pass through float.
type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, user_id, total_price::text, status,
	COALESCE(session_token, ''), COALESCE(redirect_url, ''), COALESCE(external_ref, ''),
	COALESCE(payment_type, ''), created_at, updated_at`

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = loadItems(ctx, r.DB, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListOrders(ctx context.Context, f ListFilter) (Page, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	page := Page{Page: f.Page, Limit: f.Limit}
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+cond, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return Page{}, err
		}
		page.Orders = append(page.Orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	if len(ids) == 0 {
		return page, nil
	}

	items, err := loadItemsFor(ctx, r.DB, ids)
	if err != nil {
		return Page{}, err
	}
	for i := range page.Orders {
		page.Orders[i].Items = items[page.Orders[i].ID]
	}
	return page, nil
}

func (r *Repo) SetPaymentSession(ctx context.Context, id int64, ref, token, redirectURL string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET external_ref=$2, session_token=$3, redirect_url=$4, updated_at=now()
		WHERE id=$1 AND status='PENDING'`, id, ref, token, redirectURL)
	if err != nil {
		return fmt.Errorf("set payment session: %w", err)
	}
	return nil
}

func (r *Repo) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status='PENDING' AND session_token IS NULL AND created_at < $1
		ORDER BY id LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list abandoned: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

type pgTx struct{ q querier }

func (t *pgTx) LoadCart(ctx context.Context, userID string) ([]CartLine, error) {
	rows, err := t.q.Query(ctx, `
		SELECT c.product_id, p.name, p.seller_id, c.quantity, p.price::text, p.stock
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id=$1
		ORDER BY c.product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CartLine
	for rows.Next() {
		var (
			l     CartLine
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SellerID, &l.Quantity, &price, &l.Stock); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %d price: %w", l.ProductID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) ClearCart(ctx context.Context, userID string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}

// Cek dan kurangi dalam satu statement, tidak ada read-then-write.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	ct, err := t.q.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at=now() WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	_, err := t.q.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at=now() WHERE id=$1`, productID, qty)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO orders(user_id, total_price, status)
		VALUES ($1, $2::numeric, $3)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalPrice.String(), string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := t.q.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)
			RETURNING id`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice.String(),
		).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = loadItems(ctx, t.q, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (t *pgTx) OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return loadItems(ctx, t.q, orderID)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id int64, status Status, paymentType string) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status=$2, payment_type=COALESCE(NULLIF($3, ''), payment_type), updated_at=now()
		WHERE id=$1`, id, string(status), paymentType)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Satu statement sekaligus cek kepemilikan dan status.
func (t *pgTx) CancelPending(ctx context.Context, id int64, userID string) (bool, error) {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status='CANCELED', updated_at=now()
		WHERE id=$1 AND user_id=$2 AND status='PENDING'`, id, userID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) CancelAbandoned(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status='CANCELED', updated_at=now()
		WHERE id=$1 AND status='PENDING' AND session_token IS NULL AND created_at < $2`, id, cutoff)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		total  string
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &total, &status, &o.SessionToken, &o.RedirectURL,
		&o.ExternalRef, &o.PaymentType, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("order %d total: %w", o.ID, err)
	}
	return o, nil
}

const itemColumns = `id, order_id, product_id, product_name, quantity, unit_price::text`

func scanItem(row pgx.Row) (OrderItem, error) {
	var (
		it    OrderItem
		price string
	)
	if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
		return OrderItem{}, err
	}
	var err error
	if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return OrderItem{}, fmt.Errorf("order item %d price: %w", it.ID, err)
	}
	return it, nil
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadItemsFor(ctx context.Context, q querier, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}
