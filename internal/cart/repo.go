package cart

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Product(ctx context.Context, id int64) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	err := r.DB.QueryRow(ctx, `SELECT id, seller_id, name, price::text, stock FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SellerID, &p.Name, &price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, ErrProductNotFound
	}
	if err != nil {
		return orders.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Product{}, fmt.Errorf("product %d price: %w", id, err)
	}
	return p, nil
}

// Insert dan merge dijaga stok produk dalam satu statement.
func (r *Repo) AddLine(ctx context.Context, userID string, productID int64, qty int) (int, bool, error) {
	var total int
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity)
		SELECT $1, p.id, $3 FROM products p WHERE p.id=$2 AND p.stock >= $3
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at=now()
		WHERE cart_items.quantity + EXCLUDED.quantity <= (SELECT stock FROM products WHERE id = EXCLUDED.product_id)
		RETURNING quantity`, userID, productID, qty).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

func (r *Repo) SetQuantity(ctx context.Context, userID string, productID int64, qty int) (bool, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity=$3, updated_at=now() WHERE user_id=$1 AND product_id=$2`,
		userID, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Lines(ctx context.Context, userID string) ([]orders.CartLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.product_id, p.name, p.seller_id, c.quantity, p.price::text, p.stock
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id=$1
		ORDER BY c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.CartLine{}
	for rows.Next() {
		var (
			l     orders.CartLine
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SellerID, &l.Quantity, &price, &l.Stock); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) Remove(ctx context.Context, userID string, productID int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2`, userID, productID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}
