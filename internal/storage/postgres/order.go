package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/order"
)

const (
	orderColumns = `id::text, customer_id, customer_email, shop_id, shop_name, lines,
		total_amount, status, pickup_time, special_instructions, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (id, customer_id, customer_email, shop_id, shop_name, lines,
		total_amount, status, pickup_time, special_instructions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, id`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY customer_id, created_at`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists a new order under a freshly generated UUID. The order lines
// are serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) (string, error) {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return "", fmt.Errorf("marshaling order lines: %w", err)
	}

	id := uuid.New()
	_, err = r.pool.Exec(ctx, insertOrderSQL,
		id, o.CustomerID, o.CustomerEmail, o.ShopID, o.ShopName, linesJSON,
		o.TotalAmount, string(o.Status), o.Pickup.String(), o.SpecialInstructions,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("creating order for customer %q: %w", o.CustomerID, err)
	}

	return id.String(), nil
}

// Transition performs a compare-and-set of the order status.
func (r *OrderRepository) Transition(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return order.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, transitionOrderSQL, uid, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, uid).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusMismatch
}

// Get returns a single order by its identifier.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, order.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getOrderSQL, uid)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Each streams every stored order to fn, grouped by customer. Iteration stops
// at the first error returned by fn.
func (r *OrderRepository) Each(ctx context.Context, fn func(*order.Order) error) error {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return fmt.Errorf("scanning order: %w", err)
		}
		if err := fn(&o); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating orders: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		total     decimal.Decimal
		status    string
		pickup    string
	)
	if err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerEmail, &o.ShopID, &o.ShopName, &linesJSON,
		&total, &status, &pickup, &o.SpecialInstructions, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}

	var lines []cart.Line
	if err := json.Unmarshal(linesJSON, &lines); err != nil {
		return o, fmt.Errorf("unmarshaling lines of order %q: %w", o.ID, err)
	}
	st, err := order.ParseStatus(status)
	if err != nil {
		return o, err
	}

	o.Lines = lines
	o.TotalAmount = total
	o.Status = st
	o.Pickup = order.ParsePickup(pickup)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}
