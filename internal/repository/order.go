package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-core/internal/domain/order"
)

const (
	orderColumns = `id, total, status, customer_name, customer_phone, city, address, email, user_id,
		payment_session_id, payment_method, payment_status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderByIDSQL + ` FOR UPDATE`

	getOrderItemsSQL = `SELECT product_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
)

var orderItemColumns = []string{"order_id", "position", "product_id", "name", "quantity", "unit_price"}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order and copies its items into order_items. Run it
// inside a transaction so both land together.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.db)
	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.Total, string(o.Status), o.CustomerName, o.CustomerPhone, o.City, o.Address,
		o.Email, o.UserID, o.PaymentSessionID, o.PaymentMethod, o.PaymentStatus,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateID
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	rows := make([][]any, len(o.Items))
	for i, item := range o.Items {
		rows[i] = []any{o.ID, i, item.ProductID, item.Name, item.Quantity, item.UnitPrice}
	}
	if _, err := q.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copying items of order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderByIDSQL, id)
}

// GetForUpdate returns an order with its items and locks the order row.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, lockOrderSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	q := conn(ctx, r.db)
	rows, err := q.Query(ctx, sql, id)
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

	rows, err = q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var item order.Item
		err := row.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning items of order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus sets the status of an existing order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx, updateOrderStatusSQL, id, string(status), at)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Total, &status, &o.CustomerName, &o.CustomerPhone, &o.City, &o.Address,
		&o.Email, &o.UserID, &o.PaymentSessionID, &o.PaymentMethod, &o.PaymentStatus,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
