package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/domain/stock"
)

const (
	productColumns = `id, name, price, cost_price, delivery_price, stock_quantity, sold_quantity, in_stock`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	// Rows are locked in id order so concurrent orders cannot deadlock.
	lockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	decrementStockSQL = `UPDATE products
		SET stock_quantity = GREATEST(stock_quantity - $2, 0),
			in_stock = GREATEST(stock_quantity - $2, 0) > 0,
			updated_at = now()
		WHERE id = $1 AND ($3 OR (in_stock AND stock_quantity >= $2))
		RETURNING stock_quantity, sold_quantity, in_stock`

	stockStateSQL = `SELECT stock_quantity, in_stock FROM products WHERE id = $1`

	incrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity + $2,
			in_stock = stock_quantity + $2 > 0,
			sold_quantity = CASE WHEN $3 THEN GREATEST(sold_quantity - $2, 0) ELSE sold_quantity END,
			updated_at = now()
		WHERE id = $1
		RETURNING stock_quantity, sold_quantity, in_stock`

	addSoldSQL = `UPDATE products
		SET sold_quantity = sold_quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock_quantity, sold_quantity, in_stock`

	upsertProductSQL = `INSERT INTO products
		(id, name, price, cost_price, delivery_price, stock_quantity, sold_quantity, in_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6 > 0)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			cost_price = EXCLUDED.cost_price,
			delivery_price = EXCLUDED.delivery_price,
			stock_quantity = EXCLUDED.stock_quantity,
			sold_quantity = EXCLUDED.sold_quantity,
			in_stock = EXCLUDED.in_stock,
			updated_at = now()`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ stock.Store        = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and stock.Store backed by
// PostgreSQL. Every stock mutation is a single conditional UPDATE.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.db).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.db).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Snapshot returns the given products and, inside a transaction, locks their
// rows until it ends.
func (r *ProductRepository) Snapshot(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.db).Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Decrement lowers stock by qty clamped at zero. Without force the update
// only applies when enough stock is available.
func (r *ProductRepository) Decrement(ctx context.Context, id string, qty int, force bool) (stock.Level, error) {
	q := conn(ctx, r.db)
	lvl, err := scanLevel(q.QueryRow(ctx, decrementStockSQL, id, qty, force))
	if err == nil {
		return lvl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return stock.Level{}, fmt.Errorf("decrementing stock of %q: %w", id, err)
	}

	// Nothing updated: tell a missing product from a short one.
	var (
		available int
		inStock   bool
	)
	if err := q.QueryRow(ctx, stockStateSQL, id).Scan(&available, &inStock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Level{}, product.ErrNotFound
		}
		return stock.Level{}, fmt.Errorf("reading stock of %q: %w", id, err)
	}
	if !inStock || available <= 0 {
		return stock.Level{}, stock.ErrOutOfStock
	}
	return stock.Level{}, stock.ErrInsufficientQuantity
}

// Increment raises stock by qty and optionally lowers sold by qty.
func (r *ProductRepository) Increment(ctx context.Context, id string, qty int, decrementSold bool) (stock.Level, error) {
	lvl, err := scanLevel(conn(ctx, r.db).QueryRow(ctx, incrementStockSQL, id, qty, decrementSold))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Level{}, product.ErrNotFound
		}
		return stock.Level{}, fmt.Errorf("incrementing stock of %q: %w", id, err)
	}
	return lvl, nil
}

// AddSold raises the sold counter by qty.
func (r *ProductRepository) AddSold(ctx context.Context, id string, qty int) (stock.Level, error) {
	lvl, err := scanLevel(conn(ctx, r.db).QueryRow(ctx, addSoldSQL, id, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Level{}, product.ErrNotFound
		}
		return stock.Level{}, fmt.Errorf("adding sold of %q: %w", id, err)
	}
	return lvl, nil
}

// Upsert inserts or replaces a catalog entry. Used by seeding.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.db).Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.CostPrice, p.DeliveryPrice, p.StockQuantity, p.SoldQuantity,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.CostPrice, &p.DeliveryPrice,
		&p.StockQuantity, &p.SoldQuantity, &p.InStock,
	)
	return p, err
}

func scanLevel(row pgx.Row) (stock.Level, error) {
	var lvl stock.Level
	err := row.Scan(&lvl.Stock, &lvl.Sold, &lvl.InStock)
	return lvl, err
}
