package repository

import (
	"context"
	"fmt"

	"github.com/xenking/storefront-core/internal/domain/stats"
)

const (
	productProfitSQL = `SELECT
			COALESCE(SUM(sold_quantity * (price - cost_price - delivery_price)), 0),
			COALESCE(SUM(sold_quantity), 0)::bigint
		FROM products`

	// Lines of deleted products count with zero cost and delivery.
	orderProfitSQL = `SELECT
			COALESCE(SUM(oi.quantity * (oi.unit_price - COALESCE(p.cost_price, 0) - COALESCE(p.delivery_price, 0))), 0),
			COALESCE(SUM(oi.quantity), 0)::bigint
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.status = 'completed'`

	catalogTotalsSQL = `SELECT
			COUNT(*),
			COALESCE(SUM(stock_quantity), 0)::bigint,
			COALESCE(SUM(sold_quantity), 0)::bigint,
			COUNT(*) FILTER (WHERE stock_quantity <= $1)
		FROM products`

	orderTotalsSQL = `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COALESCE(SUM(total) FILTER (WHERE status NOT IN ('cancelled', 'returned', 'refunded')), 0)
		FROM orders`

	customerTotalsSQL = `SELECT
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM guest_customers)`

	inboxTotalsSQL = `SELECT
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE status = 'new'),
			(SELECT COUNT(*) FROM service_requests),
			(SELECT COUNT(*) FROM service_requests WHERE status = 'new')`
)

var _ stats.Source = (*StatsRepository)(nil)

// StatsRepository computes dashboard figures with aggregate queries.
type StatsRepository struct {
	db DB
}

// NewStatsRepository returns a StatsRepository that uses the given pool.
func NewStatsRepository(db DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) ProductProfit(ctx context.Context) (stats.Profit, error) {
	var p stats.Profit
	if err := conn(ctx, r.db).QueryRow(ctx, productProfitSQL).Scan(&p.Amount, &p.UnitsSold); err != nil {
		return stats.Profit{}, fmt.Errorf("product profit: %w", err)
	}
	return p, nil
}

func (r *StatsRepository) OrderProfit(ctx context.Context) (stats.Profit, error) {
	var p stats.Profit
	if err := conn(ctx, r.db).QueryRow(ctx, orderProfitSQL).Scan(&p.Amount, &p.UnitsSold); err != nil {
		return stats.Profit{}, fmt.Errorf("order profit: %w", err)
	}
	return p, nil
}

func (r *StatsRepository) CatalogTotals(ctx context.Context, lowStockThreshold int) (stats.CatalogTotals, error) {
	var t stats.CatalogTotals
	err := conn(ctx, r.db).QueryRow(ctx, catalogTotalsSQL, lowStockThreshold).Scan(
		&t.Products, &t.Stock, &t.Sold, &t.LowStock,
	)
	if err != nil {
		return stats.CatalogTotals{}, fmt.Errorf("catalog totals: %w", err)
	}
	return t, nil
}

func (r *StatsRepository) OrderTotals(ctx context.Context) (stats.OrderTotals, error) {
	var t stats.OrderTotals
	if err := conn(ctx, r.db).QueryRow(ctx, orderTotalsSQL).Scan(&t.Orders, &t.Pending, &t.Revenue); err != nil {
		return stats.OrderTotals{}, fmt.Errorf("order totals: %w", err)
	}
	return t, nil
}

func (r *StatsRepository) CustomerTotals(ctx context.Context) (stats.CustomerTotals, error) {
	var t stats.CustomerTotals
	if err := conn(ctx, r.db).QueryRow(ctx, customerTotalsSQL).Scan(&t.Registered, &t.Guests); err != nil {
		return stats.CustomerTotals{}, fmt.Errorf("customer totals: %w", err)
	}
	return t, nil
}

func (r *StatsRepository) InboxTotals(ctx context.Context) (stats.InboxTotals, error) {
	var t stats.InboxTotals
	err := conn(ctx, r.db).QueryRow(ctx, inboxTotalsSQL).Scan(
		&t.Messages, &t.NewMessages, &t.ServiceRequests, &t.NewServiceRequests,
	)
	if err != nil {
		return stats.InboxTotals{}, fmt.Errorf("inbox totals: %w", err)
	}
	return t, nil
}
