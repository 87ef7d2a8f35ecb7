// Package stats computes the admin dashboard figures.
package stats

import (
	"context"

	"github.com/shopspring/decimal"
)

// Profit is a profit figure together with the units it was earned on.
type Profit struct {
	Amount    decimal.Decimal
	UnitsSold int64
}

// CatalogTotals are inventory figures over the whole catalog.
type CatalogTotals struct {
	Products int64
	Stock    int64
	Sold     int64
	LowStock int64
}

// OrderTotals are order figures. Revenue excludes released orders.
type OrderTotals struct {
	Orders  int64
	Pending int64
	Revenue decimal.Decimal
}

// CustomerTotals counts customer records by kind.
type CustomerTotals struct {
	Registered int64
	Guests     int64
}

// InboxTotals counts messages and service requests; "new" ones are unread.
type InboxTotals struct {
	Messages           int64
	NewMessages        int64
	ServiceRequests    int64
	NewServiceRequests int64
}

// Source provides the raw figures the Aggregator combines.
type Source interface {
	// ProductProfit sums sold × (price − cost − delivery) over all products.
	ProductProfit(ctx context.Context) (Profit, error)
	// OrderProfit sums quantity × (unit price − cost − delivery) over lines of
	// completed orders, using the product's current cost and delivery price.
	// Lines whose product no longer exists count with zero cost.
	OrderProfit(ctx context.Context) (Profit, error)

	CatalogTotals(ctx context.Context, lowStockThreshold int) (CatalogTotals, error)
	OrderTotals(ctx context.Context) (OrderTotals, error)
	CustomerTotals(ctx context.Context) (CustomerTotals, error)
	InboxTotals(ctx context.Context) (InboxTotals, error)
}
