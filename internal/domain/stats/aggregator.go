package stats

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLowStockThreshold is the stock level at or below which a product
// counts as low on stock.
const DefaultLowStockThreshold = 5

// ProfitSource names where a resolved profit figure came from.
type ProfitSource string

// Profit sources.
const (
	SourceProducts ProfitSource = "products"
	SourceOrders   ProfitSource = "orders"
)

// ResolvedProfit is the profit figure reported to the dashboard.
type ResolvedProfit struct {
	Profit
	Source ProfitSource
}

// Dashboard is the admin statistics snapshot.
type Dashboard struct {
	TotalProducts        int64
	TotalOrders          int64
	TotalUsers           int64
	TotalCustomers       int64
	TotalRevenue         decimal.Decimal
	TotalMessages        int64
	TotalServiceRequests int64
	PendingOrders        int64
	NewMessages          int64
	NewServiceRequests   int64
	TotalStockQuantity   int64
	TotalSoldQuantity    int64
	LowStockProducts     int64
	TotalProfit          decimal.Decimal
	TotalProductsSold    int64
	ProfitSource         ProfitSource
}

// Aggregator combines Source figures into dashboard statistics.
type Aggregator struct {
	source            Source
	lowStockThreshold int
}

// NewAggregator creates an Aggregator. A non-positive threshold falls back to
// DefaultLowStockThreshold.
func NewAggregator(source Source, lowStockThreshold int) *Aggregator {
	if lowStockThreshold <= 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &Aggregator{source: source, lowStockThreshold: lowStockThreshold}
}

// Resolve picks the order-history figure once any completed order has line
// items and the product-counter figure otherwise. Amount and units always
// come from the same source.
func Resolve(products, orders Profit) ResolvedProfit {
	if orders.UnitsSold > 0 {
		return ResolvedProfit{Profit: orders, Source: SourceOrders}
	}
	return ResolvedProfit{Profit: products, Source: SourceProducts}
}

// Profit computes both profit figures and resolves them.
func (a *Aggregator) Profit(ctx context.Context) (ResolvedProfit, error) {
	var products, orders Profit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := a.source.ProductProfit(gctx)
		if err != nil {
			return errors.Wrap(err, "product profit")
		}
		products = v
		return nil
	})
	g.Go(func() error {
		v, err := a.source.OrderProfit(gctx)
		if err != nil {
			return errors.Wrap(err, "order profit")
		}
		orders = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return ResolvedProfit{}, err
	}

	res := Resolve(products, orders)
	zctx.From(ctx).Debug("Profit resolved",
		zap.String("source", string(res.Source)),
		zap.Stringer("products_profit", products.Amount),
		zap.Int64("products_units", products.UnitsSold),
		zap.Stringer("orders_profit", orders.Amount),
		zap.Int64("orders_units", orders.UnitsSold),
	)
	return res, nil
}

// Dashboard gathers every figure concurrently.
func (a *Aggregator) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		profit      ResolvedProfit
		catalog     CatalogTotals
		orderTotals OrderTotals
		customers   CustomerTotals
		inbox       InboxTotals
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := a.Profit(gctx)
		if err != nil {
			return err
		}
		profit = v
		return nil
	})
	g.Go(func() error {
		v, err := a.source.CatalogTotals(gctx, a.lowStockThreshold)
		if err != nil {
			return errors.Wrap(err, "catalog totals")
		}
		catalog = v
		return nil
	})
	g.Go(func() error {
		v, err := a.source.OrderTotals(gctx)
		if err != nil {
			return errors.Wrap(err, "order totals")
		}
		orderTotals = v
		return nil
	})
	g.Go(func() error {
		v, err := a.source.CustomerTotals(gctx)
		if err != nil {
			return errors.Wrap(err, "customer totals")
		}
		customers = v
		return nil
	})
	g.Go(func() error {
		v, err := a.source.InboxTotals(gctx)
		if err != nil {
			return errors.Wrap(err, "inbox totals")
		}
		inbox = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalProducts:        catalog.Products,
		TotalOrders:          orderTotals.Orders,
		TotalUsers:           customers.Registered,
		TotalCustomers:       customers.Registered + customers.Guests,
		TotalRevenue:         orderTotals.Revenue,
		TotalMessages:        inbox.Messages,
		TotalServiceRequests: inbox.ServiceRequests,
		PendingOrders:        orderTotals.Pending,
		NewMessages:          inbox.NewMessages,
		NewServiceRequests:   inbox.NewServiceRequests,
		TotalStockQuantity:   catalog.Stock,
		TotalSoldQuantity:    catalog.Sold,
		LowStockProducts:     catalog.LowStock,
		TotalProfit:          profit.Amount,
		TotalProductsSold:    profit.UnitsSold,
		ProfitSource:         profit.Source,
	}, nil
}
