package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/stats"
)

var _ stats.Source = (*Stats)(nil)

const inboxStatusNew = "new"

// Stats implements stats.Source.
type Stats struct {
	s *Store
}

func (r *Stats) ProductProfit(ctx context.Context) (stats.Profit, error) {
	defer r.s.lock(ctx)()
	res := stats.Profit{Amount: decimal.Zero}
	for _, p := range r.s.d.products {
		sold := decimal.NewFromInt(int64(p.SoldQuantity))
		res.Amount = res.Amount.Add(p.UnitMargin(p.Price).Mul(sold))
		res.UnitsSold += int64(p.SoldQuantity)
	}
	return res, nil
}

func (r *Stats) OrderProfit(ctx context.Context) (stats.Profit, error) {
	defer r.s.lock(ctx)()
	res := stats.Profit{Amount: decimal.Zero}
	for _, o := range r.s.d.orders {
		if o.Status != order.StatusCompleted {
			continue
		}
		for _, line := range o.Items {
			margin := line.UnitPrice
			if p, ok := r.s.d.products[line.ProductID]; ok {
				margin = p.UnitMargin(line.UnitPrice)
			}
			res.Amount = res.Amount.Add(margin.Mul(decimal.NewFromInt(int64(line.Quantity))))
			res.UnitsSold += int64(line.Quantity)
		}
	}
	return res, nil
}

func (r *Stats) CatalogTotals(ctx context.Context, lowStockThreshold int) (stats.CatalogTotals, error) {
	defer r.s.lock(ctx)()
	var res stats.CatalogTotals
	for _, p := range r.s.d.products {
		res.Products++
		res.Stock += int64(p.StockQuantity)
		res.Sold += int64(p.SoldQuantity)
		if p.StockQuantity <= lowStockThreshold {
			res.LowStock++
		}
	}
	return res, nil
}

func (r *Stats) OrderTotals(ctx context.Context) (stats.OrderTotals, error) {
	defer r.s.lock(ctx)()
	res := stats.OrderTotals{Revenue: decimal.Zero}
	for _, o := range r.s.d.orders {
		res.Orders++
		if o.Status == order.StatusProcessing {
			res.Pending++
		}
		if !o.Status.Released() {
			res.Revenue = res.Revenue.Add(o.Total)
		}
	}
	return res, nil
}

func (r *Stats) CustomerTotals(ctx context.Context) (stats.CustomerTotals, error) {
	defer r.s.lock(ctx)()
	return stats.CustomerTotals{
		Registered: int64(len(r.s.d.customers)),
		Guests:     int64(len(r.s.d.guests)),
	}, nil
}

func (r *Stats) InboxTotals(ctx context.Context) (stats.InboxTotals, error) {
	defer r.s.lock(ctx)()
	res := stats.InboxTotals{
		Messages:        int64(len(r.s.d.messages)),
		ServiceRequests: int64(len(r.s.d.serviceRequests)),
	}
	for _, st := range r.s.d.messages {
		if st == inboxStatusNew {
			res.NewMessages++
		}
	}
	for _, st := range r.s.d.serviceRequests {
		if st == inboxStatusNew {
			res.NewServiceRequests++
		}
	}
	return res, nil
}
