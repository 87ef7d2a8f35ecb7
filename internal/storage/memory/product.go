package memory

import (
	"context"

	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/domain/stock"
)

var (
	_ product.Repository = (*Products)(nil)
	_ stock.Store        = (*Products)(nil)
)

// Products implements product.Repository and stock.Store.
type Products struct {
	s *Store
}

func (r *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.d.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer r.s.lock(ctx)()
	out := make([]product.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.d.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Snapshot is GetByIDs; the transaction lock already excludes other writers.
func (r *Products) Snapshot(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.GetByIDs(ctx, ids)
}

func (r *Products) Decrement(ctx context.Context, id string, qty int, force bool) (stock.Level, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.d.products[id]
	if !ok {
		return stock.Level{}, product.ErrNotFound
	}
	if !force {
		if !p.InStock || p.StockQuantity <= 0 {
			return stock.Level{}, stock.ErrOutOfStock
		}
		if p.StockQuantity < qty {
			return stock.Level{}, stock.ErrInsufficientQuantity
		}
	}
	p.StockQuantity = max(0, p.StockQuantity-qty)
	return r.save(p), nil
}

func (r *Products) Increment(ctx context.Context, id string, qty int, decrementSold bool) (stock.Level, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.d.products[id]
	if !ok {
		return stock.Level{}, product.ErrNotFound
	}
	p.StockQuantity += qty
	if decrementSold {
		p.SoldQuantity = max(0, p.SoldQuantity-qty)
	}
	return r.save(p), nil
}

func (r *Products) AddSold(ctx context.Context, id string, qty int) (stock.Level, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.d.products[id]
	if !ok {
		return stock.Level{}, product.ErrNotFound
	}
	p.SoldQuantity += qty
	return r.save(p), nil
}

// save stores p with InStock recomputed. Callers hold the lock.
func (r *Products) save(p product.Product) stock.Level {
	p.InStock = p.StockQuantity > 0
	r.s.d.products[p.ID] = p
	return stock.Level{Stock: p.StockQuantity, Sold: p.SoldQuantity, InStock: p.InStock}
}
