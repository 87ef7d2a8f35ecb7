package memory

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/storefront-core/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

// Orders implements order.Repository.
type Orders struct {
	s *Store
}

func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.d.orders[o.ID]; ok {
		return order.ErrDuplicateID
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	r.s.d.orders[o.ID] = cp
	return nil
}

func (r *Orders) GetByID(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.d.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r *Orders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *Orders) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.d.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	r.s.d.orders[id] = o
	return nil
}

// Count returns the number of stored orders.
func (r *Orders) Count(ctx context.Context) int {
	defer r.s.lock(ctx)()
	return len(r.s.d.orders)
}
