package memory

import (
	"context"
	"time"

	"github.com/xenking/storefront-core/internal/domain/customer"
)

var _ customer.Repository = (*Customers)(nil)

// Customers implements customer.Repository.
type Customers struct {
	s *Store
}

func (r *Customers) IncrementRegistered(ctx context.Context, email string, c customer.Contact) error {
	defer r.s.lock(ctx)()
	return increment(r.s.d.customers, email, c)
}

func (r *Customers) IncrementGuest(ctx context.Context, email string, c customer.Contact) error {
	defer r.s.lock(ctx)()
	return increment(r.s.d.guests, email, c)
}

func increment(m map[string]customer.Customer, email string, c customer.Contact) error {
	rec, ok := m[email]
	if !ok {
		return customer.ErrNotFound
	}
	rec.Name = keepIfBlank(rec.Name, c.Name)
	rec.Phone = keepIfBlank(rec.Phone, c.Phone)
	rec.City = keepIfBlank(rec.City, c.City)
	rec.Address = keepIfBlank(rec.Address, c.Address)
	rec.Orders++
	rec.UpdatedAt = time.Now()
	m[email] = rec
	return nil
}

func keepIfBlank(stored, v string) string {
	if v == "" {
		return stored
	}
	return v
}

func (r *Customers) CreateGuest(ctx context.Context, c *customer.Customer) error {
	defer r.s.lock(ctx)()
	key := customer.NormalizeEmail(c.Email)
	if _, ok := r.s.d.guests[key]; ok {
		return customer.ErrDuplicate
	}
	rec := *c
	rec.Guest = true
	r.s.d.guests[key] = rec
	return nil
}

func (r *Customers) RecountRegistered(ctx context.Context) (int64, error) {
	defer r.s.lock(ctx)()
	return r.recount(r.s.d.customers), nil
}

func (r *Customers) RecountGuests(ctx context.Context) (int64, error) {
	defer r.s.lock(ctx)()
	return r.recount(r.s.d.guests), nil
}

func (r *Customers) recount(m map[string]customer.Customer) int64 {
	counts := make(map[string]int, len(m))
	for _, o := range r.s.d.orders {
		counts[o.Email]++
	}
	var changed int64
	for email, rec := range m {
		if rec.Orders == counts[email] {
			continue
		}
		rec.Orders = counts[email]
		m[email] = rec
		changed++
	}
	return changed
}
