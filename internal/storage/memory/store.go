// Package memory is an in-process implementation of the storage contracts.
//
// All operations serialize on one lock. A transaction holds the lock for its
// whole duration and restores a snapshot of the data when it fails.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/storefront-core/internal/domain/auth"
	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/product"
)

type data struct {
	products        map[string]product.Product
	orders          map[string]order.Order
	customers       map[string]customer.Customer
	guests          map[string]customer.Customer
	apiKeys         map[string]auth.APIKeyInfo
	messages        []string
	serviceRequests []string
}

func (d *data) clone() *data {
	c := &data{
		products:        maps.Clone(d.products),
		orders:          make(map[string]order.Order, len(d.orders)),
		customers:       maps.Clone(d.customers),
		guests:          maps.Clone(d.guests),
		apiKeys:         maps.Clone(d.apiKeys),
		messages:        slices.Clone(d.messages),
		serviceRequests: slices.Clone(d.serviceRequests),
	}
	for id, o := range d.orders {
		o.Items = slices.Clone(o.Items)
		c.orders[id] = o
	}
	return c
}

// Store holds all data in memory.
type Store struct {
	mu sync.Mutex
	d  *data
}

// New creates an empty Store.
func New() *Store {
	return &Store{d: &data{
		products:  make(map[string]product.Product),
		orders:    make(map[string]order.Order),
		customers: make(map[string]customer.Customer),
		guests:    make(map[string]customer.Customer),
		apiKeys:   make(map[string]auth.APIKeyInfo),
	}}
}

type txKey struct{}

// lock acquires the store lock unless ctx already runs inside a transaction
// of this store.
func (s *Store) lock(ctx context.Context) func() {
	if tx, _ := ctx.Value(txKey{}).(*Store); tx == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx implements order.Transactor. Nested calls join the outer
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, _ := ctx.Value(txKey{}).(*Store); tx == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.InStock = p.StockQuantity > 0
	s.d.products[p.ID] = p
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) (product.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.d.products[id]
	return p, ok
}

// PutCustomer inserts or replaces a registered or guest customer.
func (s *Store) PutCustomer(c customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := customer.NormalizeEmail(c.Email)
	if c.Guest {
		s.d.guests[key] = c
		return
	}
	s.d.customers[key] = c
}

// Customer returns the record for an email of either kind.
func (s *Store) Customer(email string) (customer.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := customer.NormalizeEmail(email)
	if c, ok := s.d.customers[key]; ok {
		return c, true
	}
	c, ok := s.d.guests[key]
	return c, ok
}

// CustomerCount returns the number of registered and guest records.
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.customers) + len(s.d.guests)
}

// PutAPIKey stores an API key under its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.apiKeys[k.KeyHash] = k
}

// AddMessage records a contact message with the given status.
func (s *Store) AddMessage(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.messages = append(s.d.messages, status)
}

// AddServiceRequest records a service request with the given status.
func (s *Store) AddServiceRequest(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.serviceRequests = append(s.d.serviceRequests, status)
}

// Products returns the product and stock views of the store.
func (s *Store) Products() *Products { return &Products{s: s} }

// Orders returns the order view of the store.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Customers returns the customer view of the store.
func (s *Store) Customers() *Customers { return &Customers{s: s} }

// APIKeys returns the API key view of the store.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// Stats returns the statistics view of the store.
func (s *Store) Stats() *Stats { return &Stats{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
