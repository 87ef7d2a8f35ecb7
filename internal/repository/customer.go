package repository

import (
	"context"
	"fmt"

	"github.com/xenking/storefront-core/internal/domain/customer"
)

const (
	// Empty contact fields keep the stored value.
	incrementCustomerSQL = `UPDATE %s SET
			name = COALESCE(NULLIF($2, ''), name),
			phone = COALESCE(NULLIF($3, ''), phone),
			city = COALESCE(NULLIF($4, ''), city),
			address = COALESCE(NULLIF($5, ''), address),
			orders = orders + 1,
			updated_at = now()
		WHERE lower(email) = $1`

	createGuestSQL = `INSERT INTO guest_customers
		(id, email, name, phone, city, address, orders, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	recountCustomersSQL = `UPDATE %[1]s AS c SET orders = counted.n, updated_at = now()
		FROM (
			SELECT t.email, COUNT(o.id)::int AS n
			FROM %[1]s t LEFT JOIN orders o ON o.email = lower(t.email)
			GROUP BY t.email
		) AS counted
		WHERE c.email = counted.email AND c.orders <> counted.n`
)

const (
	registeredTable = "customers"
	guestTable      = "guest_customers"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
// Registered and guest customers live in separate tables keyed by
// lower(email); callers pass normalized addresses.
type CustomerRepository struct {
	db DB
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(db DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// IncrementRegistered adds one order to a registered customer.
func (r *CustomerRepository) IncrementRegistered(ctx context.Context, email string, c customer.Contact) error {
	return r.increment(ctx, registeredTable, email, c)
}

// IncrementGuest adds one order to a guest customer.
func (r *CustomerRepository) IncrementGuest(ctx context.Context, email string, c customer.Contact) error {
	return r.increment(ctx, guestTable, email, c)
}

func (r *CustomerRepository) increment(ctx context.Context, table, email string, c customer.Contact) error {
	tag, err := conn(ctx, r.db).Exec(ctx, fmt.Sprintf(incrementCustomerSQL, table),
		email, c.Name, c.Phone, c.City, c.Address,
	)
	if err != nil {
		return fmt.Errorf("incrementing %s %q: %w", table, email, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// CreateGuest inserts a guest customer.
func (r *CustomerRepository) CreateGuest(ctx context.Context, c *customer.Customer) error {
	_, err := conn(ctx, r.db).Exec(ctx, createGuestSQL,
		c.ID, c.Email, c.Name, c.Phone, c.City, c.Address, c.Orders, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return customer.ErrDuplicate
		}
		return fmt.Errorf("creating guest %q: %w", c.Email, err)
	}
	return nil
}

// RecountRegistered recomputes registered customer order counters.
func (r *CustomerRepository) RecountRegistered(ctx context.Context) (int64, error) {
	return r.recount(ctx, registeredTable)
}

// RecountGuests recomputes guest customer order counters.
func (r *CustomerRepository) RecountGuests(ctx context.Context) (int64, error) {
	return r.recount(ctx, guestTable)
}

func (r *CustomerRepository) recount(ctx context.Context, table string) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, fmt.Sprintf(recountCustomersSQL, table))
	if err != nil {
		return 0, fmt.Errorf("recounting %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}
