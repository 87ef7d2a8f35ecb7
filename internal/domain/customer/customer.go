package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no customer record exists for an email.
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicate is returned when a record for the email already exists.
	ErrDuplicate = errors.New("customer already exists")
)

// Customer is a registered or guest customer record. Email is the
// normalized unique key across both kinds.
type Customer struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	City      string
	Address   string
	Orders    int
	Guest     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact holds the mutable contact fields copied from an order.
type Contact struct {
	Name    string
	Phone   string
	City    string
	Address string
}

// Repository persists registered and guest customers.
type Repository interface {
	// IncrementRegistered adds one order to the registered customer with the
	// given normalized email, or returns ErrNotFound. Non-blank contact fields
	// replace the stored ones; blank fields keep them. Stored emails match
	// case-insensitively.
	IncrementRegistered(ctx context.Context, email string, c Contact) error
	// IncrementGuest does the same for guest customers.
	IncrementGuest(ctx context.Context, email string, c Contact) error
	// CreateGuest inserts a new guest record, returning ErrDuplicate when the
	// email is already taken.
	CreateGuest(ctx context.Context, c *Customer) error
	// RecountRegistered sets every registered customer's order counter to the
	// number of orders stored under its email and returns the rows changed.
	RecountRegistered(ctx context.Context) (int64, error)
	// RecountGuests is RecountRegistered for guest customers.
	RecountGuests(ctx context.Context) (int64, error)
}
