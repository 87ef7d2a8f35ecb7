package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-core/internal/domain/stock"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses.
const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
	StatusRefunded   Status = "refunded"
)

// ParseStatus validates a status string. Empty input yields StatusProcessing.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "":
		return StatusProcessing, nil
	case StatusProcessing, StatusShipped, StatusCompleted,
		StatusCancelled, StatusReturned, StatusRefunded:
		return st, nil
	default:
		return "", &InvalidStatusError{Status: s}
	}
}

// Live reports whether the order still holds reserved inventory that has not
// been sold.
func (s Status) Live() bool {
	return s == StatusProcessing || s == StatusShipped
}

// Released reports whether the order's inventory has been given back.
func (s Status) Released() bool {
	return s == StatusCancelled || s == StatusReturned || s == StatusRefunded
}

// Order is a persisted customer order. Items and Total never change after
// creation.
type Order struct {
	ID               string
	Items            []Item
	Total            decimal.Decimal
	Status           Status
	CustomerName     string
	CustomerPhone    string
	City             string
	Address          string
	Email            string
	UserID           string
	PaymentSessionID string
	PaymentMethod    string
	PaymentStatus    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item is a single line of an order with the unit price captured at creation.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal is the line amount.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (o *Order) lines() []stock.Line {
	lines := make([]stock.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = stock.Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts a new order, returning ErrDuplicateID if the id is taken.
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate is GetByID that also locks the order row for the rest of
	// the surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// UpdateStatus sets the status of an existing order.
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// Transactor runs fn inside one store transaction. The transaction travels in
// the context passed to fn; returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
