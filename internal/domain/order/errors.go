package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrNotFound          = errors.New("order not found")
	ErrDuplicateID       = errors.New("order id already exists")
	ErrReservationFailed = errors.New("stock reservation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	Line int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("item %d: quantity must be greater than 0", e.Line)
}

// InvalidStatusError indicates an unknown order status.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Status)
}

// StockValidationError carries one generic message per line item that cannot
// be served from current stock.
type StockValidationError struct {
	Details []string
}

func (e *StockValidationError) Error() string {
	return "stock validation failed: " + strings.Join(e.Details, "; ")
}
