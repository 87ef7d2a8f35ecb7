package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item together with its inventory counters.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	CostPrice     decimal.Decimal
	DeliveryPrice decimal.Decimal
	StockQuantity int
	SoldQuantity  int
	InStock       bool
}

// UnitMargin is the profit of selling one unit at the given price after cost
// and delivery.
func (p Product) UnitMargin(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.CostPrice).Sub(p.DeliveryPrice)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
