// Package stock owns the per-product available and sold counters.
//
// Every mutation goes through a single atomic store operation so that two
// concurrent reservations of the last unit cannot both succeed. The ledger
// itself holds no state.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/product"
)

var (
	// ErrOutOfStock is returned when the product is not in stock at all.
	ErrOutOfStock = errors.New("insufficient availability: out of stock")
	// ErrInsufficientQuantity is returned when the product is in stock but
	// holds fewer units than requested.
	ErrInsufficientQuantity = errors.New("insufficient availability: not enough units")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// IsInsufficient reports whether err is one of the availability errors.
func IsInsufficient(err error) bool {
	return errors.Is(err, ErrOutOfStock) || errors.Is(err, ErrInsufficientQuantity)
}

// Level is the state of a product's counters after a mutation.
type Level struct {
	Stock   int
	Sold    int
	InStock bool
}

// Store is the persistence contract of the ledger. Implementations apply each
// call as one atomic read-modify-write and keep InStock == (Stock > 0).
type Store interface {
	// Snapshot returns the current state of the given products. Inside a
	// transaction the rows stay locked until it ends. Missing ids are omitted.
	Snapshot(ctx context.Context, ids []string) ([]product.Product, error)
	// Decrement lowers stock by qty, clamped at zero. Unless force is set it
	// fails with ErrOutOfStock or ErrInsufficientQuantity instead of applying.
	Decrement(ctx context.Context, id string, qty int, force bool) (Level, error)
	// Increment raises stock by qty and, if decrementSold is set, lowers the
	// sold counter by qty clamped at zero.
	Increment(ctx context.Context, id string, qty int, decrementSold bool) (Level, error)
	// AddSold raises the sold counter by qty.
	AddSold(ctx context.Context, id string, qty int) (Level, error)
}

// Reservation is the outcome of a successful reserve or restore.
type Reservation struct {
	NewStock int
	InStock  bool
}

// Line is one requested product quantity.
type Line struct {
	ProductID string
	Quantity  int
}

// Ledger implements reserve/restore semantics on top of a Store.
type Ledger struct {
	store Store
}

// NewLedger creates a Ledger backed by the given Store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve decrements available stock for one product. With bypass the
// availability check is skipped but the decrement still clamps at zero.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int, bypass bool) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	lvl, err := l.store.Decrement(ctx, productID, qty, bypass)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{NewStock: lvl.Stock, InStock: lvl.InStock}, nil
}

// Restore gives qty units back to the product, optionally reverting the sold
// counter as well (returns).
func (l *Ledger) Restore(ctx context.Context, productID string, qty int, alsoDecrementSold bool) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	lvl, err := l.store.Increment(ctx, productID, qty, alsoDecrementSold)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{NewStock: lvl.Stock, InStock: lvl.InStock}, nil
}

// MarkSold records qty units of the product as sold.
func (l *Ledger) MarkSold(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	_, err := l.store.AddSold(ctx, productID, qty)
	return err
}

// Validate checks every line against one snapshot of the catalog and returns
// one message per offending line. Messages never name the product. Lines that
// reference a missing product are logged and skipped.
func (l *Ledger) Validate(ctx context.Context, lines []Line) ([]string, error) {
	ids := productIDs(lines)
	products, err := l.store.Snapshot(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot stock")
	}
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		details  []string
		demanded = make(map[string]int, len(ids))
	)
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			zctx.From(ctx).Warn("Stock validation skipped missing product",
				zap.String("product_id", line.ProductID),
				zap.Int("line", i+1),
			)
			continue
		}
		demanded[line.ProductID] += line.Quantity
		switch {
		case !p.InStock || p.StockQuantity <= 0:
			details = append(details, fmt.Sprintf("item %d: %s", i+1, "out of stock"))
		case p.StockQuantity < demanded[line.ProductID]:
			details = append(details, fmt.Sprintf("item %d: %s", i+1, "insufficient quantity available"))
		}
	}
	return details, nil
}

// Lock takes the row locks of every product in lines, in id order, without
// checking availability. Call it before the first mutation of a transaction.
func (l *Ledger) Lock(ctx context.Context, lines []Line) error {
	if _, err := l.store.Snapshot(ctx, productIDs(lines)); err != nil {
		return errors.Wrap(err, "lock stock")
	}
	return nil
}

func productIDs(lines []Line) []string {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
