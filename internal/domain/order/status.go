package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
)

// ErrForbidden is returned when the caller may not manage orders.
var ErrForbidden = errors.New("not allowed to manage orders")

// stockEffect is what a status transition does to inventory.
type stockEffect int

const (
	effectNone stockEffect = iota
	effectMarkSold
	effectRestore
	effectRestoreSold
)

// transition validates from → to and returns its stock effect.
//
// Live orders may move freely between processing and shipped, be completed or
// be released. Completed orders may only be released, which also reverts the
// sold counter. Released orders are final.
func transition(from, to Status) (stockEffect, error) {
	switch {
	case from == to:
		return effectNone, nil
	case from.Released():
		return effectNone, ErrInvalidTransition
	case from == StatusCompleted:
		if to.Released() {
			return effectRestoreSold, nil
		}
		return effectNone, ErrInvalidTransition
	case to == StatusCompleted:
		return effectMarkSold, nil
	case to.Released():
		return effectRestore, nil
	default:
		return effectNone, nil
	}
}

// UpdateStatus moves an order to a new status and applies the matching stock
// movement in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, caps auth.Capabilities, id, status string) (*Order, error) {
	if !caps.ManageOrders {
		return nil, ErrForbidden
	}
	if status == "" {
		return nil, &InvalidStatusError{Status: status}
	}
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.status", string(to)))

	var updated *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		effect, err := transition(o.Status, to)
		if err != nil {
			return errors.Wrapf(err, "%s to %s", o.Status, to)
		}
		if o.Status == to {
			updated = o
			return nil
		}
		if effect != effectNone {
			if err := s.ledger.Lock(ctx, o.lines()); err != nil {
				return err
			}
		}

		switch effect {
		case effectMarkSold:
			if err := s.markSold(ctx, o); err != nil {
				return err
			}
		case effectRestore:
			if err := s.restore(ctx, o, false); err != nil {
				return err
			}
		case effectRestoreSold:
			if err := s.restore(ctx, o, true); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.orders.UpdateStatus(ctx, o.ID, to, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		zctx.From(ctx).Info("Order status changed",
			zap.String("order_id", o.ID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(to)),
		)
		o.Status = to
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}
