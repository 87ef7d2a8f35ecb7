package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/domain/stock"
)

const instrumentationName = "github.com/xenking/storefront-core/internal/domain/order"

// ItemRequest is a submitted cart line. Price and Name are only used when the
// product is missing from the catalog.
type ItemRequest struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	// ID is an optional client-generated order id used as an idempotency key.
	ID               string
	Items            []ItemRequest
	CustomerName     string
	CustomerPhone    string
	City             string
	Address          string
	Email            string
	UserID           string
	Status           string
	PaymentSessionID string
	PaymentMethod    string
	PaymentStatus    string
}

// CreateResult holds the created order.
type CreateResult struct {
	Order *Order
	// Replayed is set when an earlier order with the same client id and owner
	// was returned instead of creating a new one.
	Replayed bool
}

// Deps are the collaborators of Service.
type Deps struct {
	Orders    Repository
	Products  product.Repository
	Ledger    *stock.Ledger
	Customers *customer.Reconciler
	Tx        Transactor
	IDs       *IDAllocator

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Service orchestrates order creation and status changes.
type Service struct {
	orders    Repository
	products  product.Repository
	ledger    *stock.Ledger
	customers *customer.Reconciler
	tx        Transactor
	ids       *IDAllocator
	now       func() time.Time

	tracer           trace.Tracer
	created          metric.Int64Counter
	replayed         metric.Int64Counter
	stockRejected    metric.Int64Counter
	reconcileFailed  metric.Int64Counter
	reconcileOutcome metric.Int64Counter
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	if d.IDs == nil {
		d.IDs = NewIDAllocator()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MeterProvider == nil {
		d.MeterProvider = metricnoop.NewMeterProvider()
	}
	if d.TracerProvider == nil {
		d.TracerProvider = tracenoop.NewTracerProvider()
	}

	s := &Service{
		orders:    d.Orders,
		products:  d.Products,
		ledger:    d.Ledger,
		customers: d.Customers,
		tx:        d.Tx,
		ids:       d.IDs,
		now:       d.Now,
		tracer:    d.TracerProvider.Tracer(instrumentationName),
	}

	meter := d.MeterProvider.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if s.replayed, err = meter.Int64Counter("orders.replayed",
		metric.WithDescription("Order submissions answered from an earlier order with the same id"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.replayed")
	}
	if s.stockRejected, err = meter.Int64Counter("orders.stock_rejected",
		metric.WithDescription("Orders rejected by stock validation"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_rejected")
	}
	if s.reconcileFailed, err = meter.Int64Counter("customers.reconcile_failed",
		metric.WithDescription("Customer reconciliation failures"),
	); err != nil {
		return nil, errors.Wrap(err, "customers.reconcile_failed")
	}
	if s.reconcileOutcome, err = meter.Int64Counter("customers.reconciled",
		metric.WithDescription("Customer reconciliation outcomes"),
	); err != nil {
		return nil, errors.Wrap(err, "customers.reconciled")
	}
	return s, nil
}

// Create validates stock, reserves it, persists the order and applies the
// stock effect of the initial status: returned orders restore the stock and
// completed orders count as sold. All stock movement and the insert
// share one transaction. The customer record is reconciled after commit and
// never fails the call.
func (s *Service) Create(ctx context.Context, caps auth.Capabilities, req CreateRequest) (_ *CreateResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{Line: i + 1}
		}
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	identity := s.customers.ResolveIdentity(req.Email, req.UserID)
	id, clientID := s.ids.Resolve(req.ID)
	span.SetAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
		attribute.Bool("order.bypass_stock", caps.BypassStock),
	)

	var (
		created  *Order
		replayed *Order
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if clientID {
			existing, err := s.replayable(ctx, id, identity)
			if err != nil {
				return err
			}
			if existing != nil {
				replayed = existing
				return nil
			}
		}

		o, err := s.place(ctx, caps, id, status, identity, req)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil && clientID && errors.Is(err, ErrDuplicateID) {
		// A concurrent submission with the same id won the insert.
		if existing, gerr := s.replayable(ctx, id, identity); gerr == nil && existing != nil {
			replayed, err = existing, nil
		}
	}
	if err != nil {
		var sve *StockValidationError
		if errors.As(err, &sve) {
			s.stockRejected.Add(ctx, 1)
		}
		return nil, err
	}

	if replayed != nil {
		s.replayed.Add(ctx, 1)
		zctx.From(ctx).Info("Order replayed", zap.String("order_id", replayed.ID))
		return &CreateResult{Order: replayed, Replayed: true}, nil
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(created.Status))))
	s.reconcile(ctx, identity, req)
	return &CreateResult{Order: created}, nil
}

// replayable returns the stored order with the given id when it belongs to
// the same owner, nil when there is none, and ErrDuplicateID when the id is
// taken by someone else.
func (s *Service) replayable(ctx context.Context, id string, identity customer.Identity) (*Order, error) {
	existing, err := s.orders.GetByID(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "get order")
	case existing.Email == identity.Email:
		return existing, nil
	case identity.Synthesized && customer.IsGuestEmail(existing.Email, s.customers.GuestDomain()):
		// Retried guest checkout; the synthesized address differs per attempt.
		return existing, nil
	default:
		return nil, ErrDuplicateID
	}
}

func (s *Service) place(
	ctx context.Context,
	caps auth.Capabilities,
	id string,
	status Status,
	identity customer.Identity,
	req CreateRequest,
) (*Order, error) {
	lg := zctx.From(ctx)

	lines := make([]stock.Line, len(req.Items))
	for i, item := range req.Items {
		lines[i] = stock.Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if !caps.BypassStock && status != StatusReturned {
		details, err := s.ledger.Validate(ctx, lines)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReservationFailed, err)
		}
		if len(details) > 0 {
			return nil, &StockValidationError{Details: details}
		}
	} else if err := s.ledger.Lock(ctx, lines); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReservationFailed, err)
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		catalog[p.ID] = p
	}

	now := s.now()
	o := &Order{
		ID:               id,
		Items:            make([]Item, len(req.Items)),
		Total:            decimal.Zero,
		Status:           status,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		City:             strings.TrimSpace(req.City),
		Address:          strings.TrimSpace(req.Address),
		Email:            identity.Email,
		UserID:           identity.UserID,
		PaymentSessionID: req.PaymentSessionID,
		PaymentMethod:    req.PaymentMethod,
		PaymentStatus:    req.PaymentStatus,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, item := range req.Items {
		line := Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		}
		if p, ok := catalog[item.ProductID]; ok {
			line.Name = p.Name
			line.UnitPrice = p.Price
		}
		o.Items[i] = line
		o.Total = o.Total.Add(line.Subtotal())
	}

	if status != StatusReturned {
		for i, line := range o.Items {
			if _, ok := catalog[line.ProductID]; !ok {
				lg.Warn("Reservation skipped missing product",
					zap.String("order_id", id),
					zap.String("product_id", line.ProductID),
				)
				continue
			}
			if _, err := s.ledger.Reserve(ctx, line.ProductID, line.Quantity, caps.BypassStock); err != nil {
				if stock.IsInsufficient(err) {
					return nil, &StockValidationError{Details: []string{insufficientDetail(i+1, err)}}
				}
				return nil, fmt.Errorf("%w: item %d: %w", ErrReservationFailed, i+1, err)
			}
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return nil, ErrDuplicateID
		}
		return nil, errors.Wrap(err, "create order")
	}

	switch status {
	case StatusReturned:
		if err := s.restore(ctx, o, true); err != nil {
			return nil, errors.Wrap(err, "compensate returned order")
		}
	case StatusCompleted:
		if err := s.markSold(ctx, o); err != nil {
			return nil, err
		}
	}

	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.Total),
	)
	return o, nil
}

func insufficientDetail(line int, err error) string {
	if errors.Is(err, stock.ErrOutOfStock) {
		return fmt.Sprintf("item %d: out of stock", line)
	}
	return fmt.Sprintf("item %d: insufficient quantity available", line)
}

// restore gives every line's stock back. Products that no longer exist are
// skipped.
func (s *Service) restore(ctx context.Context, o *Order, alsoDecrementSold bool) error {
	for _, line := range o.Items {
		_, err := s.ledger.Restore(ctx, line.ProductID, line.Quantity, alsoDecrementSold)
		if errors.Is(err, product.ErrNotFound) {
			zctx.From(ctx).Warn("Restore skipped missing product",
				zap.String("order_id", o.ID),
				zap.String("product_id", line.ProductID),
			)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "restore %s", line.ProductID)
		}
	}
	return nil
}

// markSold adds every line to its product's sold counter. Products that no
// longer exist are skipped.
func (s *Service) markSold(ctx context.Context, o *Order) error {
	for _, line := range o.Items {
		err := s.ledger.MarkSold(ctx, line.ProductID, line.Quantity)
		if errors.Is(err, product.ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "mark sold %s", line.ProductID)
		}
	}
	return nil
}

func (s *Service) reconcile(ctx context.Context, identity customer.Identity, req CreateRequest) {
	name := strings.TrimSpace(req.CustomerName)
	if identity.Email == "" || name == "" {
		return
	}
	outcome, err := s.customers.Reconcile(ctx, identity, customer.Contact{
		Name:    name,
		Phone:   strings.TrimSpace(req.CustomerPhone),
		City:    strings.TrimSpace(req.City),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		s.reconcileFailed.Add(ctx, 1)
		zctx.From(ctx).Error("Customer reconciliation failed",
			zap.String("email", identity.Email),
			zap.Bool("guest", identity.Guest),
			zap.Error(err),
		)
		return
	}
	s.reconcileOutcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome.String()),
		attribute.Bool("guest", identity.Guest),
	))
}
