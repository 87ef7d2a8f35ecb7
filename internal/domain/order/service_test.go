package order_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-core/internal/domain/auth"
	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/domain/stats"
	"github.com/xenking/storefront-core/internal/domain/stock"
	"github.com/xenking/storefront-core/internal/storage/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// failingOrders wraps a repository and fails Create.
type failingOrders struct {
	order.Repository
	err error
}

func (f *failingOrders) Create(context.Context, *order.Order) error { return f.err }

// failingCustomers fails every customer write.
type failingCustomers struct {
	customer.Repository
}

func (failingCustomers) IncrementRegistered(context.Context, string, customer.Contact) error {
	return errors.New("customers unavailable")
}

// recordingStock logs the order of stock operations.
type recordingStock struct {
	stock.Store
	mu    sync.Mutex
	calls []string
}

func (r *recordingStock) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingStock) Snapshot(ctx context.Context, ids []string) ([]product.Product, error) {
	r.record("lock " + strings.Join(ids, ","))
	return r.Store.Snapshot(ctx, ids)
}

func (r *recordingStock) Decrement(ctx context.Context, id string, qty int, force bool) (stock.Level, error) {
	r.record("decrement " + id)
	return r.Store.Decrement(ctx, id, qty, force)
}

func (r *recordingStock) Increment(ctx context.Context, id string, qty int, decrementSold bool) (stock.Level, error) {
	r.record("increment " + id)
	return r.Store.Increment(ctx, id, qty, decrementSold)
}

type fixture struct {
	store *memory.Store
	svc   *order.Service
}

func newFixture(t *testing.T, products ...product.Product) *fixture {
	t.Helper()
	store := memory.New()
	for _, p := range products {
		store.PutProduct(p)
	}
	return &fixture{store: store, svc: newService(t, store, store.Orders(), store.Customers())}
}

func newService(t *testing.T, store *memory.Store, orders order.Repository, customers customer.Repository) *order.Service {
	t.Helper()
	svc, err := order.NewService(order.Deps{
		Orders:    orders,
		Products:  store.Products(),
		Ledger:    stock.NewLedger(store.Products()),
		Customers: customer.NewReconciler(customers, ""),
		Tx:        store,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc
}

func (f *fixture) product(t *testing.T, id string) product.Product {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok)
	return p
}

func catalogItem(id string, stockQty, sold int) product.Product {
	return product.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.NewFromInt(100),
		CostPrice:     decimal.NewFromInt(40),
		DeliveryPrice: decimal.NewFromInt(10),
		StockQuantity: stockQty,
		SoldQuantity:  sold,
	}
}

func TestCreate_ReservesAndReconciles(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))

	res, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2, Price: decimal.NewFromInt(100)}},
		CustomerName: "A",
		Email:        "a@x.com",
	})
	require.NoError(t, err)
	require.False(t, res.Replayed)

	o := res.Order
	assert.True(t, order.IsValidID(o.ID), o.ID)
	assert.True(t, decimal.NewFromInt(200).Equal(o.Total))
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, "a@x.com", o.Email)
	assert.Equal(t, testNow, o.CreatedAt)
	assert.Equal(t, "Product P1", o.Items[0].Name)

	p := f.product(t, "P1")
	assert.Equal(t, 3, p.StockQuantity)
	assert.True(t, p.InStock)

	c, ok := f.store.Customer("a@x.com")
	require.True(t, ok)
	assert.Equal(t, 1, c.Orders)
	assert.Equal(t, "A", c.Name)
}

func TestCreate_StockValidationFailure(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 1, 0))

	_, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2, Price: decimal.NewFromInt(100)}},
		CustomerName: "A",
		Email:        "a@x.com",
	})

	var sve *order.StockValidationError
	require.ErrorAs(t, err, &sve)
	require.Len(t, sve.Details, 1)
	assert.NotContains(t, sve.Details[0], "P1")

	assert.Equal(t, 1, f.product(t, "P1").StockQuantity)
	assert.Equal(t, 0, f.store.CustomerCount())
	assert.Equal(t, 0, f.store.Orders().Count(context.Background()))
}

func TestCreate_ReturnedOrderRestoresStock(t *testing.T) {
	f := newFixture(t, catalogItem("P2", 0, 5))

	res, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P2", Quantity: 3}},
		CustomerName: "B",
		Email:        "b@x.com",
		Status:       "returned",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusReturned, res.Order.Status)

	p := f.product(t, "P2")
	assert.Equal(t, 3, p.StockQuantity)
	assert.Equal(t, 2, p.SoldQuantity)
	assert.True(t, p.InStock)
}

func TestCreate_AllOrNothing(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0), catalogItem("P2", 1, 0))

	_, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items: []order.ItemRequest{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 2},
		},
		CustomerName: "A",
		Email:        "a@x.com",
	})

	var sve *order.StockValidationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, []string{"item 2: insufficient quantity available"}, sve.Details)
	assert.Equal(t, 5, f.product(t, "P1").StockQuantity)
	assert.Equal(t, 1, f.product(t, "P2").StockQuantity)
}

func TestCreate_PersistFailureReleasesReservations(t *testing.T) {
	store := memory.New()
	store.PutProduct(catalogItem("P1", 5, 0))
	svc := newService(t, store, &failingOrders{Repository: store.Orders(), err: errors.New("disk full")}, store.Customers())

	_, err := svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2}},
		CustomerName: "A",
		Email:        "a@x.com",
	})
	require.Error(t, err)

	p, _ := store.Product("P1")
	assert.Equal(t, 5, p.StockQuantity)
	assert.Equal(t, 0, store.CustomerCount())
}

func TestCreate_BypassClampsAtZero(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 1, 0))

	res, err := f.svc.Create(context.Background(), auth.Capabilities{BypassStock: true}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 4}},
		CustomerName: "Ops",
		Email:        "ops@x.com",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(res.Order.Total))

	p := f.product(t, "P1")
	assert.Equal(t, 0, p.StockQuantity)
	assert.False(t, p.InStock)
}

func TestCreate_MissingProductSkipped(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))

	res, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items: []order.ItemRequest{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "ghost", Name: "Ghost", Quantity: 2, Price: decimal.NewFromInt(7)},
		},
		CustomerName: "A",
		Email:        "a@x.com",
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(114).Equal(res.Order.Total))
	assert.Equal(t, "Ghost", res.Order.Items[1].Name)
	assert.Equal(t, 4, f.product(t, "P1").StockQuantity)
}

func TestCreate_ClientIDReplay(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))
	req := order.CreateRequest{
		ID:           "PP-LZ3K5XQ0-AB12",
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2}},
		CustomerName: "A",
		Email:        "a@x.com",
	}

	first, err := f.svc.Create(context.Background(), auth.Capabilities{}, req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, first.Order.ID)

	second, err := f.svc.Create(context.Background(), auth.Capabilities{}, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, req.ID, second.Order.ID)

	assert.Equal(t, 3, f.product(t, "P1").StockQuantity)
	c, _ := f.store.Customer("a@x.com")
	assert.Equal(t, 1, c.Orders)
}

func TestCreate_ClientIDOwnedByOther(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))
	req := order.CreateRequest{
		ID:           "PP-LZ3K5XQ0-AB12",
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 1}},
		CustomerName: "A",
		Email:        "a@x.com",
	}
	_, err := f.svc.Create(context.Background(), auth.Capabilities{}, req)
	require.NoError(t, err)

	req.Email = "intruder@x.com"
	_, err = f.svc.Create(context.Background(), auth.Capabilities{}, req)
	require.ErrorIs(t, err, order.ErrDuplicateID)
	assert.Equal(t, 4, f.product(t, "P1").StockQuantity)
}

func TestCreate_ConcurrentClientIDReplay(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 10, 0))
	req := order.CreateRequest{
		ID:           "PP-LZ3K5XQ0-CC99",
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 3}},
		CustomerName: "A",
		Email:        "a@x.com",
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), auth.Capabilities{}, req)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 7, f.product(t, "P1").StockQuantity)
	assert.Equal(t, 1, f.store.Orders().Count(context.Background()))
}

func TestCreate_GuestSentinel(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))

	res, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 1}},
		CustomerName: "Guest Buyer",
		Email:        "guest",
	})
	require.NoError(t, err)

	o := res.Order
	assert.Regexp(t, `^guest-\d+@guest\.local$`, o.Email)
	assert.Equal(t, o.Email, o.UserID)
	c, ok := f.store.Customer(o.Email)
	require.True(t, ok)
	assert.True(t, c.Guest)
	assert.Equal(t, 1, c.Orders)
}

func TestCreate_ReconcileFailureIsSwallowed(t *testing.T) {
	store := memory.New()
	store.PutProduct(catalogItem("P1", 5, 0))
	svc := newService(t, store, store.Orders(), failingCustomers{Repository: store.Customers()})

	res, err := svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 1}},
		CustomerName: "A",
		Email:        "a@x.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.ID)
	assert.Equal(t, 1, store.Orders().Count(context.Background()))
}

func TestCreate_NoNameSkipsReconcile(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))

	_, err := f.svc.Create(context.Background(), auth.Capabilities{}, order.CreateRequest{
		Items: []order.ItemRequest{{ProductID: "P1", Quantity: 1}},
		Email: "a@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.CustomerCount())
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))
	ctx := context.Background()

	_, err := f.svc.Create(ctx, auth.Capabilities{}, order.CreateRequest{})
	require.ErrorIs(t, err, order.ErrEmptyItems)

	_, err = f.svc.Create(ctx, auth.Capabilities{}, order.CreateRequest{
		Items: []order.ItemRequest{{ProductID: "P1", Quantity: 1}, {ProductID: "P1", Quantity: 0}},
	})
	var iqe *order.InvalidQuantityError
	require.ErrorAs(t, err, &iqe)
	assert.Equal(t, 2, iqe.Line)

	_, err = f.svc.Create(ctx, auth.Capabilities{}, order.CreateRequest{
		Items:  []order.ItemRequest{{ProductID: "P1", Quantity: 1}},
		Status: "lost",
	})
	var ise *order.InvalidStatusError
	require.ErrorAs(t, err, &ise)
}

func TestProfitSwitchesToCompletedOrders(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 20, 10))
	agg := stats.NewAggregator(f.store.Stats(), 0)
	ctx := context.Background()

	p, err := agg.Profit(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.SourceProducts, p.Source)
	assert.Equal(t, int64(10), p.UnitsSold)
	assert.True(t, decimal.NewFromInt(500).Equal(p.Amount))

	res, err := f.svc.Create(ctx, auth.Capabilities{}, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2}},
		CustomerName: "A",
		Email:        "a@x.com",
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, auth.Capabilities{ManageOrders: true}, res.Order.ID, "completed")
	require.NoError(t, err)

	p, err = agg.Profit(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.SourceOrders, p.Source)
	assert.Equal(t, int64(2), p.UnitsSold)
	assert.True(t, decimal.NewFromInt(100).Equal(p.Amount))
}

func TestCreate_CompletedMarksSold(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 0))
	ctx := context.Background()
	agg := stats.NewAggregator(f.store.Stats(), 0)

	res, err := f.svc.Create(ctx, admin, order.CreateRequest{
		Items:        []order.ItemRequest{{ProductID: "P1", Quantity: 2}},
		CustomerName: "Ops",
		Email:        "ops@x.com",
		Status:       "completed",
	})
	require.NoError(t, err)

	p := f.product(t, "P1")
	assert.Equal(t, 3, p.StockQuantity)
	assert.Equal(t, 2, p.SoldQuantity)

	products, err := f.store.Stats().ProductProfit(ctx)
	require.NoError(t, err)
	orders, err := f.store.Stats().OrderProfit(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders.UnitsSold, products.UnitsSold)
	assert.True(t, orders.Amount.Equal(products.Amount))

	profit, err := agg.Profit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), profit.UnitsSold)
	assert.True(t, decimal.NewFromInt(100).Equal(profit.Amount))

	_, err = f.svc.UpdateStatus(ctx, admin, res.Order.ID, "returned")
	require.NoError(t, err)
	p = f.product(t, "P1")
	assert.Equal(t, 5, p.StockQuantity)
	assert.Equal(t, 0, p.SoldQuantity)
}

func TestCreate_CompletedKeepsOtherSoldCounts(t *testing.T) {
	f := newFixture(t, catalogItem("P1", 5, 7))
	ctx := context.Background()

	res, err := f.svc.Create(ctx, admin, order.CreateRequest{
		Items:  []order.ItemRequest{{ProductID: "P1", Quantity: 2}},
		Email:  "ops@x.com",
		Status: "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, f.product(t, "P1").SoldQuantity)

	_, err = f.svc.UpdateStatus(ctx, admin, res.Order.ID, "refunded")
	require.NoError(t, err)
	assert.Equal(t, 7, f.product(t, "P1").SoldQuantity)
}

func TestCreate_LocksBeforeMutating(t *testing.T) {
	tests := []struct {
		name   string
		caps   auth.Capabilities
		status string
		want   []string
	}{
		{
			name: "validated",
			want: []string{"lock P2,P1", "decrement P2", "decrement P1"},
		},
		{
			name: "bypass",
			caps: admin,
			want: []string{"lock P2,P1", "decrement P2", "decrement P1"},
		},
		{
			name:   "returned",
			status: "returned",
			want:   []string{"lock P2,P1", "increment P2", "increment P1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			store.PutProduct(catalogItem("P1", 5, 5))
			store.PutProduct(catalogItem("P2", 5, 5))
			rec := &recordingStock{Store: store.Products()}
			svc, err := order.NewService(order.Deps{
				Orders:    store.Orders(),
				Products:  store.Products(),
				Ledger:    stock.NewLedger(rec),
				Customers: customer.NewReconciler(store.Customers(), ""),
				Tx:        store,
			})
			require.NoError(t, err)

			_, err = svc.Create(context.Background(), tt.caps, order.CreateRequest{
				Items: []order.ItemRequest{
					{ProductID: "P2", Quantity: 1},
					{ProductID: "P1", Quantity: 1},
				},
				Email:  "a@x.com",
				Status: tt.status,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.calls)
		})
	}
}
