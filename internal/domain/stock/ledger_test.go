package stock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-core/internal/domain/product"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[string]*product.Product
}

func newFakeStore(products ...product.Product) *fakeStore {
	m := make(map[string]*product.Product, len(products))
	for i := range products {
		p := products[i]
		m[p.ID] = &p
	}
	return &fakeStore{products: m}
}

func (f *fakeStore) Snapshot(_ context.Context, ids []string) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) Decrement(_ context.Context, id string, qty int, force bool) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return Level{}, product.ErrNotFound
	}
	if !force {
		if !p.InStock || p.StockQuantity <= 0 {
			return Level{}, ErrOutOfStock
		}
		if p.StockQuantity < qty {
			return Level{}, ErrInsufficientQuantity
		}
	}
	p.StockQuantity = max(0, p.StockQuantity-qty)
	p.InStock = p.StockQuantity > 0
	return Level{Stock: p.StockQuantity, Sold: p.SoldQuantity, InStock: p.InStock}, nil
}

func (f *fakeStore) Increment(_ context.Context, id string, qty int, decrementSold bool) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return Level{}, product.ErrNotFound
	}
	p.StockQuantity += qty
	p.InStock = p.StockQuantity > 0
	if decrementSold {
		p.SoldQuantity = max(0, p.SoldQuantity-qty)
	}
	return Level{Stock: p.StockQuantity, Sold: p.SoldQuantity, InStock: p.InStock}, nil
}

func (f *fakeStore) AddSold(_ context.Context, id string, qty int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return Level{}, product.ErrNotFound
	}
	p.SoldQuantity += qty
	return Level{Stock: p.StockQuantity, Sold: p.SoldQuantity, InStock: p.InStock}, nil
}

func (f *fakeStore) get(id string) product.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.products[id]
}

func item(id string, stock, sold int) product.Product {
	return product.Product{
		ID:            id,
		Name:          "Item " + id,
		Price:         decimal.NewFromInt(10),
		StockQuantity: stock,
		SoldQuantity:  sold,
		InStock:       stock > 0,
	}
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		qty       int
		bypass    bool
		wantErr   error
		wantStock int
		wantIn    bool
	}{
		{name: "partial", stock: 5, qty: 2, wantStock: 3, wantIn: true},
		{name: "last units", stock: 2, qty: 2, wantStock: 0, wantIn: false},
		{name: "insufficient", stock: 2, qty: 3, wantErr: ErrInsufficientQuantity, wantStock: 2, wantIn: true},
		{name: "out of stock", stock: 0, qty: 1, wantErr: ErrOutOfStock, wantStock: 0, wantIn: false},
		{name: "bypass clamps at zero", stock: 2, qty: 5, bypass: true, wantStock: 0, wantIn: false},
		{name: "zero quantity", stock: 2, qty: 0, wantErr: ErrInvalidQuantity, wantStock: 2, wantIn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(item("p1", tt.stock, 0))
			l := NewLedger(store)

			res, err := l.Reserve(context.Background(), "p1", tt.qty, tt.bypass)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStock, res.NewStock)
				assert.Equal(t, tt.wantIn, res.InStock)
			}

			got := store.get("p1")
			assert.Equal(t, tt.wantStock, got.StockQuantity)
			assert.Equal(t, got.StockQuantity > 0, got.InStock)
		})
	}
}

func TestReserve_MissingProduct(t *testing.T) {
	l := NewLedger(newFakeStore())

	_, err := l.Reserve(context.Background(), "nope", 1, false)
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.False(t, IsInsufficient(err))
}

func TestReserveRestoreRoundTrip(t *testing.T) {
	store := newFakeStore(item("p1", 4, 7))
	l := NewLedger(store)
	ctx := context.Background()

	_, err := l.Reserve(ctx, "p1", 3, false)
	require.NoError(t, err)
	res, err := l.Restore(ctx, "p1", 3, false)
	require.NoError(t, err)

	assert.Equal(t, 4, res.NewStock)
	assert.True(t, res.InStock)
	assert.Equal(t, 7, store.get("p1").SoldQuantity)
}

func TestRestore_DecrementsSoldClamped(t *testing.T) {
	store := newFakeStore(item("p1", 0, 1))
	l := NewLedger(store)

	res, err := l.Restore(context.Background(), "p1", 3, true)
	require.NoError(t, err)

	assert.Equal(t, 3, res.NewStock)
	assert.True(t, res.InStock)
	assert.Equal(t, 0, store.get("p1").SoldQuantity)
}

func TestMarkSold(t *testing.T) {
	store := newFakeStore(item("p1", 3, 2))
	l := NewLedger(store)

	require.NoError(t, l.MarkSold(context.Background(), "p1", 4))
	assert.Equal(t, 6, store.get("p1").SoldQuantity)
	assert.Equal(t, 3, store.get("p1").StockQuantity)

	require.ErrorIs(t, l.MarkSold(context.Background(), "p1", 0), ErrInvalidQuantity)
}

func TestReserve_ConcurrentLastUnit(t *testing.T) {
	store := newFakeStore(item("p1", 1, 0))
	l := NewLedger(store)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		failed    atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), "p1", 1, false)
			if err == nil {
				succeeded.Add(1)
				return
			}
			if IsInsufficient(err) {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), failed.Load())
	assert.Equal(t, 0, store.get("p1").StockQuantity)
	assert.False(t, store.get("p1").InStock)
}

func TestValidate(t *testing.T) {
	store := newFakeStore(
		item("p1", 5, 0),
		item("p2", 0, 0),
		item("p3", 2, 0),
	)
	l := NewLedger(store)

	details, err := l.Validate(context.Background(), []Line{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "missing", Quantity: 9},
		{ProductID: "p3", Quantity: 1},
		{ProductID: "p3", Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"item 2: out of stock",
		"item 5: insufficient quantity available",
	}, details)
	for _, d := range details {
		assert.NotContains(t, d, "Item p")
	}
}

func TestValidate_AllAvailable(t *testing.T) {
	l := NewLedger(newFakeStore(item("p1", 5, 0)))

	details, err := l.Validate(context.Background(), []Line{{ProductID: "p1", Quantity: 5}})
	require.NoError(t, err)
	assert.Empty(t, details)
}
