package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/domain/stats"
	"github.com/xenking/storefront-core/internal/domain/stock"
	"github.com/xenking/storefront-core/internal/repository"
	"github.com/xenking/storefront-core/internal/storage/memory"
)

// Storage bundles the repositories of one storage driver.
type Storage struct {
	Products  product.Repository
	Stock     stock.Store
	Orders    order.Repository
	Customers customer.Repository
	APIKeys   auth.Repository
	Stats     stats.Source
	Tx        order.Transactor

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage connects the configured driver. Postgres migrations run on
// open.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		return MemoryStorage(memory.New()), nil
	case StoragePostgres:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := repository.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		products := repository.NewProductRepository(pool)
		return &Storage{
			Products:  products,
			Stock:     products,
			Orders:    repository.NewOrderRepository(pool),
			Customers: repository.NewCustomerRepository(pool),
			APIKeys:   repository.NewAPIKeyRepository(pool),
			Stats:     repository.NewStatsRepository(pool),
			Tx:        repository.NewTransactor(pool),
			Ping:      pool.Ping,
			Close:     pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage)
	}
}

// MemoryStorage exposes s through the Storage bundle.
func MemoryStorage(s *memory.Store) *Storage {
	return &Storage{
		Products:  s.Products(),
		Stock:     s.Products(),
		Orders:    s.Orders(),
		Customers: s.Customers(),
		APIKeys:   s.APIKeys(),
		Stats:     s.Stats(),
		Tx:        s,
		Ping:      s.Ping,
		Close:     func() {},
	}
}
