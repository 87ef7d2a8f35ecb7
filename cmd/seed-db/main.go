// Command seed-db loads a product catalog and API keys into PostgreSQL and
// can mint an admin session token for local use.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
	"github.com/xenking/storefront-core/internal/domain/product"
	"github.com/xenking/storefront-core/internal/handler"
	"github.com/xenking/storefront-core/internal/repository"
)

type options struct {
	databaseURL  string
	catalogFile  string
	apiKey       string
	apiKeyPepper string
	apiKeyType   string
	apiKeyScopes string
	jwtSecret    string
	adminSubject string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog", "db/seed/catalog.json", "catalog JSON file, optionally .gz")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.StringVar(&opts.apiKeyType, "api-key-type", auth.TypeService, "principal type of the seeded key: service or internal")
	flag.StringVar(&opts.apiKeyScopes, "api-key-scopes", "", "comma separated scopes, e.g. "+auth.ScopeBypassStock)
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "print an admin token signed with this secret (or STOREFRONT_JWT_SECRET env)")
	flag.StringVar(&opts.adminSubject, "admin-subject", "admin", "subject of the printed admin token")
	flag.Parse()

	envDefault(&opts.databaseURL, "DATABASE_URL")
	envDefault(&opts.apiKey, "STOREFRONT_SEED_API_KEY")
	envDefault(&opts.apiKeyPepper, "STOREFRONT_API_KEY_PEPPER")
	envDefault(&opts.jwtSecret, "STOREFRONT_JWT_SECRET")

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := readCatalog(opts.catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	repo := repository.NewProductRepository(pool)
	tx := repository.NewTransactor(pool)
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, p := range products {
			if err := repo.Upsert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "upsert products")
	}
	lg.Info("Upserted products", zap.Int("count", len(products)), zap.String("file", opts.catalogFile))

	if opts.apiKey != "" {
		key := auth.APIKeyInfo{
			ID:      "default",
			KeyHash: handler.HashAPIKey([]byte(opts.apiKeyPepper), opts.apiKey),
			Name:    "Default key",
			Type:    opts.apiKeyType,
			Scopes:  splitScopes(opts.apiKeyScopes),
		}
		if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
			return errors.Wrap(err, "upsert api key")
		}
		lg.Info("Upserted API key",
			zap.String("id", key.ID),
			zap.String("type", key.Type),
			zap.Strings("scopes", key.Scopes),
		)
	}

	if opts.jwtSecret != "" {
		token, err := handler.SignToken([]byte(opts.jwtSecret), auth.Principal{
			Subject: opts.adminSubject,
			Role:    auth.RoleAdmin,
			Type:    auth.TypeUser,
		}, 24*time.Hour)
		if err != nil {
			return errors.Wrap(err, "sign admin token")
		}
		fmt.Println(token)
	}
	return nil
}

func splitScopes(s string) []string {
	scopes := []string{}
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			scopes = append(scopes, v)
		}
	}
	return scopes
}

// readCatalog reads a JSON array of products. Files ending in .gz are
// decompressed.
func readCatalog(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decodeCatalog(jx.Decode(r, 64*1024))
}

func decodeCatalog(d *jx.Decoder) ([]product.Product, error) {
	var products []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "price":
				p.Price, err = decimalField(d)
			case "costPrice":
				p.CostPrice, err = decimalField(d)
			case "deliveryPrice":
				p.DeliveryPrice, err = decimalField(d)
			case "stockQuantity":
				p.StockQuantity, err = d.Int()
			case "soldQuantity":
				p.SoldQuantity, err = d.Int()
			default:
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.Errorf("product #%d: id required", len(products)+1)
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

func decimalField(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}
