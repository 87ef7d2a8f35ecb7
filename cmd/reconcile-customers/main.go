// Command reconcile-customers recomputes customer order counters from stored
// orders. It reads the same configuration as the API server.
package main

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront-core/internal/app"
	"github.com/xenking/storefront-core/internal/domain/customer"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		st, err := appkg.OpenStorage(ctx, lg, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		start := time.Now()
		res, err := customer.NewReconciler(st.Customers, cfg.GuestDomain).RecountOrders(ctx)
		if err != nil {
			return errors.Wrap(err, "recount")
		}
		lg.Info("Customer order counters recounted",
			zap.Int64("registered", res.Registered),
			zap.Int64("guests", res.Guests),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	})
}
