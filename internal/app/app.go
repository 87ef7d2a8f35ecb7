package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/stats"
	"github.com/xenking/storefront-core/internal/domain/stock"
	"github.com/xenking/storefront-core/internal/handler"
	"github.com/xenking/storefront-core/pkg/health"
	"github.com/xenking/storefront-core/pkg/httpmiddleware"
)

// Run opens storage, serves the API and probes, and shuts down when ctx ends.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	st, err := OpenStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	probes := health.New()
	probes.AddReadinessCheck(cfg.Storage, 5*time.Second, st.Ping)
	probes.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	probes.Start(ctx, 10*time.Second)

	api, err := NewAPI(st, cfg, m)
	if err != nil {
		return err
	}

	mux := chi.NewRouter()
	mux.Get("/livez", probes.LiveEndpoint)
	mux.Get("/readyz", probes.ReadyEndpoint)
	mux.Mount("/", api.Router())

	server := newServer(ctx, cfg, m, mux)
	probes.SetReady(true)
	return serve(ctx, lg, server, probes, cfg.Graceful)
}

func newServer(ctx context.Context, cfg *Config, m *app.Telemetry, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		Handler: httpmiddleware.Wrap(h,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
		),
	}
}

// serve runs server until ctx is cancelled, then drops readiness and drains.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, probes *health.Health, g GracefulConfig) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		lg.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		probes.SetReady(false)
		defer probes.Stop()

		lg.Info("Draining", zap.Duration("readiness_delay", g.ReadinessDelay))
		time.Sleep(g.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		lg.Info("Server stopped")
		return nil
	})
	return grp.Wait()
}

// NewAPI builds the domain services over st and returns the HTTP handler.
// A nil telemetry uses no-op providers.
func NewAPI(st *Storage, cfg *Config, m httpmiddleware.TelemetryProvider) (*handler.Handler, error) {
	reconciler := customer.NewReconciler(st.Customers, cfg.GuestDomain)

	deps := order.Deps{
		Orders:    st.Orders,
		Products:  st.Products,
		Ledger:    stock.NewLedger(st.Stock),
		Customers: reconciler,
		Tx:        st.Tx,
	}
	if m != nil {
		deps.MeterProvider = m.MeterProvider()
		deps.TracerProvider = m.TracerProvider()
	}
	orders, err := order.NewService(deps)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	return handler.NewHandler(
		orders,
		stats.NewAggregator(st.Stats, cfg.LowStockThreshold),
		reconciler,
		handler.NewAuthenticator(st.APIKeys, []byte(cfg.APIKeyPepper), []byte(cfg.JWTSecret)),
	), nil
}
