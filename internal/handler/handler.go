// Package handler exposes the storefront API over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront-core/internal/domain/customer"
	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/stats"
	"github.com/xenking/storefront-core/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the order and admin endpoints.
type Handler struct {
	orders    *order.Service
	stats     *stats.Aggregator
	customers *customer.Reconciler
	auth      *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	aggregator *stats.Aggregator,
	customers *customer.Reconciler,
	authenticator *Authenticator,
) *Handler {
	return &Handler{
		orders:    orders,
		stats:     aggregator,
		customers: customers,
		auth:      authenticator,
	}
}

// Router returns the API routes mounted under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Labeler(RoutePattern),
		httpmiddleware.LogRequests(RoutePattern),
		h.auth.Middleware,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Patch("/orders/{id}/status", h.updateOrderStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/stats", h.dashboard)
			r.Post("/customers/recount", h.recountCustomers)
		})
	})
	return r
}

// RoutePattern returns the chi route template that matched r.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
