package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
)

func principal(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFrom(r.Context())
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.stats.Dashboard(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("Dashboard failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDashboard(e, d) })
}

func (h *Handler) recountCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.customers.RecountOrders(ctx)
	if err != nil {
		zctx.From(ctx).Error("Customer recount failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to recount customers")
		return
	}

	p, _ := principal(r)
	zctx.From(ctx).Info("Customer order counters recounted",
		zap.String("by", p.Subject),
		zap.Int64("registered", res.Registered),
		zap.Int64("guests", res.Guests),
	)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("registered", func(e *jx.Encoder) { e.Int64(res.Registered) })
			e.Field("guests", func(e *jx.Encoder) { e.Int64(res.Guests) })
		})
	})
}
