package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/order"
)

// createOrder answers 201 with the new order, or 200 when the client id
// replays an earlier order of the same customer.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req, err := decodeCreateOrder(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.orders.Create(ctx, capabilities(ctx), req)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, err := decodeStatus(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(ctx, capabilities(ctx), chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// writeOrderError maps domain errors to responses. Internal causes are only
// logged.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		sve *order.StockValidationError
		iqe *order.InvalidQuantityError
		ise *order.InvalidStatusError
	)
	switch {
	case errors.As(err, &sve):
		writeDetails(w, http.StatusBadRequest, "Stock validation failed", sve.Details)
	case errors.As(err, &iqe):
		writeError(w, http.StatusBadRequest, iqe.Error())
	case errors.As(err, &ise):
		writeError(w, http.StatusBadRequest, ise.Error())
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "Items required")
	case errors.Is(err, order.ErrDuplicateID):
		writeError(w, http.StatusConflict, "Order id already exists")
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid status transition")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrForbidden):
		if _, ok := principal(r); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeError(w, http.StatusForbidden, "Forbidden")
	default:
		zctx.From(r.Context()).Error("Order request failed",
			zap.String("route", RoutePattern(r)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to process order")
	}
}
