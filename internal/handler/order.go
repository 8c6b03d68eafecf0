package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
)

// IdempotencyHeader carries the client-generated key of a checkout attempt.
const IdempotencyHeader = "Idempotency-Key"

// placeOrder checks out the caller's cart. The cart is held for the whole
// submission so concurrent cart edits cannot interleave with the snapshot.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}

	req := order.PlaceOrderRequest{
		CustomerID:     c.ID,
		CustomerEmail:  c.Email,
		Pickup:         order.Pickup{Mode: order.PickupASAP},
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var (
			err  error
			mode string
		)
		switch key {
		case "pickupMode":
			if mode, err = d.Str(); err == nil && mode != "" {
				req.Pickup.Mode = order.PickupMode(mode)
			}
		case "pickupTime":
			req.Pickup.Time, err = d.Str()
		case "specialInstructions":
			req.SpecialInstructions, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}

	var placed *order.Order
	err := h.carts.Do(c.ID, func(st *cart.Store) error {
		o, err := h.orders.PlaceOrder(r.Context(), st, req)
		placed = o
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, placed) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	filter, err := feed.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		fail(w, r, err)
		return
	}

	orders, err := h.orders.ListByCustomer(r.Context(), c.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	feed.Sort(orders)

	visible := filter.Apply(orders)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, visible) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), c.ID, chi.URLParam(r, "orderID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// cancelOrder cancels a pending order of the caller and returns its new
// status.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")
	ctx := r.Context()

	orders, err := h.orders.ListByCustomer(ctx, c.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	status, err := h.feed.CancelOrder(ctx, c.ID, orderID, orders)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(orderID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}
