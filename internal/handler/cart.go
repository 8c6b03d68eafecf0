package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	snap := h.carts.Snapshot(c.ID)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, snap) })
}

// addCartItem adds one unit of a shop's product. Adding a product of another
// shop replaces the cart contents.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}

	var shopID, itemID string
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "shopId":
			shopID, err = d.Str()
		case "itemId":
			itemID, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	switch {
	case shopID == "":
		fail(w, r, apperr.Invalid("shopId", "is required"))
		return
	case itemID == "":
		fail(w, r, apperr.Invalid("itemId", "is required"))
		return
	}

	ctx := r.Context()
	s, err := h.shops.Shop(ctx, shopID)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.shops.Product(ctx, shopID, itemID)
	if err != nil {
		fail(w, r, err)
		return
	}

	var snap cart.Snapshot
	_ = h.carts.Do(c.ID, func(st *cart.Store) error {
		st.Add(cart.Item{ID: p.ID, Name: p.Name, Price: p.Price, ImageRef: p.ImageRef},
			cart.ShopRef{ID: s.ID, Name: s.Name})
		snap = st.Snapshot()
		return nil
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, snap) })
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemID")

	var snap cart.Snapshot
	_ = h.carts.Do(c.ID, func(st *cart.Store) error {
		st.Remove(itemID)
		snap = st.Snapshot()
		return nil
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, snap) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}

	var snap cart.Snapshot
	_ = h.carts.Do(c.ID, func(st *cart.Store) error {
		st.Clear()
		snap = st.Snapshot()
		return nil
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, snap) })
}

// cartItemQuantity backs per-shop badges: the quantity is zero unless the
// cart belongs to the queried shop.
func (h *Handler) cartItemQuantity(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	shopID := r.URL.Query().Get("shopId")
	if shopID == "" {
		fail(w, r, apperr.Invalid("shopId", "is required"))
		return
	}

	var qty int
	_ = h.carts.Do(c.ID, func(st *cart.Store) error {
		qty = st.QuantityOf(itemID, shopID)
		return nil
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("itemId", func(e *jx.Encoder) { e.Str(itemID) })
			e.Field("shopId", func(e *jx.Encoder) { e.Str(shopID) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(qty) })
		})
	})
}
