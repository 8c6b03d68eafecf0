package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/shop"
)

func (h *Handler) listShops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shops, err := h.shops.ListShops(r.Context(), shop.Query{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range shops {
				encodeShop(e, &shops[i])
			}
		})
	})
}

func (h *Handler) getShop(w http.ResponseWriter, r *http.Request) {
	s, err := h.shops.Shop(r.Context(), chi.URLParam(r, "shopID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShop(e, s) })
}

func (h *Handler) getMenu(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	menu, err := h.shops.Menu(r.Context(), chi.URLParam(r, "shopID"), shop.MenuQuery{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("shop", func(e *jx.Encoder) { encodeShop(e, &menu.Shop) })
			e.Field("categories", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, c := range menu.Categories {
						e.Str(c)
					}
				})
			})
			e.Field("products", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range menu.Products {
						encodeProduct(e, &menu.Products[i])
					}
				})
			})
		})
	})
}

// scan resolves a decoded QR payload to the shop it points to.
func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var payload string
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "payload" {
			return d.Skip()
		}
		v, err := d.Str()
		payload = v
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if payload == "" {
		fail(w, r, apperr.Invalid("payload", "is required"))
		return
	}

	s, err := h.shops.Resolve(r.Context(), payload)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShop(e, s) })
}
