package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/order"
	"github.com/xenking/ezyeats/internal/domain/shop"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// decodeObject reads a JSON object body, handing every field to fn.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 512)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return apperr.Invalid("body", "malformed JSON object")
	}
	return nil
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.StringFixed(2)))
}

func encodeShop(e *jx.Encoder, s *shop.Shop) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(s.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(s.Category) })
		e.Field("location", func(e *jx.Encoder) { e.Str(s.Location) })
		e.Field("description", func(e *jx.Encoder) { e.Str(s.Description) })
		if s.ImageRef != "" {
			e.Field("imageRef", func(e *jx.Encoder) { e.Str(s.ImageRef) })
		}
		e.Field("isOpen", func(e *jx.Encoder) { e.Bool(s.IsOpen) })
	})
}

func encodeProduct(e *jx.Encoder, p *shop.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("shopId", func(e *jx.Encoder) { e.Str(p.ShopID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		if p.ImageRef != "" {
			e.Field("imageRef", func(e *jx.Encoder) { e.Str(p.ImageRef) })
		}
		e.Field("available", func(e *jx.Encoder) { e.Bool(p.Available) })
	})
}

func encodeCart(e *jx.Encoder, s cart.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("shop", func(e *jx.Encoder) {
			if s.Shop == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(s.Shop.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(s.Shop.Name) })
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range s.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(l.ItemID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						if l.ImageRef != "" {
							e.Field("imageRef", func(e *jx.Encoder) { e.Str(l.ImageRef) })
						}
					})
				}
			})
		})
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, s.Total) })
	})
}

// encodeOrder writes an order in the same shape as its live-sync record.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Raw(order.EncodeRecord(o))
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}
