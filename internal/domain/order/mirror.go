package order

import (
	"time"

	"github.com/go-faster/jx"
)

// Roots of the live-sync order indexes.
const (
	ShopIndexRoot     = "shopOrders"
	CustomerIndexRoot = "customerOrders"
)

// ShopIndex is the live-sync path holding all orders of a shop.
func ShopIndex(shopID string) string {
	return ShopIndexRoot + "/" + shopID
}

// CustomerIndex is the live-sync path holding all orders of a customer.
func CustomerIndex(customerID string) string {
	return CustomerIndexRoot + "/" + customerID
}

// IndexPaths returns the shop and customer index paths of an order record.
func IndexPaths(o *Order) []string {
	return []string{
		ShopIndex(o.ShopID) + "/" + o.ID,
		CustomerIndex(o.CustomerID) + "/" + o.ID,
	}
}

// EncodeRecord renders an order as a live-sync record. Timestamps are written
// as RFC 3339 strings and money as JSON numbers.
func EncodeRecord(o *Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		if o.CustomerEmail != "" {
			e.Field("customerEmail", func(e *jx.Encoder) { e.Str(o.CustomerEmail) })
		}
		e.Field("shopId", func(e *jx.Encoder) { e.Str(o.ShopID) })
		e.Field("shopName", func(e *jx.Encoder) { e.Str(o.ShopName) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(l.ItemID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(l.UnitPrice.String())) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						if l.ImageRef != "" {
							e.Field("imageRef", func(e *jx.Encoder) { e.Str(l.ImageRef) })
						}
					})
				}
			})
		})
		e.Field("totalAmount", func(e *jx.Encoder) { e.Raw([]byte(o.TotalAmount.StringFixed(2))) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("pickupTime", func(e *jx.Encoder) { e.Str(o.Pickup.String()) })
		e.Field("specialInstructions", func(e *jx.Encoder) { e.Str(o.SpecialInstructions) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(formatTime(o.CreatedAt)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(formatTime(o.UpdatedAt)) })
	})
	return e.Bytes()
}

// encodeStatusPatch renders the fields changed by a status transition.
func encodeStatusPatch(status Status, at time.Time) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(formatTime(at)) })
	})
	return e.Bytes()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
