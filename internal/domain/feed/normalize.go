package feed

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/order"
)

// Epoch numbers at or above this are treated as milliseconds.
const millisThreshold = 1e11

// Sort orders by creation time, newest first. Equal instants are ordered by
// ID so the result does not depend on map iteration order.
func Sort(orders []order.Order) {
	slices.SortStableFunc(orders, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// DecodeRecord parses a live-sync order record. key is the record's id under
// its index path and is used when the record carries no id field.
//
// Timestamps may be RFC 3339 strings, epoch seconds or milliseconds, or
// {"seconds","nanoseconds"} objects; all are normalized to UTC.
func DecodeRecord(key string, raw []byte) (order.Order, error) {
	o := order.Order{ID: key}
	d := jx.DecodeBytes(raw)
	err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		var err error
		switch string(k) {
		case "id":
			var id string
			if id, err = d.Str(); err == nil && id != "" {
				o.ID = id
			}
		case "customerId":
			o.CustomerID, err = d.Str()
		case "customerEmail":
			o.CustomerEmail, err = d.Str()
		case "shopId":
			o.ShopID, err = d.Str()
		case "shopName":
			o.ShopName, err = d.Str()
		case "items":
			o.Lines, err = decodeLines(d)
		case "totalAmount":
			o.TotalAmount, err = decodeAmount(d)
		case "status":
			var s string
			if s, err = d.Str(); err == nil {
				o.Status, err = order.ParseStatus(s)
			}
		case "pickupTime":
			var p string
			if p, err = d.Str(); err == nil {
				o.Pickup = order.ParsePickup(p)
			}
		case "specialInstructions":
			o.SpecialInstructions, err = d.Str()
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			o.UpdatedAt, err = decodeTime(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(k))
		}
		return nil
	})
	if err != nil {
		return order.Order{}, errors.Wrapf(err, "decode record %q", key)
	}
	return o, nil
}

func decodeLines(d *jx.Decoder) ([]cart.Line, error) {
	var lines []cart.Line
	err := d.Arr(func(d *jx.Decoder) error {
		var l cart.Line
		if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			var err error
			switch string(k) {
			case "id":
				l.ItemID, err = d.Str()
			case "name":
				l.Name, err = d.Str()
			case "price":
				l.UnitPrice, err = decodeAmount(d)
			case "quantity":
				l.Quantity, err = d.Int()
			case "imageRef":
				l.ImageRef, err = d.Str()
			default:
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

// decodeAmount accepts a JSON number or a numeric string.
func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.Null:
		return time.Time{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	case jx.Number:
		f, err := d.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return fromEpoch(f), nil
	case jx.Object:
		var sec, nsec int64
		err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			var err error
			switch string(k) {
			case "seconds", "_seconds":
				sec, err = decodeInt(d)
			case "nanoseconds", "_nanoseconds":
				nsec, err = decodeInt(d)
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, nsec).UTC(), nil
	default:
		return time.Time{}, errors.Errorf("unexpected timestamp type %s", d.Next())
	}
}

// decodeInt reads an integer encoded either as a number or a string.
func decodeInt(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return d.Int64()
}

func fromEpoch(v float64) time.Time {
	if math.Abs(v) >= millisThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
