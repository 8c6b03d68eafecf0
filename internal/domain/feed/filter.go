package feed

import (
	"fmt"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/order"
)

// Filter selects a subset of a customer's orders for display.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
	FilterCancelled Filter = "cancelled"
)

// ParseFilter validates a wire value. Empty selects FilterAll.
func ParseFilter(v string) (Filter, error) {
	switch f := Filter(v); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted, FilterCancelled:
		return f, nil
	default:
		return "", apperr.Invalid("filter", fmt.Sprintf("unknown filter %q", v))
	}
}

// Match reports whether an order with the given status passes the filter.
func (f Filter) Match(s order.Status) bool {
	switch f {
	case FilterActive:
		return s.Active()
	case FilterCompleted:
		return s == order.StatusCompleted
	case FilterCancelled:
		return s == order.StatusCancelled
	default:
		return true
	}
}

// Apply returns the orders passing the filter in their original relative
// order. The input is not modified.
func (f Filter) Apply(orders []order.Order) []order.Order {
	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o.Status) {
			out = append(out, o)
		}
	}
	return out
}
