// Package feed derives a customer's live order list from the live-sync
// mirror, falling back to the durable store when no listener can be attached.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/order"
)

// Source is the subscribe side of the live-sync store.
type Source interface {
	// Subscribe invokes fn with the full set of records under path on every
	// change, keyed by record id. fn is never invoked while path is empty.
	// Calls to fn are serial. The returned cancel func stops deliveries and
	// returns after any in-progress call has finished.
	Subscribe(ctx context.Context, path string, fn func(records map[string][]byte)) (cancel func(), err error)
}

// Orders is the durable side consulted for the fallback query and cancels.
type Orders interface {
	ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error)
	Cancel(ctx context.Context, customerID, orderID string) (*order.Order, error)
}

// Unsubscribe releases a feed listener. It is safe to call more than once.
type Unsubscribe func()

// Service builds sorted order feeds for customers.
type Service struct {
	source    Source
	orders    Orders
	fallbacks metric.Int64Counter
}

// NewService creates a feed Service. A nil meter provider disables metrics.
func NewService(source Source, orders Orders, mp metric.MeterProvider) (*Service, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	fallbacks, err := mp.Meter("github.com/xenking/ezyeats/internal/domain/feed").Int64Counter(
		"ezyeats.feed.fallbacks",
		metric.WithDescription("Feeds served from the durable store because no listener could be attached"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "feed fallbacks counter")
	}
	return &Service{source: source, orders: orders, fallbacks: fallbacks}, nil
}

// Subscribe attaches to the customer's order index. On every upstream change
// onUpdate receives the customer's orders sorted newest first.
//
// When the listener cannot be established, the durable store is queried once
// and onUpdate is invoked with that result before Subscribe returns.
func (s *Service) Subscribe(ctx context.Context, customerID string, onUpdate func([]order.Order)) (Unsubscribe, error) {
	if customerID == "" {
		return nil, apperr.Invalid("customerId", "is required")
	}
	lg := zctx.From(ctx).With(zap.String("customer_id", customerID))

	var stopped atomic.Bool
	deliver := func(records map[string][]byte) {
		if stopped.Load() {
			return
		}
		onUpdate(normalize(lg, records))
	}

	if s.source != nil {
		cancel, err := s.source.Subscribe(ctx, order.CustomerIndex(customerID), deliver)
		if err == nil {
			var once sync.Once
			return func() {
				once.Do(func() {
					stopped.Store(true)
					cancel()
				})
			}, nil
		}
		lg.Warn("Live listener unavailable, querying durable store", zap.Error(err))
	}

	s.fallbacks.Add(ctx, 1)
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	Sort(orders)
	onUpdate(orders)
	return func() {}, nil
}

func normalize(lg *zap.Logger, records map[string][]byte) []order.Order {
	orders := make([]order.Order, 0, len(records))
	for key, raw := range records {
		o, err := DecodeRecord(key, raw)
		if err != nil {
			lg.Warn("Skipping malformed order record", zap.String("key", key), zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}
	Sort(orders)
	return orders
}

// CancelOrder cancels orderID, which must be present in orders, the list the
// caller currently displays. It returns the new status for an optimistic
// local update.
func (s *Service) CancelOrder(ctx context.Context, customerID, orderID string, orders []order.Order) (order.Status, error) {
	idx := -1
	for i := range orders {
		if orders[i].ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", &apperr.NotFoundError{Kind: "order", ID: orderID}
	}
	if st := orders[idx].Status; st != order.StatusPending {
		return "", &apperr.InvalidStateError{OrderID: orderID, Status: string(st), Want: string(order.StatusPending)}
	}

	o, err := s.orders.Cancel(ctx, customerID, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}
