package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/cart"
)

const instrumentationName = "github.com/xenking/ezyeats/internal/domain/order"

// PlaceOrderRequest holds the checkout input that does not live in the cart.
type PlaceOrderRequest struct {
	CustomerID          string
	CustomerEmail       string
	Pickup              Pickup
	SpecialInstructions string
	// IdempotencyKey deduplicates repeated submissions of one checkout
	// attempt. Empty disables deduplication.
	IdempotencyKey string
}

// Options configures optional Service collaborators.
type Options struct {
	Idempotency    IdempotencyStore
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Service encapsulates order submission and customer cancellation.
type Service struct {
	store  Store
	mirror Mirror
	idem   IdempotencyStore
	now    func() time.Time
	tracer trace.Tracer

	placed         metric.Int64Counter
	cancelled      metric.Int64Counter
	mirrorFailures metric.Int64Counter
}

// NewService creates an order Service writing to the durable store and,
// best-effort, to the live-sync mirror.
func NewService(store Store, mirror Mirror, opts Options) (*Service, error) {
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{
		store:  store,
		mirror: mirror,
		idem:   opts.Idempotency,
		now:    opts.Now,
		tracer: opts.TracerProvider.Tracer(instrumentationName),
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if s.placed, err = meter.Int64Counter("ezyeats.orders.placed",
		metric.WithDescription("Orders accepted by the durable store"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.cancelled, err = meter.Int64Counter("ezyeats.orders.cancelled",
		metric.WithDescription("Orders cancelled by customers"),
	); err != nil {
		return nil, errors.Wrap(err, "orders cancelled counter")
	}
	if s.mirrorFailures, err = meter.Int64Counter("ezyeats.mirror.write_failures",
		metric.WithDescription("Live-sync mirror writes that failed and were skipped"),
	); err != nil {
		return nil, errors.Wrap(err, "mirror failures counter")
	}

	return s, nil
}

// PlaceOrder validates the cart, snapshots it into a pending order, persists
// it durably, mirrors it to the live-sync index paths, and clears the cart.
//
// A durable write failure returns an *apperr.PersistenceError and leaves the
// cart untouched. Mirror failures are logged and otherwise ignored.
func (s *Service) PlaceOrder(ctx context.Context, c *cart.Store, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("customer.id", req.CustomerID)),
	)
	defer func() { endSpan(span, rerr) }()

	key := strings.TrimSpace(req.IdempotencyKey)
	dedupe := key != "" && s.idem != nil
	if dedupe {
		// A finished attempt replays even after its cart was cleared.
		existing, done, err := s.replay(ctx, req.CustomerID, key)
		if err != nil || done {
			return existing, err
		}
	}

	if err := validate(c, req); err != nil {
		return nil, err
	}

	if dedupe {
		existing, done, err := s.claim(ctx, req.CustomerID, key)
		if err != nil || done {
			return existing, err
		}
	}
	release := func() {
		if !dedupe {
			return
		}
		if err := s.idem.Release(context.WithoutCancel(ctx), req.CustomerID, key); err != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	shop := c.Shop()
	now := s.now().UTC()
	o := &Order{
		CustomerID:          req.CustomerID,
		CustomerEmail:       req.CustomerEmail,
		ShopID:              shop.ID,
		ShopName:            shop.Name,
		Lines:               c.Lines(),
		TotalAmount:         c.TotalPrice().Round(2),
		Status:              StatusPending,
		Pickup:              req.Pickup,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// Writes are not cancellable once issued.
	wctx := context.WithoutCancel(ctx)

	id, err := s.store.Insert(wctx, o)
	if err != nil {
		release()
		return nil, &apperr.PersistenceError{Op: "insert order", Err: err}
	}
	o.ID = id
	span.SetAttributes(attribute.String("order.id", id))

	record := EncodeRecord(o)
	for _, path := range IndexPaths(o) {
		s.mirrorWrite(wctx, path, func(ctx context.Context) error {
			return s.mirror.Set(ctx, path, record)
		})
	}

	if dedupe {
		if err := s.idem.Complete(wctx, req.CustomerID, key, id); err != nil {
			zctx.From(ctx).Warn("Record idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	c.Clear()
	s.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", id),
		zap.String("shop_id", o.ShopID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)

	return o, nil
}

// replay looks up an earlier attempt without writing. It returns done=true
// when the call must not place a new order.
func (s *Service) replay(ctx context.Context, customerID, key string) (*Order, bool, error) {
	orderID, found, err := s.idem.Lookup(ctx, customerID, key)
	if err != nil {
		zctx.From(ctx).Warn("Lookup idempotency key", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	return s.resolve(ctx, key, orderID)
}

// claim reserves an idempotency key. It returns done=true when another
// attempt owns the key.
func (s *Service) claim(ctx context.Context, customerID, key string) (*Order, bool, error) {
	orderID, claimed, err := s.idem.Claim(ctx, customerID, key)
	if err != nil {
		// Fail open: the durable store does not depend on dedupe.
		zctx.From(ctx).Warn("Claim idempotency key", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if claimed {
		return nil, false, nil
	}
	return s.resolve(ctx, key, orderID)
}

func (s *Service) resolve(ctx context.Context, key, orderID string) (*Order, bool, error) {
	if orderID == "" {
		return nil, true, &apperr.ConflictError{Key: key}
	}
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, true, err
	}
	return o, true, nil
}

func validate(c *cart.Store, req PlaceOrderRequest) error {
	if c == nil || c.IsEmpty() {
		return apperr.Invalid("cart", "is empty")
	}
	if c.Shop() == nil {
		return apperr.Invalid("shop", "is required")
	}
	if req.CustomerID == "" {
		return apperr.Invalid("customerId", "is required")
	}
	return req.Pickup.Validate()
}

// Cancel moves a pending order of the customer to cancelled in the durable
// store and, best-effort, in both live-sync index paths.
func (s *Service) Cancel(ctx context.Context, customerID, orderID string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() { endSpan(span, rerr) }()

	o, err := s.Get(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, &apperr.InvalidStateError{OrderID: orderID, Status: string(o.Status), Want: string(StatusPending)}
	}

	wctx := context.WithoutCancel(ctx)
	now := s.now().UTC()
	if err := s.store.Transition(wctx, orderID, StatusPending, StatusCancelled, now); err != nil {
		switch {
		case errors.Is(err, ErrStatusMismatch):
			return nil, &apperr.InvalidStateError{OrderID: orderID, Status: "changed", Want: string(StatusPending)}
		case errors.Is(err, ErrNotFound):
			return nil, &apperr.NotFoundError{Kind: "order", ID: orderID}
		default:
			return nil, &apperr.PersistenceError{Op: "cancel order", Err: err}
		}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now

	patch := encodeStatusPatch(StatusCancelled, now)
	for _, path := range IndexPaths(o) {
		s.mirrorWrite(wctx, path, func(ctx context.Context) error {
			return s.mirror.Update(ctx, path, patch)
		})
	}

	s.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", orderID))
	return o, nil
}

// Get returns an order owned by the customer. Orders of other customers are
// reported as not found.
func (s *Service) Get(ctx context.Context, customerID, orderID string) (*Order, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, &apperr.NotFoundError{Kind: "order", ID: orderID}
	}
	return o, nil
}

// ListByCustomer queries the durable store for all orders of a customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	orders, err := s.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *Service) get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Kind: "order", ID: orderID}
		}
		return nil, &apperr.PersistenceError{Op: "get order", Err: err}
	}
	return o, nil
}

func (s *Service) mirrorWrite(ctx context.Context, path string, write func(context.Context) error) {
	if s.mirror == nil {
		return
	}
	if err := write(ctx); err != nil {
		s.mirrorFailures.Add(ctx, 1)
		zctx.From(ctx).Warn("Mirror write failed", zap.String("path", path), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
