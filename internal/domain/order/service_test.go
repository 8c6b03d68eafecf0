package order

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/cart"
)

// --- Mock implementations ---

type mockStore struct {
	mu        sync.Mutex
	orders    map[string]*Order
	seq       int
	insertErr error
	transErr  error
	inserts   int
}

func newMockStore() *mockStore {
	return &mockStore{orders: make(map[string]*Order)}
}

func (m *mockStore) Insert(_ context.Context, o *Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.seq++
	id := "o" + strconv.Itoa(m.seq)
	stored := *o
	stored.ID = id
	m.orders[id] = &stored
	return id, nil
}

func (m *mockStore) Transition(_ context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transErr != nil {
		return m.transErr
	}
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusMismatch
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (m *mockStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type mockMirror struct {
	sets    map[string][]byte
	updates map[string][]byte
	err     error
}

func newMockMirror() *mockMirror {
	return &mockMirror{sets: make(map[string][]byte), updates: make(map[string][]byte)}
}

func (m *mockMirror) Set(_ context.Context, path string, record []byte) error {
	if m.err != nil {
		return m.err
	}
	m.sets[path] = record
	return nil
}

func (m *mockMirror) Update(_ context.Context, path string, patch []byte) error {
	if m.err != nil {
		return m.err
	}
	m.updates[path] = patch
	return nil
}

type idemEntry struct {
	orderID string
	done    bool
}

type mockIdempotency struct {
	entries  map[string]idemEntry
	claimErr error
	writes   int
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{entries: make(map[string]idemEntry)}
}

func (m *mockIdempotency) Claim(_ context.Context, scope, key string) (string, bool, error) {
	if m.claimErr != nil {
		return "", false, m.claimErr
	}
	k := scope + ":" + key
	if e, ok := m.entries[k]; ok {
		return e.orderID, false, nil
	}
	m.writes++
	m.entries[k] = idemEntry{}
	return "", true, nil
}

func (m *mockIdempotency) Lookup(_ context.Context, scope, key string) (string, bool, error) {
	if m.claimErr != nil {
		return "", false, m.claimErr
	}
	e, ok := m.entries[scope+":"+key]
	return e.orderID, ok, nil
}

func (m *mockIdempotency) Complete(_ context.Context, scope, key, orderID string) error {
	m.writes++
	m.entries[scope+":"+key] = idemEntry{orderID: orderID, done: true}
	return nil
}

func (m *mockIdempotency) Release(_ context.Context, scope, key string) error {
	m.writes++
	delete(m.entries, scope+":"+key)
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store, mirror Mirror, idem IdempotencyStore) *Service {
	t.Helper()
	var opts Options
	if idem != nil {
		opts.Idempotency = idem
	}
	opts.Now = func() time.Time { return fixedNow }
	svc, err := NewService(store, mirror, opts)
	require.NoError(t, err)
	return svc
}

func cartWith(t *testing.T, shopID string, items ...cart.Item) *cart.Store {
	t.Helper()
	c := cart.New()
	for _, it := range items {
		c.Add(it, cart.ShopRef{ID: shopID, Name: "Shop " + shopID})
	}
	return c
}

func item(id, price string) cart.Item {
	return cart.Item{ID: id, Name: "item " + id, Price: decimal.RequireFromString(price)}
}

func asap() Pickup { return Pickup{Mode: PickupASAP} }

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	store := newMockStore()
	mirror := newMockMirror()
	svc := newTestService(t, store, mirror, nil)

	c := cartWith(t, "s1", item("a", "100"), item("a", "100"))

	o, err := svc.PlaceOrder(context.Background(), c, PlaceOrderRequest{
		CustomerID:          "u1",
		CustomerEmail:       "u1@example.com",
		Pickup:              asap(),
		SpecialInstructions: "  no sugar ",
	})
	require.NoError(t, err)

	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "200.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "s1", o.ShopID)
	assert.Equal(t, "Shop s1", o.ShopName)
	assert.Equal(t, "no sugar", o.SpecialInstructions)
	assert.Equal(t, fixedNow, o.CreatedAt)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2, o.Lines[0].Quantity)

	assert.Equal(t, 0, c.ItemCount())
	assert.Nil(t, c.Shop())

	require.Contains(t, mirror.sets, "shopOrders/s1/o1")
	require.Contains(t, mirror.sets, "customerOrders/u1/o1")
	assert.Equal(t, mirror.sets["shopOrders/s1/o1"], mirror.sets["customerOrders/u1/o1"])
}

func TestPlaceOrder_SnapshotIsIndependentOfCart(t *testing.T) {
	svc := newTestService(t, newMockStore(), newMockMirror(), nil)

	c := cartWith(t, "s1", item("a", "1"))
	o, err := svc.PlaceOrder(context.Background(), c, PlaceOrderRequest{CustomerID: "u1", Pickup: asap()})
	require.NoError(t, err)

	c.Add(item("a", "1"), cart.ShopRef{ID: "s1"})
	c.Add(item("a", "1"), cart.ShopRef{ID: "s1"})

	assert.Equal(t, 1, o.Lines[0].Quantity)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cart  func(t *testing.T) *cart.Store
		req   PlaceOrderRequest
		field string
	}{
		{
			name:  "empty cart",
			cart:  func(*testing.T) *cart.Store { return cart.New() },
			req:   PlaceOrderRequest{CustomerID: "u1", Pickup: asap()},
			field: "cart",
		},
		{
			name:  "nil cart",
			cart:  func(*testing.T) *cart.Store { return nil },
			req:   PlaceOrderRequest{CustomerID: "u1", Pickup: asap()},
			field: "cart",
		},
		{
			name:  "missing customer",
			cart:  func(t *testing.T) *cart.Store { return cartWith(t, "s1", item("a", "1")) },
			req:   PlaceOrderRequest{Pickup: asap()},
			field: "customerId",
		},
		{
			name:  "scheduled pickup without time",
			cart:  func(t *testing.T) *cart.Store { return cartWith(t, "s1", item("a", "1")) },
			req:   PlaceOrderRequest{CustomerID: "u1", Pickup: Pickup{Mode: PickupScheduled, Time: "  "}},
			field: "pickupTime",
		},
		{
			name:  "unknown pickup mode",
			cart:  func(t *testing.T) *cart.Store { return cartWith(t, "s1", item("a", "1")) },
			req:   PlaceOrderRequest{CustomerID: "u1", Pickup: Pickup{Mode: "later"}},
			field: "pickupMode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			mirror := newMockMirror()
			svc := newTestService(t, store, mirror, nil)

			c := tt.cart(t)
			_, err := svc.PlaceOrder(context.Background(), c, tt.req)
			require.Error(t, err)

			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.field, ve.Field)

			assert.Zero(t, store.inserts)
			assert.Empty(t, mirror.sets)
			if c != nil && tt.field != "cart" {
				assert.Equal(t, 1, c.ItemCount())
			}
		})
	}
}

func TestPlaceOrder_ScheduledPickup(t *testing.T) {
	svc := newTestService(t, newMockStore(), newMockMirror(), nil)

	o, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "3.5")), PlaceOrderRequest{
		CustomerID: "u1",
		Pickup:     Pickup{Mode: PickupScheduled, Time: "2:30 PM"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2:30 PM", o.Pickup.String())
}

func TestPlaceOrder_PrimaryFailureKeepsCart(t *testing.T) {
	store := newMockStore()
	store.insertErr = errors.New("connection refused")
	mirror := newMockMirror()
	svc := newTestService(t, store, mirror, nil)

	c := cartWith(t, "s1", item("a", "2"), item("b", "3"))
	_, err := svc.PlaceOrder(context.Background(), c, PlaceOrderRequest{CustomerID: "u1", Pickup: asap()})
	require.Error(t, err)

	var pe *apperr.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.ErrorContains(t, err, "connection refused")

	assert.Equal(t, 2, c.ItemCount())
	assert.Empty(t, mirror.sets)
}

func TestPlaceOrder_MirrorFailureSwallowed(t *testing.T) {
	store := newMockStore()
	mirror := newMockMirror()
	mirror.err = errors.New("mirror offline")
	svc := newTestService(t, store, mirror, nil)

	c := cartWith(t, "s1", item("a", "2"))
	o, err := svc.PlaceOrder(context.Background(), c, PlaceOrderRequest{CustomerID: "u1", Pickup: asap()})
	require.NoError(t, err)

	assert.Equal(t, "o1", o.ID)
	assert.True(t, c.IsEmpty())
	_, err = store.Get(context.Background(), "o1")
	require.NoError(t, err)
}

func TestPlaceOrder_CancelledContextStillWrites(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, newMockMirror(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PlaceOrder(ctx, cartWith(t, "s1", item("a", "1")), PlaceOrderRequest{CustomerID: "u1", Pickup: asap()})
	require.NoError(t, err)
	assert.Equal(t, 1, store.inserts)
}

func TestPlaceOrder_Idempotency(t *testing.T) {
	t.Run("replay returns first order", func(t *testing.T) {
		store := newMockStore()
		idem := newMockIdempotency()
		svc := newTestService(t, store, newMockMirror(), idem)

		req := PlaceOrderRequest{CustomerID: "u1", Pickup: asap(), IdempotencyKey: "k1"}
		first, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")), req)
		require.NoError(t, err)

		second, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")), req)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.inserts)
	})

	t.Run("in-flight key conflicts", func(t *testing.T) {
		idem := newMockIdempotency()
		idem.entries["u1:k1"] = idemEntry{}
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), idem)

		_, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")),
			PlaceOrderRequest{CustomerID: "u1", Pickup: asap(), IdempotencyKey: "k1"})

		var ce *apperr.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "k1", ce.Key)
		assert.Zero(t, store.inserts)
	})

	t.Run("empty cart writes nothing", func(t *testing.T) {
		idem := newMockIdempotency()
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), idem)

		_, err := svc.PlaceOrder(context.Background(), cart.New(),
			PlaceOrderRequest{CustomerID: "u1", Pickup: asap(), IdempotencyKey: "k1"})
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Zero(t, idem.writes)
		assert.NotContains(t, idem.entries, "u1:k1")
		assert.Zero(t, store.inserts)
	})

	t.Run("replay after cart cleared", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), newMockIdempotency())

		req := PlaceOrderRequest{CustomerID: "u1", Pickup: asap(), IdempotencyKey: "k1"}
		c := cartWith(t, "s1", item("a", "1"))
		first, err := svc.PlaceOrder(context.Background(), c, req)
		require.NoError(t, err)
		require.True(t, c.IsEmpty())

		second, err := svc.PlaceOrder(context.Background(), c, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.inserts)
	})

	t.Run("store failure is fail-open", func(t *testing.T) {
		idem := newMockIdempotency()
		idem.claimErr = errors.New("redis down")
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), idem)

		_, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")),
			PlaceOrderRequest{CustomerID: "u1", Pickup: asap(), IdempotencyKey: "k1"})
		require.NoError(t, err)
		assert.Equal(t, 1, store.inserts)
	})

	t.Run("keys are scoped per customer", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), newMockIdempotency())

		for _, customer := range []string{"u1", "u2"} {
			_, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")),
				PlaceOrderRequest{CustomerID: customer, Pickup: asap(), IdempotencyKey: "k1"})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, store.inserts)
	})
}

func TestCancel(t *testing.T) {
	place := func(t *testing.T, svc *Service) *Order {
		t.Helper()
		o, err := svc.PlaceOrder(context.Background(), cartWith(t, "s1", item("a", "1")),
			PlaceOrderRequest{CustomerID: "u1", Pickup: asap()})
		require.NoError(t, err)
		return o
	}

	t.Run("pending order", func(t *testing.T) {
		store := newMockStore()
		mirror := newMockMirror()
		svc := newTestService(t, store, mirror, nil)
		o := place(t, svc)

		got, err := svc.Cancel(context.Background(), "u1", o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)

		stored, err := store.Get(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)

		for _, path := range []string{"shopOrders/s1/o1", "customerOrders/u1/o1"} {
			require.Contains(t, mirror.updates, path)
			assert.Equal(t, "cancelled", decodeField(t, mirror.updates[path], "status"))
		}
	})

	t.Run("confirmed order", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), nil)
		o := place(t, svc)
		store.orders[o.ID].Status = StatusConfirmed

		_, err := svc.Cancel(context.Background(), "u1", o.ID)

		var se *apperr.InvalidStateError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "confirmed", se.Status)
		assert.Equal(t, StatusConfirmed, store.orders[o.ID].Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := newTestService(t, newMockStore(), newMockMirror(), nil)

		_, err := svc.Cancel(context.Background(), "u1", "nope")

		var nf *apperr.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "order", nf.Kind)
	})

	t.Run("order of another customer", func(t *testing.T) {
		svc := newTestService(t, newMockStore(), newMockMirror(), nil)
		o := place(t, svc)

		_, err := svc.Cancel(context.Background(), "u2", o.ID)

		var nf *apperr.NotFoundError
		require.True(t, errors.As(err, &nf))
	})

	t.Run("concurrent status change", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(t, store, newMockMirror(), nil)
		o := place(t, svc)
		store.transErr = ErrStatusMismatch

		_, err := svc.Cancel(context.Background(), "u1", o.ID)

		var se *apperr.InvalidStateError
		require.True(t, errors.As(err, &se))
	})

	t.Run("mirror failure swallowed", func(t *testing.T) {
		store := newMockStore()
		mirror := newMockMirror()
		svc := newTestService(t, store, mirror, nil)
		o := place(t, svc)
		mirror.err = errors.New("mirror offline")

		got, err := svc.Cancel(context.Background(), "u1", o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})
}

func TestEncodeRecord(t *testing.T) {
	o := &Order{
		ID:         "o1",
		CustomerID: "u1",
		ShopID:     "s1",
		ShopName:   "Campus Cafe",
		Lines: []cart.Line{
			{ItemID: "a", Name: "Latte", UnitPrice: decimal.RequireFromString("4.5"), Quantity: 2},
		},
		TotalAmount: decimal.RequireFromString("9"),
		Status:      StatusPending,
		Pickup:      Pickup{Mode: PickupASAP},
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}

	raw := EncodeRecord(o)
	assert.Equal(t, "ASAP", decodeField(t, raw, "pickupTime"))
	assert.Equal(t, "2026-03-14T09:30:00Z", decodeField(t, raw, "createdAt"))
	assert.Equal(t, "9.00", decodeField(t, raw, "totalAmount"))
	assert.NotContains(t, string(raw), "customerEmail")
}

// decodeField returns the raw string or number value of a top-level field.
func decodeField(t *testing.T, raw []byte, field string) string {
	t.Helper()
	var out string
	d := jx.DecodeBytes(raw)
	require.NoError(t, d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != field {
			return d.Skip()
		}
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			out = v
			return err
		case jx.Number:
			n, err := d.Num()
			out = n.String()
			return err
		default:
			return d.Skip()
		}
	}))
	return out
}
