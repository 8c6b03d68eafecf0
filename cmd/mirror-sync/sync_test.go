package main

import (
	"bufio"
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
	"github.com/xenking/ezyeats/internal/storage/redis"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	getErr error
}

func (m *memOrders) Each(ctx context.Context, fn func(*order.Order) error) error {
	m.mu.Lock()
	list := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		list = append(list, o)
	}
	m.mu.Unlock()

	for _, o := range list {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func testOrder(id, customerID, shopID string) *order.Order {
	return &order.Order{
		ID:          id,
		CustomerID:  customerID,
		ShopID:      shopID,
		ShopName:    "Campus Cafe",
		TotalAmount: decimal.RequireFromString("4.50"),
		Status:      order.StatusPending,
		Pickup:      order.Pickup{Mode: order.PickupASAP},
		CreatedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func setupMirror(t *testing.T) *redis.Mirror {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewMirror(client)
}

func TestSyncer_RebuildsAndPrunes(t *testing.T) {
	ctx := context.Background()
	mirror := setupMirror(t)

	durable := &memOrders{orders: map[string]*order.Order{
		"o1": testOrder("o1", "u1", "campus-cafe"),
		"o2": testOrder("o2", "u2", "noodle-bar"),
	}}

	// Stale copy of o1 plus an orphan left by a deleted order.
	stale := testOrder("o1", "u1", "campus-cafe")
	stale.Status = order.StatusCancelled
	for _, path := range order.IndexPaths(stale) {
		require.NoError(t, mirror.Set(ctx, path, order.EncodeRecord(stale)))
	}
	orphan := testOrder("gone", "u1", "campus-cafe")
	for _, path := range order.IndexPaths(orphan) {
		require.NoError(t, mirror.Set(ctx, path, order.EncodeRecord(orphan)))
	}

	var export bytes.Buffer
	s := &syncer{orders: durable, mirror: mirror, opts: options{workers: 2, expected: 100, export: &export}}
	require.NoError(t, s.run(ctx))

	u1, err := mirror.Get(ctx, order.CustomerIndex("u1"))
	require.NoError(t, err)
	require.Len(t, u1, 1)
	o1, err := feed.DecodeRecord("o1", u1["o1"])
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o1.Status)

	cafe, err := mirror.Get(ctx, order.ShopIndex("campus-cafe"))
	require.NoError(t, err)
	assert.Len(t, cafe, 1)
	assert.NotContains(t, cafe, "gone")

	u2, err := mirror.Get(ctx, order.CustomerIndex("u2"))
	require.NoError(t, err)
	assert.Contains(t, u2, "o2")

	var lines int
	sc := bufio.NewScanner(&export)
	for sc.Scan() {
		_, err := feed.DecodeRecord("", sc.Bytes())
		require.NoError(t, err)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSyncer_DryRunKeepsOrphans(t *testing.T) {
	ctx := context.Background()
	mirror := setupMirror(t)

	orphan := testOrder("gone", "u1", "campus-cafe")
	for _, path := range order.IndexPaths(orphan) {
		require.NoError(t, mirror.Set(ctx, path, order.EncodeRecord(orphan)))
	}

	s := &syncer{orders: &memOrders{}, mirror: mirror, opts: options{workers: 1, expected: 10, dryRun: true}}
	known, _, err := s.rebuild(ctx)
	require.NoError(t, err)

	r, err := s.prune(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.orphans)

	records, err := mirror.Get(ctx, order.CustomerIndex("u1"))
	require.NoError(t, err)
	assert.Contains(t, records, "gone")
}

func TestSyncer_KeepsOrdersPlacedDuringSync(t *testing.T) {
	ctx := context.Background()
	mirror := setupMirror(t)
	durable := &memOrders{orders: map[string]*order.Order{}}

	s := &syncer{orders: durable, mirror: mirror, opts: options{workers: 1, expected: 10}}
	known, _, err := s.rebuild(ctx)
	require.NoError(t, err)

	// Placed after the rebuild pass read the durable store.
	late := testOrder("late", "u3", "bagel-hut")
	durable.orders["late"] = late
	for _, path := range order.IndexPaths(late) {
		require.NoError(t, mirror.Set(ctx, path, order.EncodeRecord(late)))
	}

	r, err := s.prune(ctx, known)
	require.NoError(t, err)
	assert.Zero(t, r.orphans)
	assert.Equal(t, int64(2), r.scanned)
}

func TestSyncer_PruneStoreError(t *testing.T) {
	ctx := context.Background()
	mirror := setupMirror(t)

	orphan := testOrder("gone", "u1", "campus-cafe")
	require.NoError(t, mirror.Set(ctx, order.IndexPaths(orphan)[1], order.EncodeRecord(orphan)))

	s := &syncer{orders: &memOrders{getErr: errors.New("connection reset")}, mirror: mirror, opts: options{workers: 1, expected: 10}}
	known, _, err := s.rebuild(ctx)
	require.NoError(t, err)

	_, err = s.prune(ctx, known)
	require.Error(t, err)

	records, err := mirror.Get(ctx, order.CustomerIndex("u1"))
	require.NoError(t, err)
	assert.Contains(t, records, "gone")
}
