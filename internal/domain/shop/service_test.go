package shop

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ezyeats/internal/domain/apperr"
)

// --- Mock implementations ---

type mockRepo struct {
	shops    []Shop
	products map[string][]Product
	err      error
}

func (m *mockRepo) ListShops(_ context.Context) ([]Shop, error) {
	return m.shops, m.err
}

func (m *mockRepo) GetShop(_ context.Context, id string) (*Shop, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.shops {
		if m.shops[i].ID == id {
			return &m.shops[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListProducts(_ context.Context, shopID string) ([]Product, error) {
	return m.products[shopID], m.err
}

func (m *mockRepo) GetProduct(_ context.Context, shopID, productID string) (*Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products[shopID] {
		if p.ID == productID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// --- Helpers ---

func newCatalog() *mockRepo {
	return &mockRepo{
		shops: []Shop{
			{ID: "s1", Name: "Campus Cafe", Category: "Coffee", Location: "Library"},
			{ID: "s2", Name: "Noodle Bar", Category: "Asian", Location: "Food Court"},
			{ID: "s3", Name: "Bagel Hut", Category: "Bakery", Location: "North Gate"},
		},
		products: map[string][]Product{
			"s1": {
				{ID: "p1", ShopID: "s1", Name: "Latte", Description: "Milk coffee", Price: decimal.RequireFromString("3.50"), Category: "Drinks", Available: true},
				{ID: "p2", ShopID: "s1", Name: "Muffin", Description: "Blueberry", Price: decimal.RequireFromString("2.25"), Category: "Snacks", Available: true},
				{ID: "p3", ShopID: "s1", Name: "Mocha", Description: "Chocolate coffee", Price: decimal.RequireFromString("4.00"), Category: "Drinks", Available: false},
			},
		},
	}
}

// --- Tests ---

func TestListShops(t *testing.T) {
	svc := NewService(newCatalog(), DefaultQRPrefix)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "no filter", query: Query{}, want: []string{"s1", "s2", "s3"}},
		{name: "all category", query: Query{Category: AllCategories}, want: []string{"s1", "s2", "s3"}},
		{name: "category", query: Query{Category: "Asian"}, want: []string{"s2"}},
		{name: "search by name", query: Query{Search: "cafe"}, want: []string{"s1"}},
		{name: "search by location", query: Query{Search: "GATE"}, want: []string{"s3"}},
		{name: "search wins over category", query: Query{Search: "bar", Category: "Coffee"}, want: []string{"s2"}},
		{name: "no match", query: Query{Search: "pizza"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shops, err := svc.ListShops(context.Background(), tt.query)
			require.NoError(t, err)

			ids := make([]string, 0, len(shops))
			for _, s := range shops {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListShops_RepoError(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("db down")}, DefaultQRPrefix)

	_, err := svc.ListShops(context.Background(), Query{})

	var pErr *apperr.PersistenceError
	require.ErrorAs(t, err, &pErr)
}

func TestShop_NotFound(t *testing.T) {
	svc := NewService(newCatalog(), DefaultQRPrefix)

	_, err := svc.Shop(context.Background(), "missing")

	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "shop", nfErr.Kind)
	assert.Equal(t, "missing", nfErr.ID)
}

func TestMenu(t *testing.T) {
	svc := NewService(newCatalog(), DefaultQRPrefix)

	t.Run("categories in first-seen order", func(t *testing.T) {
		menu, err := svc.Menu(context.Background(), "s1", MenuQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{AllCategories, "Drinks", "Snacks"}, menu.Categories)
		assert.Len(t, menu.Products, 3)
		assert.Equal(t, "Campus Cafe", menu.Shop.Name)
	})

	t.Run("category filter", func(t *testing.T) {
		menu, err := svc.Menu(context.Background(), "s1", MenuQuery{Category: "Snacks"})
		require.NoError(t, err)
		require.Len(t, menu.Products, 1)
		assert.Equal(t, "p2", menu.Products[0].ID)
	})

	t.Run("search description", func(t *testing.T) {
		menu, err := svc.Menu(context.Background(), "s1", MenuQuery{Search: "coffee"})
		require.NoError(t, err)
		require.Len(t, menu.Products, 2)
		assert.Equal(t, "p1", menu.Products[0].ID)
		assert.Equal(t, "p3", menu.Products[1].ID)
	})

	t.Run("unknown shop", func(t *testing.T) {
		_, err := svc.Menu(context.Background(), "nope", MenuQuery{})
		var nfErr *apperr.NotFoundError
		require.ErrorAs(t, err, &nfErr)
	})
}

func TestProduct(t *testing.T) {
	svc := NewService(newCatalog(), DefaultQRPrefix)

	p, err := svc.Product(context.Background(), "s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Latte", p.Name)

	_, err = svc.Product(context.Background(), "s1", "p3")
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Product(context.Background(), "s1", "p9")
	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "product", nfErr.Kind)
}

func TestResolve(t *testing.T) {
	svc := NewService(newCatalog(), DefaultQRPrefix)

	t.Run("valid payload", func(t *testing.T) {
		sh, err := svc.Resolve(context.Background(), "ezyeats-shop:s2")
		require.NoError(t, err)
		assert.Equal(t, "Noodle Bar", sh.Name)
	})

	t.Run("foreign prefix", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), "otherapp:s2")
		var vErr *apperr.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("unknown shop", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), "ezyeats-shop:s9")
		var nfErr *apperr.NotFoundError
		require.ErrorAs(t, err, &nfErr)
	})
}

func TestParsePayload(t *testing.T) {
	id, err := ParsePayload("  ezyeats-shop:abc123 ", DefaultQRPrefix)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ParsePayload("ezyeats-shop:", DefaultQRPrefix)
	require.Error(t, err)

	_, err = ParsePayload("", DefaultQRPrefix)
	require.Error(t, err)
}
