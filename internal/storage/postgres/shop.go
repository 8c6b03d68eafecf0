package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ezyeats/internal/domain/shop"
)

const (
	listShopsSQL = `SELECT id, name, category, location, description, image_ref, is_open
		FROM shops ORDER BY name, id`

	getShopSQL = `SELECT id, name, category, location, description, image_ref, is_open
		FROM shops WHERE id = $1`

	listProductsSQL = `SELECT id, shop_id, name, description, price, category, image_ref, available
		FROM products WHERE shop_id = $1 ORDER BY position, id`

	getProductSQL = `SELECT id, shop_id, name, description, price, category, image_ref, available
		FROM products WHERE shop_id = $1 AND id = $2`

	upsertShopSQL = `INSERT INTO shops (id, name, category, location, description, image_ref, is_open)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
			location = EXCLUDED.location, description = EXCLUDED.description,
			image_ref = EXCLUDED.image_ref, is_open = EXCLUDED.is_open`

	upsertProductSQL = `INSERT INTO products (id, shop_id, name, description, price, category, image_ref, available, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET shop_id = EXCLUDED.shop_id, name = EXCLUDED.name,
			description = EXCLUDED.description, price = EXCLUDED.price, category = EXCLUDED.category,
			image_ref = EXCLUDED.image_ref, available = EXCLUDED.available, position = EXCLUDED.position`
)

var _ shop.Repository = (*ShopRepository)(nil)

// ShopRepository implements shop.Repository backed by PostgreSQL.
type ShopRepository struct {
	pool *pgxpool.Pool
}

// NewShopRepository returns a ShopRepository that uses the given pool.
func NewShopRepository(pool *pgxpool.Pool) *ShopRepository {
	return &ShopRepository{pool: pool}
}

// ListShops returns all shops ordered by name.
func (r *ShopRepository) ListShops(ctx context.Context) ([]shop.Shop, error) {
	rows, err := r.pool.Query(ctx, listShopsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shops: %w", err)
	}
	return pgx.CollectRows(rows, scanShop)
}

// GetShop returns a single shop by its identifier.
func (r *ShopRepository) GetShop(ctx context.Context, id string) (*shop.Shop, error) {
	rows, err := r.pool.Query(ctx, getShopSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting shop %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanShop)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, fmt.Errorf("getting shop %q: %w", id, err)
	}
	return &s, nil
}

// ListProducts returns the menu of a shop in display order.
func (r *ShopRepository) ListProducts(ctx context.Context, shopID string) ([]shop.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, shopID)
	if err != nil {
		return nil, fmt.Errorf("listing products of shop %q: %w", shopID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetProduct returns a single menu item of a shop.
func (r *ShopRepository) GetProduct(ctx context.Context, shopID, productID string) (*shop.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, shopID, productID)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", productID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shop.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", productID, err)
	}
	return &p, nil
}

// Upsert writes a shop and its products in one transaction. Product position
// follows the order of products.
func (r *ShopRepository) Upsert(ctx context.Context, s shop.Shop, products []shop.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertShopSQL,
			s.ID, s.Name, s.Category, s.Location, s.Description, s.ImageRef, s.IsOpen,
		); err != nil {
			return fmt.Errorf("upserting shop %q: %w", s.ID, err)
		}

		batch := &pgx.Batch{}
		for i, p := range products {
			batch.Queue(upsertProductSQL,
				p.ID, s.ID, p.Name, p.Description, p.Price, p.Category, p.ImageRef, p.Available, i,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting products of shop %q: %w", s.ID, err)
		}
		return nil
	})
}

func scanShop(row pgx.CollectableRow) (shop.Shop, error) {
	var s shop.Shop
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.Location, &s.Description, &s.ImageRef, &s.IsOpen)
	return s, err
}

func scanProduct(row pgx.CollectableRow) (shop.Product, error) {
	var p shop.Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageRef, &p.Available)
	return p, err
}
