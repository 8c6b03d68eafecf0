package shop

import (
	"context"

	"github.com/shopspring/decimal"
)

// Shop is a vendor offering a menu of items for pickup.
type Shop struct {
	ID          string
	Name        string
	Category    string
	Location    string
	Description string
	ImageRef    string
	IsOpen      bool
}

// Product is a purchasable menu item of a single shop.
type Product struct {
	ID          string
	ShopID      string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageRef    string
	Available   bool
}

// Repository defines read operations for shops and their menus.
type Repository interface {
	ListShops(ctx context.Context) ([]Shop, error)
	// GetShop returns ErrNotFound when no shop has the given id.
	GetShop(ctx context.Context, id string) (*Shop, error)
	ListProducts(ctx context.Context, shopID string) ([]Product, error)
	// GetProduct returns ErrNotFound when the shop has no such product.
	GetProduct(ctx context.Context, shopID, productID string) (*Product, error)
}
