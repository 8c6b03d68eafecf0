package shop

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/ezyeats/internal/domain/apperr"
)

// ErrNotFound is returned by repositories when a shop or product does not exist.
var ErrNotFound = errors.New("not found")

// AllCategories is the category value that disables category filtering.
const AllCategories = "All"

// Query narrows a shop listing.
type Query struct {
	// Search matches name, category or location, case-insensitively.
	Search   string
	Category string
}

// MenuQuery narrows a shop's product listing.
type MenuQuery struct {
	// Search matches product name or description, case-insensitively.
	Search   string
	Category string
}

// Menu is the filtered product list of a shop together with every category
// the shop offers.
type Menu struct {
	Shop       Shop
	Products   []Product
	Categories []string
}

// Service serves catalog reads for browsing and QR resolution.
type Service struct {
	repo     Repository
	qrPrefix string
}

// NewService creates a catalog Service. qrPrefix is the application prefix of
// shop QR payloads, e.g. "ezyeats-shop".
func NewService(repo Repository, qrPrefix string) *Service {
	return &Service{repo: repo, qrPrefix: qrPrefix}
}

// ListShops returns shops matching q in repository order. A non-empty search
// takes precedence over the category filter.
func (s *Service) ListShops(ctx context.Context, q Query) ([]Shop, error) {
	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list shops", Err: err}
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Shop, 0, len(shops))
	for _, sh := range shops {
		switch {
		case search != "":
			if !containsFold(search, sh.Name, sh.Category, sh.Location) {
				continue
			}
		case !matchCategory(q.Category, sh.Category):
			continue
		}
		out = append(out, sh)
	}
	return out, nil
}

// Shop returns a single shop.
func (s *Service) Shop(ctx context.Context, id string) (*Shop, error) {
	sh, err := s.repo.GetShop(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Kind: "shop", ID: id}
		}
		return nil, &apperr.PersistenceError{Op: "get shop", Err: err}
	}
	return sh, nil
}

// Menu returns the products of a shop filtered by q.
func (s *Service) Menu(ctx context.Context, shopID string, q MenuQuery) (*Menu, error) {
	sh, err := s.Shop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, shopID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list products", Err: err}
	}

	categories := []string{AllCategories}
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if _, ok := seen[p.Category]; ok || p.Category == "" {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]Product, 0, len(products))
	for _, p := range products {
		switch {
		case search != "":
			if !containsFold(search, p.Name, p.Description) {
				continue
			}
		case !matchCategory(q.Category, p.Category):
			continue
		}
		filtered = append(filtered, p)
	}

	return &Menu{Shop: *sh, Products: filtered, Categories: categories}, nil
}

// Product returns one menu item. Unavailable items are reported as a
// validation failure so they cannot be added to a cart.
func (s *Service) Product(ctx context.Context, shopID, productID string) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, shopID, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Kind: "product", ID: productID}
		}
		return nil, &apperr.PersistenceError{Op: "get product", Err: err}
	}
	if !p.Available {
		return nil, apperr.Invalid("itemId", fmt.Sprintf("product %s is not available", productID))
	}
	return p, nil
}

// Resolve decodes a scanned QR payload and fetches the shop it points to.
func (s *Service) Resolve(ctx context.Context, payload string) (*Shop, error) {
	shopID, err := ParsePayload(payload, s.qrPrefix)
	if err != nil {
		return nil, err
	}
	return s.Shop(ctx, shopID)
}

func matchCategory(want, got string) bool {
	return want == "" || want == AllCategories || want == got
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
