// Package cart holds the per-customer shopping cart. A cart only ever contains
// items of a single shop; adding an item of another shop discards the
// current contents first.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ShopRef identifies the shop a cart belongs to.
type ShopRef struct {
	ID   string
	Name string
}

// Item is a menu item offered for addition to the cart.
type Item struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// Line is one product entry in the cart. Quantity is at least 1 while the
// line exists.
type Line struct {
	ItemID    string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"imageRef,omitempty"`
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Store is the cart state of one customer session. It is not safe for
// concurrent use; Registry serializes access per customer.
type Store struct {
	shop  *ShopRef
	lines []Line
}

// New returns an empty cart.
func New() *Store {
	return &Store{}
}

// Add puts one unit of item into the cart. If the cart belongs to a different
// shop it is cleared first.
func (s *Store) Add(item Item, shop ShopRef) {
	if s.shop != nil && s.shop.ID != shop.ID {
		s.lines = nil
		s.shop = nil
	}
	if s.shop == nil {
		ref := shop
		s.shop = &ref
	}

	if i := s.index(item.ID); i >= 0 {
		s.lines[i].Quantity++
		return
	}
	s.lines = append(s.lines, Line{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  1,
		ImageRef:  item.ImageRef,
	})
}

// Remove takes one unit of itemID out of the cart, dropping the line when its
// quantity reaches zero. Removing the last line resets the shop. Unknown ids
// are ignored.
func (s *Store) Remove(itemID string) {
	i := s.index(itemID)
	if i < 0 {
		return
	}
	if s.lines[i].Quantity > 1 {
		s.lines[i].Quantity--
		return
	}
	s.lines = slices.Delete(s.lines, i, i+1)
	if len(s.lines) == 0 {
		s.Clear()
	}
}

// Clear empties the cart and resets the shop.
func (s *Store) Clear() {
	s.lines = nil
	s.shop = nil
}

// TotalPrice returns Σ(unitPrice × quantity).
func (s *Store) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount returns Σ(quantity).
func (s *Store) ItemCount() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// QuantityOf returns the quantity of itemID when the cart belongs to shopID,
// and 0 otherwise.
func (s *Store) QuantityOf(itemID, shopID string) int {
	if s.shop == nil || s.shop.ID != shopID {
		return 0
	}
	if i := s.index(itemID); i >= 0 {
		return s.lines[i].Quantity
	}
	return 0
}

// Shop returns the shop the cart belongs to, or nil for an empty cart.
func (s *Store) Shop() *ShopRef {
	if s.shop == nil {
		return nil
	}
	ref := *s.shop
	return &ref
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []Line {
	return slices.Clone(s.lines)
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	return len(s.lines) == 0
}

func (s *Store) index(itemID string) int {
	return slices.IndexFunc(s.lines, func(l Line) bool { return l.ItemID == itemID })
}
