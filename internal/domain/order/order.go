package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ezyeats/internal/domain/apperr"
	"github.com/xenking/ezyeats/internal/domain/cart"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the order is still moving towards pickup.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady:
		return true
	default:
		return false
	}
}

// ParseStatus validates a stored status value.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", errors.Errorf("unknown order status %q", v)
	}
}

// PickupMode selects between immediate and scheduled pickup.
type PickupMode string

const (
	PickupASAP      PickupMode = "asap"
	PickupScheduled PickupMode = "scheduled"
)

// asapLabel is the stored pickup value for immediate pickup.
const asapLabel = "ASAP"

// Pickup is the customer's requested fulfilment timing.
type Pickup struct {
	Mode PickupMode
	// Time is a free-form time string, e.g. "2:30 PM". Only used when Mode is
	// PickupScheduled.
	Time string
}

// String returns the stored form: "ASAP" or the explicit time.
func (p Pickup) String() string {
	if p.Mode == PickupScheduled {
		return p.Time
	}
	return asapLabel
}

// Validate checks that a scheduled pickup carries a time.
func (p Pickup) Validate() error {
	switch p.Mode {
	case PickupASAP:
		return nil
	case PickupScheduled:
		if strings.TrimSpace(p.Time) == "" {
			return apperr.Invalid("pickupTime", "is required for a scheduled pickup")
		}
		return nil
	default:
		return apperr.Invalid("pickupMode", fmt.Sprintf("unknown mode %q", p.Mode))
	}
}

// ParsePickup converts the stored form back into a Pickup.
func ParsePickup(v string) Pickup {
	if v == "" || strings.EqualFold(v, asapLabel) {
		return Pickup{Mode: PickupASAP}
	}
	return Pickup{Mode: PickupScheduled, Time: v}
}

// Order is an immutable snapshot of a checked-out cart plus its status.
type Order struct {
	ID                  string
	CustomerID          string
	CustomerEmail       string
	ShopID              string
	ShopName            string
	Lines               []cart.Line
	TotalAmount         decimal.Decimal
	Status              Status
	Pickup              Pickup
	SpecialInstructions string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound       = errors.New("order not found")
	ErrStatusMismatch = errors.New("order status changed concurrently")
)

// Store is the durable, query-capable order store and the source of truth.
type Store interface {
	// Insert persists a new order and returns the identifier it assigned.
	Insert(ctx context.Context, o *Order) (string, error)
	// Transition moves the order from one status to another. It returns
	// ErrStatusMismatch when the stored status is not from, and ErrNotFound
	// when the order does not exist.
	Transition(ctx context.Context, id string, from, to Status, at time.Time) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
}

// Mirror is the live-sync store. Records are JSON objects addressed by
// slash-separated paths.
type Mirror interface {
	Set(ctx context.Context, path string, record []byte) error
	// Update merges the fields of patch into the record at path. Missing
	// records are not created.
	Update(ctx context.Context, path string, patch []byte) error
}

// IdempotencyStore deduplicates checkout attempts carrying the same key.
type IdempotencyStore interface {
	// Claim reserves key within scope. claimed is true when the caller now
	// owns the key; otherwise orderID holds the order recorded for a finished
	// attempt, or is empty while the first attempt is still running.
	Claim(ctx context.Context, scope, key string) (orderID string, claimed bool, err error)
	// Lookup reads key without claiming it. found is false for unknown or
	// expired keys.
	Lookup(ctx context.Context, scope, key string) (orderID string, found bool, err error)
	Complete(ctx context.Context, scope, key, orderID string) error
	Release(ctx context.Context, scope, key string) error
}
