package cart

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a read-only copy of a cart.
type Snapshot struct {
	Shop      *ShopRef
	Lines     []Line
	Total     decimal.Decimal
	ItemCount int
}

type session struct {
	mu       sync.Mutex
	store    *Store
	lastUsed time.Time
	evicted  bool
}

// Registry owns one cart per customer. Mutations of the same customer's cart
// are serialized; different customers never contend.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session), now: time.Now}
}

// Do runs fn with exclusive access to the customer's cart, creating an empty
// cart on first use.
func (r *Registry) Do(customerID string, fn func(*Store) error) error {
	for {
		// A session swept between lookup and lock is retried.
		if ok, err := r.session(customerID).run(r.now(), fn); ok {
			return err
		}
	}
}

func (s *session) run(now time.Time, fn func(*Store) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return false, nil
	}
	s.lastUsed = now
	return true, fn(s.store)
}

// Len returns the number of carts held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep discards carts not used for idle and returns how many were removed.
// Carts in use are skipped.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(cutoff) {
			s.evicted = true
			delete(r.sessions, id)
			removed++
		}
		s.mu.Unlock()
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. onSweep, if set,
// receives the number of carts removed by each pass.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := r.Sweep(idle)
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Snapshot returns a copy of the customer's cart.
func (r *Registry) Snapshot(customerID string) Snapshot {
	var snap Snapshot
	_ = r.Do(customerID, func(s *Store) error {
		snap = s.Snapshot()
		return nil
	})
	return snap
}

func (r *Registry) session(customerID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[customerID]
	if !ok {
		s = &session{store: New(), lastUsed: r.now()}
		r.sessions[customerID] = s
	}
	return s
}

// Snapshot returns a copy of the cart with derived totals.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Shop:      s.Shop(),
		Lines:     s.Lines(),
		Total:     s.TotalPrice(),
		ItemCount: s.ItemCount(),
	}
}
