package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/ezyeats/internal/domain/order"
)

const (
	idempotencyPrefix = "idemp"
	// An unfinished claim expires quickly so a lost Complete does not block
	// retries for the full ttl.
	idempotencyPendingTTL = 30 * time.Second
)

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore records checkout idempotency keys. A claimed key holds an
// empty value until the order id is recorded.
type IdempotencyStore struct {
	client  *redis.Client
	ttl     time.Duration
	pending time.Duration
}

// NewIdempotencyStore returns a store whose completed keys expire after ttl.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl, pending: min(idempotencyPendingTTL, ttl)}
}

func (s *IdempotencyStore) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	orderID, err := s.client.Get(ctx, buildKey(idempotencyPrefix, scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read idempotency key")
	}
	return orderID, true, nil
}

func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (string, bool, error) {
	k := buildKey(idempotencyPrefix, scope, key)
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, "", s.pending).Result()
		if err != nil {
			return "", false, errors.Wrap(err, "claim idempotency key")
		}
		if ok {
			return "", true, nil
		}
		orderID, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return "", false, errors.Wrap(err, "read idempotency key")
		}
		return orderID, false, nil
	}
	return "", false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, orderID string) error {
	if err := s.client.Set(ctx, buildKey(idempotencyPrefix, scope, key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "record idempotency key")
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, buildKey(idempotencyPrefix, scope, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}
