package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
)

const mirrorPrefix = "mirror"

var (
	_ order.Mirror = (*Mirror)(nil)
	_ feed.Source  = (*Mirror)(nil)
)

// Mirror stores live-sync records in one hash per collection path. A record
// at "shopOrders/s1/o1" is field "o1" of hash "ezy:mirror:shopOrders/s1".
// Every write publishes the record id on a channel named like the hash.
type Mirror struct {
	client *redis.Client
}

// NewMirror returns a Mirror backed by client.
func NewMirror(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

// Set replaces the record at path.
func (m *Mirror) Set(ctx context.Context, path string, record []byte) error {
	key, id, err := splitPath(path)
	if err != nil {
		return err
	}
	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, id, record)
		pipe.Publish(ctx, key, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror set %q: %w", path, err)
	}
	return nil
}

// Update merges the top-level fields of patch into the record at path. A
// missing record is left missing; mirror-sync rebuilds it from the durable
// store.
func (m *Mirror) Update(ctx context.Context, path string, patch []byte) error {
	key, id, err := splitPath(path)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		merged, err := mergeObjects(current, patch)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, merged)
			pipe.Publish(ctx, key, id)
			return nil
		})
		return err
	}

	const maxRetries = 3
	for range maxRetries {
		err = m.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("mirror update %q: %w", path, err)
	}
	return nil
}

// Delete removes the record at path.
func (m *Mirror) Delete(ctx context.Context, path string) error {
	key, id, err := splitPath(path)
	if err != nil {
		return err
	}
	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, key, id)
		pipe.Publish(ctx, key, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror delete %q: %w", path, err)
	}
	return nil
}

// Get returns all records of the collection at path keyed by record id.
func (m *Mirror) Get(ctx context.Context, path string) (map[string][]byte, error) {
	values, err := m.client.HGetAll(ctx, buildKey(mirrorPrefix, path)).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror get %q: %w", path, err)
	}
	records := make(map[string][]byte, len(values))
	for id, v := range values {
		records[id] = []byte(v)
	}
	return records, nil
}

// Walk calls fn with the path of every record stored below root.
func (m *Mirror) Walk(ctx context.Context, root string, fn func(path string) error) error {
	prefix := buildKey(mirrorPrefix, root) + "/"
	iter := m.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		collection := strings.TrimPrefix(key, buildKey(mirrorPrefix, ""))
		ids, err := m.client.HKeys(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("mirror walk %q: %w", collection, err)
		}
		for _, id := range ids {
			if err := fn(collection + "/" + id); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("mirror walk %q: %w", root, err)
	}
	return nil
}

// Subscribe delivers the full collection at path to fn after every change,
// starting with the current contents. Empty collections are not delivered.
func (m *Mirror) Subscribe(ctx context.Context, path string, fn func(records map[string][]byte)) (func(), error) {
	key := buildKey(mirrorPrefix, path)
	ps := m.client.Subscribe(ctx, key)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("mirror subscribe %q: %w", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		deliver := func() {
			records, err := m.Get(ctx, path)
			if err != nil || len(records) == 0 {
				return
			}
			fn(records)
		}

		ch := ps.Channel()
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			wg.Wait()
		})
	}, nil
}

func splitPath(path string) (key, id string, err error) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", errors.Errorf("invalid record path %q", path)
	}
	return buildKey(mirrorPrefix, path[:i]), path[i+1:], nil
}

// mergeObjects overlays the fields of patch onto current. Field order of
// current is preserved; new fields are appended.
func mergeObjects(current, patch []byte) ([]byte, error) {
	type field struct {
		name  string
		value jx.Raw
	}
	var fields []field
	index := make(map[string]int)

	collect := func(raw []byte) error {
		return jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, k []byte) error {
			v, err := d.Raw()
			if err != nil {
				return err
			}
			name := string(k)
			if i, ok := index[name]; ok {
				fields[i].value = v
				return nil
			}
			index[name] = len(fields)
			fields = append(fields, field{name: name, value: v})
			return nil
		})
	}

	if len(current) > 0 {
		if err := collect(current); err != nil {
			return nil, errors.Wrap(err, "decode current record")
		}
	}
	if err := collect(patch); err != nil {
		return nil, errors.Wrap(err, "decode patch")
	}

	var e jx.Encoder
	e.ObjStart()
	for _, f := range fields {
		e.FieldStart(f.name)
		e.Raw(f.value)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}
