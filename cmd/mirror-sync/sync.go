package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ezyeats/internal/domain/order"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// durableOrders is the authoritative order store.
type durableOrders interface {
	Each(ctx context.Context, fn func(*order.Order) error) error
	Get(ctx context.Context, id string) (*order.Order, error)
}

// mirrorStore is the live-sync mirror being repaired.
type mirrorStore interface {
	Set(ctx context.Context, path string, record []byte) error
	Delete(ctx context.Context, path string) error
	Walk(ctx context.Context, root string, fn func(path string) error) error
}

type options struct {
	workers  int
	expected uint
	dryRun   bool
	export   io.Writer
}

type syncer struct {
	orders durableOrders
	mirror mirrorStore
	opts   options
}

type report struct {
	written int64
	scanned int64
	orphans int64
}

func (s *syncer) run(ctx context.Context) error {
	// Pass 1: rewrite every durable order into both indexes.
	slog.Info("pass 1: rebuilding mirror", slog.Int("workers", s.opts.workers))

	known, written, err := s.rebuild(ctx)
	if err != nil {
		return errors.Wrap(err, "rebuild mirror")
	}
	slog.Info("pass 1 complete", slog.Int64("orders", written))

	// Pass 2: drop records whose order is gone from the durable store.
	slog.Info("pass 2: pruning orphaned records", slog.Bool("dry_run", s.opts.dryRun))

	r, err := s.prune(ctx, known)
	if err != nil {
		return errors.Wrap(err, "prune mirror")
	}
	slog.Info("pass 2 complete",
		slog.Int64("scanned", r.scanned),
		slog.Int64("orphans", r.orphans),
	)
	return nil
}

// rebuild writes every durable order to the mirror and returns a bloom
// filter of the order ids it saw.
func (s *syncer) rebuild(ctx context.Context) (*bloom.BloomFilter, int64, error) {
	known := bloom.NewWithEstimates(max(s.opts.expected, 1), bloomFPR)
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.opts.workers, 1))

	err := s.orders.Each(gctx, func(o *order.Order) error {
		known.AddString(o.ID)
		record := order.EncodeRecord(o)

		if s.opts.export != nil {
			if _, err := s.opts.export.Write(record); err != nil {
				return errors.Wrap(err, "export order")
			}
			if _, err := io.WriteString(s.opts.export, "\n"); err != nil {
				return errors.Wrap(err, "export order")
			}
		}

		paths := order.IndexPaths(o)
		g.Go(func() error {
			for _, path := range paths {
				if err := s.mirror.Set(gctx, path, record); err != nil {
					return errors.Wrapf(err, "write %s", path)
				}
			}
			if n := written.Add(1); n%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.Int64("orders", n))
			}
			return nil
		})
		return gctx.Err()
	})
	if werr := g.Wait(); werr != nil {
		return nil, 0, werr
	}
	if err != nil {
		return nil, 0, err
	}
	return known, written.Load(), nil
}

// prune walks both indexes and deletes records whose order id is not in the
// durable store. The bloom filter answers most lookups; only ids it rules
// out are confirmed against the store, so orders placed during the sync are
// kept.
func (s *syncer) prune(ctx context.Context, known *bloom.BloomFilter) (report, error) {
	var r report
	for _, root := range []string{order.ShopIndexRoot, order.CustomerIndexRoot} {
		err := s.mirror.Walk(ctx, root, func(path string) error {
			r.scanned++
			id := path[strings.LastIndexByte(path, '/')+1:]
			if known.TestString(id) {
				return nil
			}

			_, err := s.orders.Get(ctx, id)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, order.ErrNotFound):
				return errors.Wrapf(err, "check order %s", id)
			}

			r.orphans++
			slog.Info("orphaned record", slog.String("path", path))
			if s.opts.dryRun {
				return nil
			}
			return s.mirror.Delete(ctx, path)
		})
		if err != nil {
			return r, errors.Wrapf(err, "walk %s", root)
		}
	}
	return r, nil
}
