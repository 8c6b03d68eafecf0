// Command mirror-sync rebuilds the live-sync order mirror from the durable
// order store and prunes mirror records whose order no longer exists.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/ezyeats/internal/storage/postgres"
	"github.com/xenking/ezyeats/internal/storage/redis"
)

func main() {
	var (
		databaseURL string
		redisURL    string
		exportPath  string
		opts        options
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL of the mirror (or REDIS_URL env)")
	flag.StringVar(&exportPath, "export", "", "also write every durable order to this gzip JSONL file")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent mirror writes")
	flag.UintVar(&opts.expected, "expected-orders", 1_000_000, "expected order count, sizes the bloom filter")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report orphaned mirror records without deleting them")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if databaseURL == "" || redisURL == "" {
		slog.Error("database and redis URLs are required: set --database-url/--redis-url or DATABASE_URL/REDIS_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, redisURL, exportPath, opts); err != nil {
		slog.Error("mirror sync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("mirror sync completed successfully")
}

func run(ctx context.Context, databaseURL, redisURL, exportPath string, opts options) (rerr error) {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("connecting to redis")

	rdb, err := redis.NewClient(ctx, redisURL)
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = rdb.Close() }()

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return errors.Wrap(err, "create export file")
		}
		gz := pgzip.NewWriter(f)
		defer func() {
			if err := closeAll(gz, f); err != nil && rerr == nil {
				rerr = errors.Wrap(err, "close export file")
			}
		}()
		opts.export = gz
	}

	s := &syncer{
		orders: postgres.NewOrderRepository(pool),
		mirror: redis.NewMirror(rdb),
		opts:   opts,
	}
	return s.run(ctx)
}

func closeAll(closers ...io.Closer) error {
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
