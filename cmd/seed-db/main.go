package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ezyeats/db"
	"github.com/xenking/ezyeats/internal/domain/shop"
	"github.com/xenking/ezyeats/internal/handler"
	"github.com/xenking/ezyeats/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageRef    string          `json:"imageRef"`
	Available   bool            `json:"available"`
}

type shopJSON struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Location    string        `json:"location"`
	Description string        `json:"description"`
	ImageRef    string        `json:"imageRef"`
	IsOpen      bool          `json:"isOpen"`
	Products    []productJSON `json:"products"`
}

func main() {
	var (
		databaseURL string
		shopsFile   string
		customerID  string
		email       string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&shopsFile, "shops-file", "", "path to shops JSON file (defaults to the embedded seed)")
	flag.StringVar(&customerID, "token-for", "", "print a bearer token for this customer id (needs EZY_JWT_SECRET)")
	flag.StringVar(&email, "token-email", "", "email claim of the printed token")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed token")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, shopsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")

	if customerID != "" {
		if err := printToken(customerID, email, tokenTTL); err != nil {
			slog.Error("mint token failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, databaseURL, shopsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedShops
	if shopsFile != "" {
		slog.Info("reading shops file", slog.String("path", shopsFile))
		if data, err = os.ReadFile(shopsFile); err != nil {
			return errors.Wrap(err, "read shops file")
		}
	}

	var shops []shopJSON
	if err := json.Unmarshal(data, &shops); err != nil {
		return errors.Wrap(err, "parse shops JSON")
	}

	repo := postgres.NewShopRepository(pool)
	for _, s := range shops {
		products := make([]shop.Product, 0, len(s.Products))
		for _, p := range s.Products {
			products = append(products, shop.Product{
				ID:          p.ID,
				ShopID:      s.ID,
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				Category:    p.Category,
				ImageRef:    p.ImageRef,
				Available:   p.Available,
			})
		}

		if err := repo.Upsert(ctx, shop.Shop{
			ID:          s.ID,
			Name:        s.Name,
			Category:    s.Category,
			Location:    s.Location,
			Description: s.Description,
			ImageRef:    s.ImageRef,
			IsOpen:      s.IsOpen,
		}, products); err != nil {
			return errors.Wrapf(err, "upsert shop %s", s.ID)
		}

		slog.Info("upserted shop",
			slog.String("id", s.ID),
			slog.String("name", s.Name),
			slog.Int("products", len(products)),
		)
	}

	return nil
}

func printToken(customerID, email string, ttl time.Duration) error {
	auth, err := handler.NewAuthenticator(os.Getenv("EZY_JWT_SECRET"), os.Getenv("EZY_JWT_ISSUER"))
	if err != nil {
		return err
	}
	token, err := auth.Mint(handler.Customer{ID: customerID, Email: email}, time.Now(), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
