package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
	"github.com/xenking/ezyeats/internal/domain/shop"
	"github.com/xenking/ezyeats/internal/handler"
	"github.com/xenking/ezyeats/internal/storage/postgres"
	"github.com/xenking/ezyeats/internal/storage/redis"
	"github.com/xenking/ezyeats/pkg/health"
	"github.com/xenking/ezyeats/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis backs the live-sync mirror, idempotency keys and rate limits.
	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "create redis client")
	}
	defer func() { _ = rdb.Close() }()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	mirror := redis.NewMirror(rdb)
	shops := shop.NewService(postgres.NewShopRepository(pool), cfg.QRPrefix)
	orders, err := order.NewService(postgres.NewOrderRepository(pool), mirror, order.Options{
		Idempotency:    redis.NewIdempotencyStore(rdb, cfg.IdempotencyTTL),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	feeds, err := feed.NewService(mirror, orders, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create feed service")
	}

	auth, err := handler.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return errors.Wrap(err, "create authenticator")
	}
	carts := cart.NewRegistry()
	if cfg.CartIdleTTL > 0 {
		go carts.RunSweeper(ctx, 10*time.Minute, cfg.CartIdleTTL, func(removed int) {
			if removed > 0 {
				lg.Debug("Swept idle carts", zap.Int("removed", removed), zap.Int("remaining", carts.Len()))
			}
		})
	}
	h := handler.NewHandler(shops, carts, orders, feeds)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", httpmiddleware.Wrap(h.Routes(auth.Middleware),
		httpmiddleware.RateLimit(redis.NewWindowCounter(rdb), httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No WriteTimeout: /api/orders/stream keeps responses open.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		// Requests accepted during the drain must not inherit the shutdown
		// signal; open order streams are closed by RegisterOnShutdown.
		BaseContext:    baseContext(ctx),
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:       cfg.CORS.Origins,
				AllowHeaders:  []string{"Authorization", "Content-Type", handler.IdempotencyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders: []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				Credentials:   cfg.CORS.Credentials,
				MaxAge:        24 * time.Hour,
			}),
			instrument("ezyeats-api", m),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
		),
	}

	server.RegisterOnShutdown(h.CloseStreams)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// baseContext keeps ctx values for every request but drops its cancellation.
func baseContext(ctx context.Context) func(net.Listener) context.Context {
	base := context.WithoutCancel(ctx)
	return func(net.Listener) context.Context { return base }
}

func instrument(operation string, m *app.Telemetry) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}
}
