package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Counter counts hits in fixed windows. It is shared by all replicas, so
// limits hold across the fleet.
type Counter interface {
	// Incr records a hit for scope and returns the hits so far in the current
	// window and the time until the window resets.
	Incr(ctx context.Context, scope string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max requests per window and key.
	Max int
	Window time.Duration
	// KeyFunc returns the limit key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

var rateLimitedBody = []byte(`{"code":429,"message":"rate limit exceeded"}`)

// RateLimit enforces a fixed-window limit per key. If the counter is
// unavailable the request is let through.
func RateLimit(counter Counter, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, ttl, err := counter.Incr(r.Context(), keyFunc(r), cfg.Window)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit counter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(int64(cfg.Max)-count, 0)
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if count > int64(cfg.Max) {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write(rateLimitedBody)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
