package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the API server configuration, loadable from environment
// variables (EZY_ prefix) or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL (EZY_DATABASE_URL or DATABASE_URL)"`
	RedisURL       string        `usage:"Redis URL for the live-sync mirror (EZY_REDIS_URL or REDIS_URL)"`
	JWTSecret      string        `usage:"HMAC secret for customer bearer tokens"`
	JWTIssuer      string        `default:"" usage:"Expected token issuer, empty accepts any"`
	QRPrefix       string        `default:"ezyeats-shop" usage:"Prefix of shop QR payloads"`
	IdempotencyTTL time.Duration `default:"24h" usage:"Lifetime of checkout idempotency keys"`
	CartIdleTTL    time.Duration `default:"24h" usage:"Carts untouched for this long are discarded"`
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers for web clients.
type CORSConfig struct {
	Origins     []string `default:"*" usage:"Allowed CORS origins"`
	Credentials bool     `default:"false" usage:"Allow credentialed requests"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EZY",
		SkipFlags: true,
		Files:     []string{"config.yaml", "/etc/ezyeats/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set EZY_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set EZY_REDIS_URL or REDIS_URL")
	case len(c.JWTSecret) < 32:
		return errors.New("EZY_JWT_SECRET must be at least 32 bytes")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided variables (DATABASE_URL,
// REDIS_URL, PORT) onto unset settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
