package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage and usage driver names.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (COUPON_ prefix) or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Usage     UsageConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// StorageConfig selects where the coupon catalog lives.
type StorageConfig struct {
	Driver      string `default:"memory" usage:"Catalog storage: memory or postgres"`
	DatabaseURL string `usage:"PostgreSQL connection URL (COUPON_STORAGE_DATABASE_URL or DATABASE_URL)"`
}

// UsageConfig selects where per-user coupon usage is recorded. An empty
// driver follows the catalog storage.
type UsageConfig struct {
	Driver        string `default:"" usage:"Usage ledger: memory, postgres or redis (defaults to the storage driver)"`
	RedisAddr     string `default:"" usage:"Redis address for the redis usage ledger"`
	RedisPassword string `default:"" usage:"Redis password"`
	RedisDB       int    `default:"0" usage:"Redis database number"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COUPON",
		SkipFlags: true,
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
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

// UsageDriver returns the effective usage ledger driver.
func (c *Config) UsageDriver() string {
	if c.Usage.Driver == "" {
		return c.Storage.Driver
	}
	return c.Usage.Driver
}

// Validate checks driver names and the settings each driver needs.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required for postgres storage: set COUPON_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.UsageDriver() {
	case DriverMemory:
	case DriverPostgres:
		// coupon_usage references coupons(code).
		if c.Storage.Driver != DriverPostgres {
			return errors.New("postgres usage ledger requires postgres storage")
		}
	case DriverRedis:
		if c.Usage.RedisAddr == "" {
			return errors.New("redis address is required for the redis usage ledger")
		}
	default:
		return errors.Errorf("unknown usage driver %q", c.Usage.Driver)
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the COUPON_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
