package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"

	pkgconfig "github.com/utafrali/catalogcore/pkg/config"
	"github.com/utafrali/catalogcore/pkg/database"
	"github.com/utafrali/catalogcore/pkg/tracing"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Object store backends.
const (
	ObjectStoreGCS    = "gcs"
	ObjectStoreNATS   = "nats"
	ObjectStoreMemory = "memory"
)

// Config holds all configuration for the catalog service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Ops HTTP server
	HTTPPort int `env:"CATALOG_HTTP_PORT" envDefault:"8001" validate:"gte=1,lte=65535"`

	// Product document store
	Store    string `env:"CATALOG_STORE" envDefault:"postgres" validate:"oneof=postgres mongo memory"`
	Postgres database.PostgresConfig
	Mongo    database.MongoConfig

	// Read-through cache in front of the store
	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"false"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"5m" validate:"gt=0"`
	Redis        database.RedisConfig

	// Kafka. Without brokers, catalog events are dropped.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Remote object store for product images and brand logos
	ObjectStore        string `env:"OBJECT_STORE" envDefault:"memory" validate:"oneof=gcs nats memory"`
	GCSBucket          string `env:"GCS_BUCKET"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	NATSURL            string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSBucket         string `env:"NATS_OBJECT_BUCKET" envDefault:"catalog-media"`
	MediaBaseURL       string `env:"MEDIA_BASE_URL"`

	// Media lifecycle
	MediaCallTimeout       time.Duration `env:"MEDIA_CALL_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	MediaMaxAttempts       int           `env:"MEDIA_MAX_ATTEMPTS" envDefault:"3" validate:"gte=1"`
	MediaRetryWait         time.Duration `env:"MEDIA_RETRY_WAIT" envDefault:"200ms" validate:"gt=0"`
	MediaUploadConcurrency int           `env:"MEDIA_UPLOAD_CONCURRENCY" envDefault:"4" validate:"gte=1"`
	MediaFetchTimeout      time.Duration `env:"MEDIA_FETCH_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MediaFetchMaxBytes     int64         `env:"MEDIA_FETCH_MAX_BYTES" envDefault:"10485760" validate:"gt=0"`

	// Optimistic write retry budgets
	ReviewMaxAttempts int `env:"REVIEW_MAX_ATTEMPTS" envDefault:"5" validate:"gte=1"`
	UpdateMaxAttempts int `env:"PRODUCT_UPDATE_MAX_ATTEMPTS" envDefault:"3" validate:"gte=1"`

	// OpenTelemetry
	Tracing tracing.Config

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThreshold time.Duration `env:"LOG_SLOW_QUERY" envDefault:"500ms"`
}

// Load reads configuration from environment variables, then applies
// command-line overrides from args (typically os.Args[1:]). extra lets a
// command register its own flags on the same set.
func Load(args []string, extra ...func(*pflag.FlagSet)) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}

	fs := pflag.NewFlagSet("catalog", pflag.ContinueOnError)
	fs.StringVar(&cfg.Store, "store", cfg.Store, "product store: postgres, mongo or memory")
	fs.StringVar(&cfg.ObjectStore, "object-store", cfg.ObjectStore, "object store: gcs, nats or memory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "ops HTTP port")
	fs.BoolVar(&cfg.CacheEnabled, "cache", cfg.CacheEnabled, "enable the Redis read-through cache")
	for _, register := range extra {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules struct tags cannot express. It
// also rechecks the tags, since flags are applied after parsing.
func (c *Config) Validate() error {
	if err := pkgconfig.Check(c); err != nil {
		return err
	}
	if c.ObjectStore == ObjectStoreGCS && c.GCSBucket == "" {
		return fmt.Errorf("GCS_BUCKET is required when OBJECT_STORE=gcs")
	}
	if c.ObjectStore == ObjectStoreNATS && (c.NATSURL == "" || c.NATSBucket == "") {
		return fmt.Errorf("NATS_URL and NATS_OBJECT_BUCKET are required when OBJECT_STORE=nats")
	}
	if c.Store == StorePostgres && c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required when CATALOG_STORE=postgres")
	}
	if c.Store == StoreMongo && c.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required when CATALOG_STORE=mongo")
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid PPROF_ALLOWED_CIDRS entry %q: %w", cidr, err)
		}
	}
	return nil
}

// PublicBaseURL is the prefix object URLs are built from. It falls back to
// this host when MEDIA_BASE_URL is unset.
func (c *Config) PublicBaseURL() string {
	if c.MediaBaseURL != "" {
		return c.MediaBaseURL
	}
	return fmt.Sprintf("http://localhost:%d", c.HTTPPort)
}
