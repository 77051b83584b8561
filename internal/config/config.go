package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/natours/natours/pkg/config"
)

// DevJWTSecret is the signing secret used when JWT_SECRET is unset. It is
// rejected outside development.
const DevJWTSecret = "natours-development-secret-change-me"

const minJWTSecretLen = 32

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds all configuration for the natours API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"NATOURS_HTTP_PORT" envDefault:"8000"`

	// Storage backend: mongo or memory
	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`

	// MongoDB
	MongoURI            string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase       string        `env:"MONGO_DATABASE" envDefault:"natours"`
	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	MongoMaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`

	// Redis backs the tour cache and the consumer idempotency store.
	// An empty host disables both.
	RedisHost     string        `env:"REDIS_HOST"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	TourCacheTTL  time.Duration `env:"TOUR_CACHE_TTL" envDefault:"5m"`
	// CacheBreakerTimeout is how long tour cache calls fail fast after
	// Redis trips the breaker.
	CacheBreakerTimeout time.Duration `env:"CACHE_BREAKER_TIMEOUT" envDefault:"30s"`

	// Kafka. Without brokers, events are dispatched in process.
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"natours-ratings"`

	// Elasticsearch backs tour search. An empty URL keeps the index in
	// process.
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"natours_tours"`

	// Authentication
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"natours-development-secret-change-me"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"2160h"`

	// Ratings recomputation
	RecomputeAttempts int           `env:"RATINGS_RECOMPUTE_ATTEMPTS" envDefault:"3"`
	RecomputeTimeout  time.Duration `env:"RATINGS_RECOMPUTE_TIMEOUT" envDefault:"5s"`

	// Rate limiting per client IP. Zero RPS disables it.
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"200"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load natours config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// KafkaEnabled reports whether Kafka brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ElasticsearchEnabled reports whether an Elasticsearch cluster is
// configured.
func (c *Config) ElasticsearchEnabled() bool {
	return c.ElasticsearchURL != ""
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
		if _, err := url.Parse(c.MongoURI); err != nil {
			return fmt.Errorf("invalid MONGO_URI: %w", err)
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMongo, StoreMemory, c.StoreDriver)
	}
	if c.RedisEnabled() && (c.RedisPort < 1 || c.RedisPort > 65535) {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}
	if c.ElasticsearchEnabled() {
		if _, err := url.ParseRequestURI(c.ElasticsearchURL); err != nil {
			return fmt.Errorf("invalid ELASTICSEARCH_URL: %w", err)
		}
	}
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}
	if !c.IsDevelopment() && (c.JWTSecret == DevJWTSecret || len(c.JWTSecret) < minJWTSecretLen) {
		return fmt.Errorf("JWT_SECRET must be set to at least %d characters outside development", minJWTSecretLen)
	}
	if c.RecomputeAttempts < 1 {
		return fmt.Errorf("RATINGS_RECOMPUTE_ATTEMPTS must be at least 1, got %d", c.RecomputeAttempts)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
