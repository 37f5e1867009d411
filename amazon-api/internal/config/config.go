package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration
type Config struct {
	Port string `env:"PORT" envDefault:"8083"`

	AccessKey      string        `env:"AMAZON_ACCESS_KEY"`
	SecretKey      string        `env:"AMAZON_SECRET_KEY"`
	Region         string        `env:"AMAZON_REGION" envDefault:"us-east-1"`
	PartnerTag     string        `env:"AMAZON_PARTNER_TAG"`
	APIHost        string        `env:"AMAZON_API_HOST" envDefault:"webservices.amazon.com"`
	StoreDomain    string        `env:"AMAZON_STORE_DOMAIN" envDefault:"www.amazon.com"`
	Marketplace    string        `env:"AMAZON_MARKETPLACE"`
	SubtagPrefix   string        `env:"ASC_SUBTAG_PREFIX" envDefault:"glowbot_"`
	RequestTimeout time.Duration `env:"AMAZON_REQUEST_TIMEOUT" envDefault:"8s"`

	RedisURL             string        `env:"REDIS_URL"`
	DynamoTable          string        `env:"CACHE_DYNAMODB_TABLE"`
	CacheDir             string        `env:"CACHE_DIR" envDefault:".cache/amazon"`
	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	StaleTTL             time.Duration `env:"CACHE_STALE_TTL" envDefault:"168h"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"1h"`

	RateLimitWindow     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMax        int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitTrustProxy bool          `env:"RATE_LIMIT_TRUST_PROXY"`

	KafkaBrokers             string `env:"KAFKA_BROKERS"`
	KafkaOffersTopic         string `env:"KAFKA_OFFERS_TOPIC" envDefault:"offers"`
	KafkaWishlistEventsTopic string `env:"KAFKA_WISHLIST_EVENTS_TOPIC" envDefault:"wishlist-events"`
	KafkaGroupID             string `env:"KAFKA_GROUP_ID" envDefault:"amazon-api-cache-warmer"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Amazon is the validated subset of Config needed to sign and send PA-API calls.
type Amazon struct {
	AccessKey      string
	SecretKey      string
	Region         string
	PartnerTag     string
	Host           string
	StoreDomain    string
	Marketplace    string
	SubtagPrefix   string
	RequestTimeout time.Duration
}

// ConfigurationError reports required settings that are missing at startup.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("amazon api not configured: missing %s", strings.Join(e.Missing, ", "))
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Amazon validates the PA-API credentials once. A *ConfigurationError means the
// integration must run disabled.
func (c *Config) Amazon() (Amazon, error) {
	var missing []string
	if strings.TrimSpace(c.AccessKey) == "" {
		missing = append(missing, "AMAZON_ACCESS_KEY")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		missing = append(missing, "AMAZON_SECRET_KEY")
	}
	if strings.TrimSpace(c.PartnerTag) == "" {
		missing = append(missing, "AMAZON_PARTNER_TAG")
	}
	if len(missing) > 0 {
		return Amazon{}, &ConfigurationError{Missing: missing}
	}

	marketplace := c.Marketplace
	if marketplace == "" {
		marketplace = c.StoreDomain
	}

	return Amazon{
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		Region:         c.Region,
		PartnerTag:     c.PartnerTag,
		Host:           c.APIHost,
		StoreDomain:    c.StoreDomain,
		Marketplace:    marketplace,
		SubtagPrefix:   c.SubtagPrefix,
		RequestTimeout: c.RequestTimeout,
	}, nil
}

// KafkaEnabled reports whether offer publishing and cache warming should start.
func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

// Brokers splits KAFKA_BROKERS the way the other bf-offers services do.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
