package config

import (
	"fmt"
	"time"

	"github.com/gmaxsoft/elasticsearch-project/pkg/database"
	pkgconfig "github.com/gmaxsoft/elasticsearch-project/pkg/config"
	"github.com/gmaxsoft/elasticsearch-project/pkg/tracing"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
	EngineMemory        = "memory"
)

// Catalog sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout     time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS       float64       `env:"SEARCH_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int           `env:"SEARCH_RATE_LIMIT_BURST" envDefault:"40"`

	// Search engine selection (elasticsearch, bleve or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURL                []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchIndex              string   `env:"ELASTICSEARCH_INDEX" envDefault:"products"`
	ElasticsearchAPIKey             string   `env:"ELASTICSEARCH_API_KEY"`
	ElasticsearchCloudID            string   `env:"ELASTICSEARCH_CLOUD_ID"`
	ElasticsearchUsername           string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword           string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchInsecureSkipVerify bool     `env:"ELASTICSEARCH_INSECURE_SKIP_VERIFY" envDefault:"false"`

	// Bleve; an empty path keeps the index in memory.
	BlevePath string `env:"BLEVE_PATH"`

	// Catalog
	CatalogSource string `env:"CATALOG_SOURCE" envDefault:"file"`
	CatalogFile   string `env:"CATALOG_FILE" envDefault:"products.json"`
	CatalogWatch  bool   `env:"CATALOG_WATCH" envDefault:"false"`

	// Postgres catalog source
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"catalog"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMigrate  bool   `env:"POSTGRES_MIGRATE" envDefault:"true"`

	// Redis suggestion cache
	RedisEnabled    bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost       string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	SuggestCacheTTL time.Duration `env:"SUGGEST_CACHE_TTL" envDefault:"5m"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"search-service"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from the given map instead of the environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environment); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURL) == 0 && c.ElasticsearchCloudID == "" {
			return fmt.Errorf("ELASTICSEARCH_URL or ELASTICSEARCH_CLOUD_ID is required")
		}
		if c.ElasticsearchIndex == "" {
			return fmt.Errorf("ELASTICSEARCH_INDEX is required")
		}
	case EngineBleve, EngineMemory:
	default:
		return fmt.Errorf("invalid SEARCH_ENGINE %q: must be one of elasticsearch, bleve, memory", c.SearchEngine)
	}
	switch c.CatalogSource {
	case SourceFile:
		if c.CatalogFile == "" {
			return fmt.Errorf("CATALOG_FILE is required for the file catalog source")
		}
	case SourcePostgres:
		if c.CatalogWatch {
			return fmt.Errorf("CATALOG_WATCH is only supported for the file catalog source")
		}
	default:
		return fmt.Errorf("invalid CATALOG_SOURCE %q: must be file or postgres", c.CatalogSource)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("SEARCH_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}
	if c.RedisEnabled && c.SuggestCacheTTL <= 0 {
		return fmt.Errorf("SUGGEST_CACHE_TTL must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTelSampleRate)
	}
	return nil
}

// Postgres returns the catalog database settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	return pg
}

// Redis returns the suggestion cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	return rc
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTelEnabled
	tc.OTLPEndpoint = c.OTelEndpoint
	tc.SampleRate = c.OTelSampleRate
	return tc
}
