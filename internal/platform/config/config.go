package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Activity backends.
const (
	BackendJSONL    = "jsonl"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	OutputDir   string `env:"DSAR_OUTPUT_DIR" envDefault:"./output"`
	KeyDir      string `env:"DSAR_KEY_DIR"`
	LogLevel    string `env:"DSAR_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"DSAR_LOG_FORMAT" envDefault:"text"`
	Concurrency int    `env:"DSAR_CONCURRENCY" envDefault:"4"`

	Activity  Activity
	Redis     RedisConfig
	Server    Server
	RateLimit RateLimit
	Company   Company
}

// Activity selects where the processing activity log is kept.
type Activity struct {
	Backend      string   `env:"DSAR_ACTIVITY_BACKEND" envDefault:"jsonl"`
	PostgresURL  string   `env:"DSAR_POSTGRES_URL"`
	KafkaBrokers []string `env:"DSAR_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"DSAR_KAFKA_TOPIC" envDefault:"dsar.activity"`
	AsyncBuffer  int      `env:"DSAR_ACTIVITY_ASYNC_BUFFER" envDefault:"0"`
}

// RedisConfig configures the shared redis client.
type RedisConfig struct {
	URL          string        `env:"DSAR_REDIS_URL"`
	PoolSize     int           `env:"DSAR_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"DSAR_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DSAR_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"DSAR_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"DSAR_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// RateLimit bounds runs and package assembly per operator. Zero requests
// disables it.
type RateLimit struct {
	Requests int           `env:"DSAR_RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"DSAR_RATE_LIMIT_WINDOW" envDefault:"1h"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string        `env:"DSAR_HTTP_ADDR" envDefault:":8080"`
	JWTSigningKey string        `env:"DSAR_JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"DSAR_JWT_ISSUER" envDefault:"dsar"`
	TokenTTL      time.Duration `env:"DSAR_TOKEN_TTL" envDefault:"8h"`
	// ExportDir confines the export paths API clients may name. Relative
	// paths resolve against it.
	ExportDir string `env:"DSAR_EXPORT_DIR"`
}

// Company is the controller identity printed on cover letters.
type Company struct {
	Name         string `env:"DSAR_COMPANY_NAME" envDefault:"[Company Name]"`
	Address      string `env:"DSAR_COMPANY_ADDRESS"`
	DPOName      string `env:"DSAR_DPO_NAME" envDefault:"Data Protection Officer"`
	DPOEmail     string `env:"DSAR_DPO_EMAIL"`
	ResponseDays int    `env:"DSAR_RESPONSE_DAYS" envDefault:"30"`
}

// Load reads configuration from environment variables, after a best-effort
// .env load for local use.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.KeyDir == "" {
		cfg.KeyDir = DefaultKeyDir(cfg.OutputDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultKeyDir places redaction keys beside, never inside, the deliverable
// directory.
func DefaultKeyDir(outputDir string) string {
	clean := filepath.Clean(outputDir)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+"_internal")
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("DSAR_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	switch c.Activity.Backend {
	case BackendJSONL, BackendMemory:
	case BackendPostgres:
		if c.Activity.PostgresURL == "" {
			return fmt.Errorf("DSAR_POSTGRES_URL is required for the postgres activity backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("DSAR_REDIS_URL is required for the redis activity backend")
		}
	default:
		return fmt.Errorf("unknown DSAR_ACTIVITY_BACKEND %q", c.Activity.Backend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown DSAR_LOG_FORMAT %q", c.LogFormat)
	}
	if c.Company.ResponseDays < 1 {
		return fmt.Errorf("DSAR_RESPONSE_DAYS must be positive")
	}
	return nil
}
