package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Flowlens application.
type Config struct {
	Server     ServerConfig
	Source     SourceConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Similarity SimilarityConfig
	Data       DataConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// SourceConfig selects where performance tables are loaded from.
type SourceConfig struct {
	// Backend is one of memory, postgres, clickhouse.
	Backend string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SimilarityConfig configures the relevance scoring backend.
type SimilarityConfig struct {
	Enabled  bool
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DataConfig holds table handling settings.
type DataConfig struct {
	// KeepPerFlow is how many recent views survive per flow when an
	// uploaded export is optimized.
	KeepPerFlow int
	// DefaultTopN is the ranking depth when a request omits count.
	DefaultTopN int
	// MaxUploadBytes caps accepted export uploads.
	MaxUploadBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("FLOWLENS_HTTP_ADDR", ":8080"),
			Env:             getEnv("FLOWLENS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("FLOWLENS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Source: SourceConfig{
			Backend: getEnv("FLOWLENS_SOURCE", "memory"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("FLOWLENS_DB_HOST", "localhost"),
			Port:     getIntEnv("FLOWLENS_DB_PORT", 5432),
			User:     getEnv("FLOWLENS_DB_USER", "flowlens"),
			Password: getEnv("FLOWLENS_DB_PASSWORD", "flowlens_secret"),
			DBName:   getEnv("FLOWLENS_DB_NAME", "flowlens"),
			SSLMode:  getEnv("FLOWLENS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("FLOWLENS_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("FLOWLENS_DB_MIN_CONNS", 5),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("FLOWLENS_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("FLOWLENS_CLICKHOUSE_DB", "flowlens"),
			User:     getEnv("FLOWLENS_CLICKHOUSE_USER", "default"),
			Password: getEnv("FLOWLENS_CLICKHOUSE_PASSWORD", ""),
			Timeout:  getDurationEnv("FLOWLENS_CLICKHOUSE_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("FLOWLENS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FLOWLENS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("FLOWLENS_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("FLOWLENS_AUTH_ENABLED", true),
			MasterKey: getEnv("FLOWLENS_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("FLOWLENS_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("FLOWLENS_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("FLOWLENS_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("FLOWLENS_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("FLOWLENS_LOG_LEVEL", "info"),
			Format: getEnv("FLOWLENS_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("FLOWLENS_METRICS_ENABLED", true),
			Path:    getEnv("FLOWLENS_METRICS_PATH", "/metrics"),
		},
		Similarity: SimilarityConfig{
			Enabled:  getBoolEnv("FLOWLENS_SIMILARITY_ENABLED", false),
			BaseURL:  getEnv("FLOWLENS_SIMILARITY_BASE_URL", "https://go.fastrouter.ai/api/v1"),
			APIKey:   getEnv("FLOWLENS_SIMILARITY_API_KEY", ""),
			Model:    getEnv("FLOWLENS_SIMILARITY_MODEL", "anthropic/claude-sonnet-4-20250514"),
			Timeout:  getDurationEnv("FLOWLENS_SIMILARITY_TIMEOUT", 45*time.Second),
			CacheTTL: getDurationEnv("FLOWLENS_SIMILARITY_CACHE_TTL", time.Hour),
		},
		Data: DataConfig{
			KeepPerFlow:    getIntEnv("FLOWLENS_KEEP_PER_FLOW", 5),
			DefaultTopN:    getIntEnv("FLOWLENS_DEFAULT_TOP_N", 10),
			MaxUploadBytes: int64(getIntEnv("FLOWLENS_MAX_UPLOAD_MB", 256)) << 20,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("FLOWLENS_API_KEY_MASTER is required when auth is enabled")
	}
	switch c.Source.Backend {
	case "memory", "postgres", "clickhouse":
	default:
		return fmt.Errorf("FLOWLENS_SOURCE must be memory, postgres or clickhouse, got %q", c.Source.Backend)
	}
	if c.Similarity.Enabled && c.Similarity.APIKey == "" {
		return fmt.Errorf("FLOWLENS_SIMILARITY_API_KEY is required when similarity scoring is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
