package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlanMarvin/polytrak/internal/secrets"
)

// AuthMode represents the authentication mode for Data API
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeAPIKey AuthMode = "api_key"
)

// CacheBackend selects where stage results are kept
type CacheBackend string

const (
	CacheBackendMemory   CacheBackend = "memory"
	CacheBackendMySQL    CacheBackend = "mysql"
	CacheBackendPostgres CacheBackend = "postgres"
	CacheBackendRedis    CacheBackend = "redis"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// HTTP
	HTTPPort    int
	CORSOrigins []string

	// Data API
	DataAPIBaseURL      string
	DataAPIAuthMode     AuthMode
	DataAPIBearerToken  string
	DataAPIAPIKey       string
	DataAPIExtraHeaders map[string]string
	DataAPIRPS          float64
	DataAPIBurst        int

	// Profile API
	ProfileAPIBaseURL string
	ProfileAPIRPS     float64

	HTTPClientTimeout time.Duration

	// Stage cache
	CacheBackend CacheBackend

	// MySQL (GORM)
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Postgres (pgx)
	PostgresDSN      string
	PostgresMaxConns int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Engine
	FullStageTimeout time.Duration

	// Tunables, overridable from CONFIG_FILE
	Tuning Tuning
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	sec := &secrets.Reader{}
	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "production"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		DataAPIBaseURL:      getEnv("DATA_API_BASE_URL", "https://data-api.polymarket.com"),
		DataAPIAuthMode:     AuthMode(getEnv("DATA_API_AUTH_MODE", "none")),
		DataAPIBearerToken:  sec.Get("DATA_API_BEARER_TOKEN"),
		DataAPIAPIKey:       sec.Get("DATA_API_API_KEY"),
		DataAPIRPS:          getEnvFloat("DATA_API_RPS", 10.0),
		DataAPIBurst:        getEnvInt("DATA_API_BURST", 5),
		ProfileAPIBaseURL:   getEnv("PROFILE_API_BASE_URL", "https://gamma-api.polymarket.com"),
		ProfileAPIRPS:       getEnvFloat("PROFILE_API_RPS", 5.0),
		HTTPClientTimeout:   getEnvDuration("HTTP_CLIENT_TIMEOUT", 15*time.Second),
		CacheBackend:        CacheBackend(getEnv("CACHE_BACKEND", "memory")),
		DatabaseDSN:         sec.Get("DATABASE_DSN"),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		PostgresDSN:         sec.Get("POSTGRES_DSN"),
		PostgresMaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 10),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       sec.Get("REDIS_PASSWORD"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		RedisPoolSize:       getEnvInt("REDIS_POOL_SIZE", 10),
		FullStageTimeout:    getEnvDuration("FULL_STAGE_TIMEOUT", 30*time.Second),
		Tuning:              DefaultTuning(),
	}

	if err := sec.Err(); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = parseCSV(origins)
	}

	// Parse extra headers JSON
	extraHeadersJSON := getEnv("DATA_API_EXTRA_HEADERS", "{}")
	if err := json.Unmarshal([]byte(extraHeadersJSON), &cfg.DataAPIExtraHeaders); err != nil {
		return nil, fmt.Errorf("invalid DATA_API_EXTRA_HEADERS JSON: %w", err)
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.Tuning.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load CONFIG_FILE: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DataAPIBaseURL == "" {
		return fmt.Errorf("DATA_API_BASE_URL is required")
	}

	switch c.DataAPIAuthMode {
	case AuthModeNone:
	case AuthModeBearer:
		if c.DataAPIBearerToken == "" {
			return fmt.Errorf("DATA_API_BEARER_TOKEN is required when AUTH_MODE is bearer")
		}
	case AuthModeAPIKey:
		if c.DataAPIAPIKey == "" {
			return fmt.Errorf("DATA_API_API_KEY is required when AUTH_MODE is api_key")
		}
	default:
		return fmt.Errorf("invalid DATA_API_AUTH_MODE: %s (must be none, bearer, or api_key)", c.DataAPIAuthMode)
	}

	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when CACHE_BACKEND is mysql")
		}
	case CacheBackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when CACHE_BACKEND is postgres")
		}
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND: %s (valid values: memory, mysql, postgres, redis)", c.CacheBackend)
	}

	if c.FullStageTimeout <= 0 {
		return fmt.Errorf("FULL_STAGE_TIMEOUT must be positive")
	}

	return c.Tuning.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s") or bare seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
