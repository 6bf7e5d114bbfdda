package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Auth      AuthConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Import    ImportConfig
	Sweep     SweepConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate applies pending schema migrations on startup.
	AutoMigrate bool
}

// RedisConfig holds Redis configuration. Redis backs the shared
// configuration cache and the remediation event channel; with Enabled
// false the service runs without either.
type RedisConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	// Sampling configuration for high-traffic production environments
	SamplingEnabled   bool    // Enable log sampling (default: false for dev, true for prod)
	SamplingThreshold int     // First N identical logs per second (default: 100)
	SamplingRate      float64 // Sample rate after threshold, 0.0-1.0 (default: 0.1 = 10%)
	ErrorSamplingRate float64 // Sample rate for errors, 0.0-1.0 (default: 1.0 = 100%)

	// HTTP logging configuration
	SkipHealthLogs     bool // Skip logging health check endpoints (default: true in prod)
	SlowRequestSeconds int  // Log requests slower than this as warnings (default: 5)
}

// AuthConfig holds identity assertion configuration. The service performs
// no authentication of its own: callers arrive with an HS256 assertion
// token minted by the gateway in front of it, carrying subject and role
// claims that this service trusts.
type AuthConfig struct {
	// JWTSecret verifies the gateway's assertion tokens.
	JWTSecret string
	// JWTIssuer is the expected issuer claim.
	JWTIssuer string
	// DevIdentityHeaders accepts X-User-ID and X-User-Role headers in
	// place of a token. Development only.
	DevIdentityHeaders bool
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration
}

// ImportConfig holds feed reconciliation configuration.
type ImportConfig struct {
	// Parallelism bounds concurrent per-asset transactions in one batch.
	Parallelism int
	// MaxBodySize is the decompressed request size limit on the import
	// route, which accepts much larger payloads than the rest of the API.
	MaxBodySize int64
}

// SweepConfig holds the exception expiry sweep schedule.
type SweepConfig struct {
	Enabled bool
	// Schedule is a cron expression; the default runs hourly.
	Schedule string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "vulntrack"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20), // 1MB default
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "vulntrack"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "vulntrack"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", true),
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:              getEnv("LOG_LEVEL", "info"),
			Format:             getEnv("LOG_FORMAT", "json"),
			SamplingEnabled:    getEnvBool("LOG_SAMPLING_ENABLED", false),
			SamplingThreshold:  getEnvInt("LOG_SAMPLING_THRESHOLD", 100),
			SamplingRate:       getEnvFloat("LOG_SAMPLING_RATE", 0.1),
			ErrorSamplingRate:  getEnvFloat("LOG_ERROR_SAMPLING_RATE", 1.0),
			SkipHealthLogs:     getEnvBool("LOG_SKIP_HEALTH", true),
			SlowRequestSeconds: getEnvInt("LOG_SLOW_REQUEST_SECONDS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:          getEnv("AUTH_JWT_ISSUER", "vulntrack-gateway"),
			DevIdentityHeaders: getEnvBool("AUTH_DEV_IDENTITY_HEADERS", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 200),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP", 1*time.Minute),
		},
		Import: ImportConfig{
			Parallelism: getEnvInt("IMPORT_PARALLELISM", 4),
			MaxBodySize: getEnvInt64("IMPORT_MAX_BODY_SIZE", 50<<20), // 50MB decompressed
		},
		Sweep: SweepConfig{
			Enabled:  getEnvBool("SWEEP_ENABLED", true),
			Schedule: getEnv("SWEEP_SCHEDULE", "0 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates basic configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if c.Sweep.Enabled && strings.TrimSpace(c.Sweep.Schedule) == "" {
		return fmt.Errorf("SWEEP_SCHEDULE is required when the sweep is enabled")
	}
	return nil
}

// validateAuth validates identity assertion configuration.
func (c *Config) validateAuth() error {
	if c.Auth.DevIdentityHeaders {
		return nil
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required unless AUTH_DEV_IDENTITY_HEADERS is enabled")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters")
	}
	return nil
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	validLevels := map[string]bool{
		"debug": true, "DEBUG": true,
		"info": true, "INFO": true,
		"warn": true, "WARN": true,
		"error": true, "ERROR": true,
	}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{
		"json": true, "JSON": true,
		"text": true, "TEXT": true,
		"": true, // Empty is allowed (defaults to json)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}

	if c.Log.SamplingRate < 0.0 || c.Log.SamplingRate > 1.0 {
		return fmt.Errorf("LOG_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.SamplingRate)
	}
	if c.Log.ErrorSamplingRate < 0.0 || c.Log.ErrorSamplingRate > 1.0 {
		return fmt.Errorf("LOG_ERROR_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.ErrorSamplingRate)
	}
	if c.Log.SamplingThreshold < 0 {
		return fmt.Errorf("LOG_SAMPLING_THRESHOLD must be non-negative, got %d", c.Log.SamplingThreshold)
	}
	if c.Log.SlowRequestSeconds < 0 {
		return fmt.Errorf("LOG_SLOW_REQUEST_SECONDS must be non-negative, got %d", c.Log.SlowRequestSeconds)
	}

	return nil
}

// validateImport validates import configuration.
func (c *Config) validateImport() error {
	if c.Import.Parallelism < 1 || c.Import.Parallelism > 64 {
		return fmt.Errorf("IMPORT_PARALLELISM must be between 1 and 64, got %d", c.Import.Parallelism)
	}
	if c.Import.MaxBodySize < 1<<20 {
		return fmt.Errorf("IMPORT_MAX_BODY_SIZE must be at least 1MB, got %d", c.Import.MaxBodySize)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if c.Auth.DevIdentityHeaders {
		return fmt.Errorf("AUTH_DEV_IDENTITY_HEADERS must be disabled in production")
	}
	if len(c.Auth.JWTSecret) < 64 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 64 characters in production")
	}
	if err := c.validateProductionSecurity(); err != nil {
		return err
	}
	if c.Redis.Enabled {
		return c.validateProductionRedis()
	}
	return nil
}

// validateProductionSecurity validates security settings for production.
func (c *Config) validateProductionSecurity() error {
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("CORS wildcard origin not allowed in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if !c.RateLimit.Enabled {
		return fmt.Errorf("rate limiting must be enabled in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if c.Log.Level == "debug" {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	return nil
}

// validateProductionRedis validates Redis configuration for production.
func (c *Config) validateProductionRedis() error {
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if !c.Redis.TLSEnabled {
		return fmt.Errorf("redis TLS must be enabled in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("redis TLS skip verify must be false in production")
	}
	if c.Redis.PoolSize < 10 || c.Redis.PoolSize > 500 {
		return fmt.Errorf("redis pool size must be between 10 and 500 in production, got %d", c.Redis.PoolSize)
	}
	if c.Redis.MaxRetries < 1 || c.Redis.MaxRetries > 10 {
		return fmt.Errorf("redis max retries must be between 1 and 10, got %d", c.Redis.MaxRetries)
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if the application is in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
