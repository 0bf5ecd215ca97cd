package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

const (
	// Authorization code lifetime bounds. Expiry is a hard boundary, so the
	// configured TTL is clamped into this band rather than trusted blindly.
	CodeTTLMin = 60 * time.Second
	CodeTTLMax = 600 * time.Second
)

type Config struct {
	Server    Server
	Database  Database
	OAuth     OAuth
	RateLimit RateLimit
	Redis     Redis
	BaseURL   string
	LogLevel  string
}

type Server struct {
	Port           int
	Environment    Environment
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// GetBaseURL returns the configured base URL or constructs one from server
// config. Redirects and issuer metadata are built from this value.
func (c Config) GetBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}

	scheme := "http"
	if c.Server.IsProduction() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, c.Server.Port)
}

type Database struct {
	// URL selects the backing store: a Postgres connection string, or empty
	// for the in-memory store (development and tests only).
	URL             string
	MaxOpenConns    int32
	MaxIdleConns    int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

type OAuth struct {
	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SweepInterval   time.Duration
}

type RateLimit struct {
	Enabled           bool
	TokenRequests     int
	AuthorizeRequests int
	PublicRequests    int
	WindowDuration    time.Duration
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Load loads configuration from the environment.
func Load() (Config, error) {
	var config Config
	var err error

	config.Server.Port, err = getEnvIntSafe("SERVER_PORT", 8080, false)
	if err != nil {
		return config, fmt.Errorf("server port config error: %w", err)
	}

	config.Server.Environment, err = getEnvEnvironmentSafe("SERVER_ENVIRONMENT", EnvDevelopment, false)
	if err != nil {
		return config, fmt.Errorf("server environment config error: %w", err)
	}

	config.Server.ReadTimeout, err = getEnvDurationSafe("SERVER_READ_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server read timeout config error: %w", err)
	}

	config.Server.WriteTimeout, err = getEnvDurationSafe("SERVER_WRITE_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server write timeout config error: %w", err)
	}

	config.Server.IdleTimeout, err = getEnvDurationSafe("SERVER_IDLE_TIMEOUT", 60*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server idle timeout config error: %w", err)
	}

	config.Server.MaxHeaderBytes, err = getEnvIntSafe("SERVER_MAX_HEADER_BYTES", 1<<20, false)
	if err != nil {
		return config, fmt.Errorf("server max header bytes config error: %w", err)
	}

	config.Database.URL, err = getEnvStringSafe("DB_URL", "", false)
	if err != nil {
		return config, fmt.Errorf("database URL config error: %w", err)
	}

	config.Database.MaxOpenConns, err = getEnvInt32Safe("DB_MAX_OPEN_CONNS", 25, false)
	if err != nil {
		return config, fmt.Errorf("database max open conns config error: %w", err)
	}

	config.Database.MaxIdleConns, err = getEnvInt32Safe("DB_MAX_IDLE_CONNS", 5, false)
	if err != nil {
		return config, fmt.Errorf("database max idle conns config error: %w", err)
	}

	config.Database.ConnMaxLifetime, err = getEnvDurationSafe("DB_CONN_MAX_LIFETIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max lifetime config error: %w", err)
	}

	config.Database.ConnMaxIdleTime, err = getEnvDurationSafe("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max idle time config error: %w", err)
	}

	config.Database.QueryTimeout, err = getEnvDurationSafe("DB_QUERY_TIMEOUT", 3*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("database query timeout config error: %w", err)
	}

	config.OAuth.CodeTTL, err = getEnvDurationSafe("OAUTH_CODE_TTL", 120*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("authorization code TTL config error: %w", err)
	}
	config.OAuth.CodeTTL = clampDuration(config.OAuth.CodeTTL, CodeTTLMin, CodeTTLMax)

	config.OAuth.AccessTokenTTL, err = getEnvDurationSafe("OAUTH_ACCESS_TOKEN_TTL", time.Hour, false)
	if err != nil {
		return config, fmt.Errorf("access token TTL config error: %w", err)
	}

	config.OAuth.RefreshTokenTTL, err = getEnvDurationSafe("OAUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour, false)
	if err != nil {
		return config, fmt.Errorf("refresh token TTL config error: %w", err)
	}

	config.OAuth.SweepInterval, err = getEnvDurationSafe("OAUTH_SWEEP_INTERVAL", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("sweep interval config error: %w", err)
	}

	config.RateLimit.Enabled, err = getEnvBoolSafe("RATE_LIMIT_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("rate limit enabled config error: %w", err)
	}

	config.RateLimit.TokenRequests, err = getEnvIntSafe("RATE_LIMIT_TOKEN_REQUESTS", 10, false)
	if err != nil {
		return config, fmt.Errorf("rate limit token requests config error: %w", err)
	}

	config.RateLimit.AuthorizeRequests, err = getEnvIntSafe("RATE_LIMIT_AUTHORIZE_REQUESTS", 30, false)
	if err != nil {
		return config, fmt.Errorf("rate limit authorize requests config error: %w", err)
	}

	config.RateLimit.PublicRequests, err = getEnvIntSafe("RATE_LIMIT_PUBLIC_REQUESTS", 60, false)
	if err != nil {
		return config, fmt.Errorf("rate limit public requests config error: %w", err)
	}

	config.RateLimit.WindowDuration, err = getEnvDurationSafe("RATE_LIMIT_WINDOW_DURATION", time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("rate limit window duration config error: %w", err)
	}

	config.Redis.Enabled, err = getEnvBoolSafe("REDIS_ENABLED", false, false)
	if err != nil {
		return config, fmt.Errorf("redis enabled config error: %w", err)
	}

	config.Redis.Addr, err = getEnvStringSafe("REDIS_ADDR", "localhost:6379", false)
	if err != nil {
		return config, fmt.Errorf("redis address config error: %w", err)
	}

	config.Redis.Password, err = getEnvStringSafe("REDIS_PASSWORD", "", false)
	if err != nil {
		return config, fmt.Errorf("redis password config error: %w", err)
	}

	config.Redis.DB, err = getEnvIntSafe("REDIS_DB", 0, false)
	if err != nil {
		return config, fmt.Errorf("redis DB config error: %w", err)
	}

	config.Redis.PoolSize, err = getEnvIntSafe("REDIS_POOL_SIZE", 10, false)
	if err != nil {
		return config, fmt.Errorf("redis pool size config error: %w", err)
	}

	config.BaseURL, err = getEnvStringSafe("BASE_URL", "", false)
	if err != nil {
		return config, fmt.Errorf("base URL config error: %w", err)
	}

	config.LogLevel, err = getEnvStringSafe("LOG_LEVEL", "info", false)
	if err != nil {
		return config, fmt.Errorf("log level config error: %w", err)
	}

	return config, nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func getEnvStringSafe(key, defaultValue string, required bool) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	return value, nil
}

func getEnvIntSafe(key string, defaultValue int, required bool) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvInt32Safe(key string, defaultValue int32, required bool) (int32, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return int32(value), nil
}

func getEnvDurationSafe(key string, defaultValue time.Duration, required bool) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a valid duration: %w", key, err)
	}
	return value, nil
}

func getEnvBoolSafe(key string, defaultValue bool, required bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return false, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a valid boolean: %w", key, err)
	}
	return value, nil
}

func getEnvEnvironmentSafe(key string, defaultValue Environment, required bool) (Environment, error) {
	env, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	envValue := Environment(env)
	if !envValue.IsValid() {
		return "", fmt.Errorf("environment variable %s has invalid value: %s", key, env)
	}
	return envValue, nil
}
