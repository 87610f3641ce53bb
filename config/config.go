package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Prediction PredictionConfig
	MQTT       MQTTConfig
}

type ServerConfig struct {
	Port int
	// AuthRatePerMinute caps login and register attempts per client IP. 0 disables it.
	AuthRatePerMinute int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL returns the same connection as a postgres:// URL, the form pgx expects.
func (d DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
	// AdminUsername/AdminPassword seed an admin account at startup when the
	// password is set.
	AdminUsername string
	AdminPassword string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins string
}

type LogConfig struct {
	Level  string
	Format string
}

// PredictionConfig tunes the passenger load prediction core.
type PredictionConfig struct {
	BusCapacity   float64
	HistoryDays   int
	EvictInterval time.Duration
	WorkdayStart  int
	WorkdayEnd    int
	Timezone      string
	FilterByStop  bool
	// MaxPast bounds how far before now a single-point prediction may be requested.
	MaxPast time.Duration
	// ComputeTimeout bounds one shared prediction computation.
	ComputeTimeout time.Duration
}

// Location resolves Timezone. Validate guarantees it loads.
func (p PredictionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MQTTConfig struct {
	URL   string
	Topic string
	// MetricsAddr is where the collector serves /metrics and /health.
	MetricsAddr string
}

func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	authRate, err := getIntEnv("AUTH_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_RATE_LIMIT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	prediction, err := loadPredictionConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              serverPort,
			AuthRatePerMinute: authRate,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "passengerflow"),
			Password: getEnv("DB_PASSWORD", "passengerflow_dev_password"),
			Name:     getEnv("DB_NAME", "passengerflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "dev-secret-change-me"),
			ExpiryHours:   jwtExpiry,
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Prediction: prediction,
		MQTT: MQTTConfig{
			URL:         getEnv("MQTT_URL", "tcp://localhost:1883"),
			Topic:       getEnv("MQTT_TOPIC", "passengerflow/counts/+"),
			MetricsAddr: getEnv("COLLECTOR_METRICS_ADDR", ":9091"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPredictionConfig() (PredictionConfig, error) {
	var p PredictionConfig
	var err error

	if p.BusCapacity, err = getFloatEnv("PREDICTION_BUS_CAPACITY", 50); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_BUS_CAPACITY: %w", err)
	}
	if p.HistoryDays, err = getIntEnv("PREDICTION_HISTORY_DAYS", 30); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_HISTORY_DAYS: %w", err)
	}
	if p.EvictInterval, err = getDurationEnv("PREDICTION_CACHE_EVICT_INTERVAL", 10*time.Minute); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_CACHE_EVICT_INTERVAL: %w", err)
	}
	if p.WorkdayStart, err = getIntEnv("PREDICTION_WORKDAY_START", 6); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_WORKDAY_START: %w", err)
	}
	if p.WorkdayEnd, err = getIntEnv("PREDICTION_WORKDAY_END", 22); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_WORKDAY_END: %w", err)
	}
	if p.FilterByStop, err = getBoolEnv("PREDICTION_FILTER_BY_STOP", true); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_FILTER_BY_STOP: %w", err)
	}
	if p.MaxPast, err = getDurationEnv("PREDICTION_MAX_PAST", 24*time.Hour); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_MAX_PAST: %w", err)
	}
	if p.ComputeTimeout, err = getDurationEnv("PREDICTION_COMPUTE_TIMEOUT", 30*time.Second); err != nil {
		return p, fmt.Errorf("invalid PREDICTION_COMPUTE_TIMEOUT: %w", err)
	}
	p.Timezone = getEnv("PREDICTION_TIMEZONE", "UTC")
	return p, nil
}

// Validate checks cross-field constraints that env parsing alone cannot catch.
func (c *Config) Validate() error {
	var errs []error

	p := c.Prediction
	if p.BusCapacity <= 0 {
		errs = append(errs, fmt.Errorf("bus capacity must be positive, got %v", p.BusCapacity))
	}
	if p.HistoryDays <= 0 {
		errs = append(errs, fmt.Errorf("history days must be positive, got %d", p.HistoryDays))
	}
	if p.EvictInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache evict interval must be positive, got %s", p.EvictInterval))
	}
	if p.WorkdayStart < 0 || p.WorkdayStart > 23 || p.WorkdayEnd < 0 || p.WorkdayEnd > 23 {
		errs = append(errs, fmt.Errorf("workday hours must be within 0..23, got %d..%d", p.WorkdayStart, p.WorkdayEnd))
	} else if p.WorkdayStart > p.WorkdayEnd {
		errs = append(errs, fmt.Errorf("workday start %d is after end %d", p.WorkdayStart, p.WorkdayEnd))
	}
	if p.ComputeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("compute timeout must be positive, got %s", p.ComputeTimeout))
	}
	// Postgres has no zone named Local, so hour-of-day must come from a named zone.
	if loc, err := time.LoadLocation(p.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q: %w", p.Timezone, err))
	} else if loc == time.Local {
		errs = append(errs, fmt.Errorf("timezone %q is host-dependent, use an IANA name such as Europe/Moscow", p.Timezone))
	}
	if c.Server.AuthRatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth rate limit must not be negative, got %d", c.Server.AuthRatePerMinute))
	}
	if c.JWT.ExpiryHours <= 0 {
		errs = append(errs, fmt.Errorf("jwt expiry must be positive, got %d", c.JWT.ExpiryHours))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

// getDurationEnv accepts Go durations ("10m") or a bare number of seconds.
func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(value)
}
