package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"SERVER_PORT", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"JWT_SECRET", "JWT_EXPIRY_HOURS", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
	"CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT", "MQTT_URL", "MQTT_TOPIC",
	"PREDICTION_BUS_CAPACITY", "PREDICTION_HISTORY_DAYS", "PREDICTION_CACHE_EVICT_INTERVAL",
	"PREDICTION_WORKDAY_START", "PREDICTION_WORKDAY_END", "PREDICTION_TIMEZONE",
	"PREDICTION_FILTER_BY_STOP", "PREDICTION_MAX_PAST", "ADMIN_USERNAME", "ADMIN_PASSWORD",
	"COLLECTOR_METRICS_ADDR", "AUTH_RATE_LIMIT",
	"PREDICTION_COMPUTE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "passengerflow",
		Password: "secret",
		Name:     "passengerflow",
		SSLMode:  "disable",
	}
	dsn := db.GetDSN()

	expected := "host=localhost port=5432 user=passengerflow password=secret dbname=passengerflow sslmode=disable"
	if dsn != expected {
		t.Errorf("GetDSN() = %q, want %q", dsn, expected)
	}
}

func TestGetURL(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "admin",
		Password: "pw",
		Name:     "flow",
		SSLMode:  "require",
	}
	want := "postgres://admin:pw@db.example.com:5433/flow?sslmode=require"
	if got := db.GetURL(); got != want {
		t.Errorf("GetURL() = %q, want %q", got, want)
	}
}

func TestGetDSNCustomValues(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "admin",
		Password: "p@ss",
		Name:     "mydb",
		SSLMode:  "require",
	}
	dsn := db.GetDSN()

	if !strings.Contains(dsn, "host=db.example.com") {
		t.Errorf("DSN missing host, got: %s", dsn)
	}
	if !strings.Contains(dsn, "port=5433") {
		t.Errorf("DSN missing port, got: %s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=require") {
		t.Errorf("DSN missing sslmode, got: %s", dsn)
	}
}

func TestGetEnv(t *testing.T) {
	os.Unsetenv("TEST_CONFIG_VAR")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}

	t.Setenv("TEST_CONFIG_VAR", "custom")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "custom" {
		t.Errorf("getEnv() = %q, want %q", got, "custom")
	}
}

func TestGetIntEnv(t *testing.T) {
	t.Run("fallback when unset", func(t *testing.T) {
		os.Unsetenv("TEST_INT_VAR")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 8080 {
			t.Errorf("getIntEnv() = %d, want %d", got, 8080)
		}
	})

	t.Run("parses valid int", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "9090")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 9090 {
			t.Errorf("getIntEnv() = %d, want %d", got, 9090)
		}
	})

	t.Run("error on invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "not_int")
		if _, err := getIntEnv("TEST_INT_VAR", 8080); err == nil {
			t.Error("expected error for invalid int value")
		}
	})
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 10 * time.Minute},
		{"600", 10 * time.Minute},
		{"90s", 90 * time.Second},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.value)
			got, err := getDurationEnv("TEST_DURATION_VAR", 10*time.Minute)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("getDurationEnv(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}

	t.Setenv("TEST_DURATION_VAR", "soon")
	if _, err := getDurationEnv("TEST_DURATION_VAR", time.Minute); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL_VAR", "")
	if got, _ := getBoolEnv("TEST_BOOL_VAR", true); !got {
		t.Error("getBoolEnv() should fall back to true")
	}
	t.Setenv("TEST_BOOL_VAR", "false")
	if got, _ := getBoolEnv("TEST_BOOL_VAR", true); got {
		t.Error("getBoolEnv() = true, want false")
	}
	t.Setenv("TEST_BOOL_VAR", "maybe")
	if _, err := getBoolEnv("TEST_BOOL_VAR", true); err == nil {
		t.Error("expected error for invalid bool")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.JWT.ExpiryHours != 24 {
		t.Errorf("JWT.ExpiryHours = %d, want 24", cfg.JWT.ExpiryHours)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want 6379", cfg.Redis.Port)
	}
	if cfg.CORS.AllowedOrigins != "*" {
		t.Errorf("CORS.AllowedOrigins = %q, want %q", cfg.CORS.AllowedOrigins, "*")
	}
	if cfg.JWT.AdminUsername != "admin" || cfg.JWT.AdminPassword != "" {
		t.Errorf("admin bootstrap = %q/%q, want admin with no password", cfg.JWT.AdminUsername, cfg.JWT.AdminPassword)
	}
	if cfg.Server.AuthRatePerMinute != 10 {
		t.Errorf("Server.AuthRatePerMinute = %d, want 10", cfg.Server.AuthRatePerMinute)
	}

	p := cfg.Prediction
	if p.BusCapacity != 50 {
		t.Errorf("Prediction.BusCapacity = %v, want 50", p.BusCapacity)
	}
	if p.HistoryDays != 30 {
		t.Errorf("Prediction.HistoryDays = %d, want 30", p.HistoryDays)
	}
	if p.EvictInterval != 10*time.Minute {
		t.Errorf("Prediction.EvictInterval = %s, want 10m", p.EvictInterval)
	}
	if p.WorkdayStart != 6 || p.WorkdayEnd != 22 {
		t.Errorf("workday = %d..%d, want 6..22", p.WorkdayStart, p.WorkdayEnd)
	}
	if !p.FilterByStop {
		t.Error("Prediction.FilterByStop should default to true")
	}
	if p.ComputeTimeout != 30*time.Second {
		t.Errorf("Prediction.ComputeTimeout = %s, want 30s", p.ComputeTimeout)
	}
	if p.Location() != time.UTC {
		t.Errorf("Prediction.Location() = %v, want UTC", p.Location())
	}
}

func TestLoadConfigCustom(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("DB_HOST", "db.prod")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("JWT_EXPIRY_HOURS", "48")
	t.Setenv("PREDICTION_BUS_CAPACITY", "80")
	t.Setenv("PREDICTION_TIMEZONE", "Europe/Moscow")
	t.Setenv("PREDICTION_FILTER_BY_STOP", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.prod" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.prod")
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.JWT.ExpiryHours != 48 {
		t.Errorf("JWT.ExpiryHours = %d, want 48", cfg.JWT.ExpiryHours)
	}
	if cfg.Prediction.BusCapacity != 80 {
		t.Errorf("Prediction.BusCapacity = %v, want 80", cfg.Prediction.BusCapacity)
	}
	if cfg.Prediction.FilterByStop {
		t.Error("Prediction.FilterByStop = true, want false")
	}
	if got := cfg.Prediction.Location().String(); got != "Europe/Moscow" {
		t.Errorf("Prediction.Location() = %q, want Europe/Moscow", got)
	}
}

func TestLoadConfigInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "invalid")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid SERVER_PORT")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT: JWTConfig{Secret: "s", ExpiryHours: 24},
			Prediction: PredictionConfig{
				BusCapacity:    50,
				HistoryDays:    30,
				EvictInterval:  10 * time.Minute,
				WorkdayStart:   6,
				WorkdayEnd:     22,
				Timezone:       "UTC",
				ComputeTimeout: 30 * time.Second,
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() on valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Prediction.BusCapacity = 0 }},
		{"negative history", func(c *Config) { c.Prediction.HistoryDays = -1 }},
		{"zero evict interval", func(c *Config) { c.Prediction.EvictInterval = 0 }},
		{"start after end", func(c *Config) { c.Prediction.WorkdayStart = 23; c.Prediction.WorkdayEnd = 5 }},
		{"hour out of range", func(c *Config) { c.Prediction.WorkdayEnd = 24 }},
		{"unknown timezone", func(c *Config) { c.Prediction.Timezone = "Mars/Olympus" }},
		{"host local timezone", func(c *Config) { c.Prediction.Timezone = "Local" }},
		{"zero compute timeout", func(c *Config) { c.Prediction.ComputeTimeout = 0 }},
		{"zero jwt expiry", func(c *Config) { c.JWT.ExpiryHours = 0 }},
		{"negative auth rate", func(c *Config) { c.Server.AuthRatePerMinute = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
